package assessment

import "time"

// Text difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is a multiple-choice comprehension question. Answer is the
// index of the correct option.
type Question struct {
	Prompt  string
	Options []string
	Answer  int
}

// Text is an admin-curated reading passage with its question set.
type Text struct {
	ID         string
	Title      string
	Content    string
	WordCount  int
	Difficulty string
	Questions  []Question
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session is a started assessment attempt. Submitting marks it
// completed; a session can be submitted once.
type Session struct {
	ID        string
	UserID    string
	TextID    string
	StartedAt time.Time
	Completed bool
}

// Result is a completed assessment: reading speed, comprehension and the
// composite score assigned by the scoring service.
type Result struct {
	ID            string
	UserID        string
	TextID        string
	SessionID     string
	WPM           int
	Comprehension float64
	Score         float64
	DurationMS    int64
	Correct       int
	Total         int
	CreatedAt     time.Time
}

// ValidDifficulty reports whether d names a known difficulty.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// WordsPerMinute computes reading speed for wordCount words read in
// duration. Durations under a second count as one second.
func WordsPerMinute(wordCount int, duration time.Duration) int {
	if wordCount <= 0 {
		return 0
	}
	if duration < time.Second {
		duration = time.Second
	}
	wpm := float64(wordCount) / duration.Minutes()
	return int(wpm + 0.5)
}

// Grade returns the number of correct answers for the given responses.
// Responses out of range count as wrong.
func Grade(questions []Question, answers []int) int {
	correct := 0
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		if answers[i] >= 0 && answers[i] < len(q.Options) && answers[i] == q.Answer {
			correct++
		}
	}
	return correct
}
