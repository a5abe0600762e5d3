// Package scoring computes the composite assessment score. The formula
// lives here so the scorer service and the in-process fallback always
// agree.
package scoring

import "math"

// Model identifies the scoring formula version reported in results.
const Model = "readspeed-score-v1"

// Difficulty multipliers. Harder texts are worth slightly more.
const (
	easyFactor   = 0.9
	mediumFactor = 1.0
	hardFactor   = 1.1
)

// speedCeiling is the WPM at which the speed component maxes out.
const speedCeiling = 600

// Composite blends reading speed (40%) and comprehension (60%) into a
// 0-100 score, adjusted for text difficulty.
func Composite(wpm int, comprehension float64, difficulty string) float64 {
	speed := float64(wpm)
	if speed < 0 {
		speed = 0
	}
	if speed > speedCeiling {
		speed = speedCeiling
	}
	comp := comprehension
	if comp < 0 {
		comp = 0
	}
	if comp > 100 {
		comp = 100
	}

	raw := speed/speedCeiling*40 + comp/100*60
	raw *= factor(difficulty)
	if raw > 100 {
		raw = 100
	}
	return math.Round(raw*10) / 10
}

// Rating buckets a composite score into a human-readable band.
func Rating(score float64) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "advanced"
	case score >= 50:
		return "proficient"
	default:
		return "developing"
	}
}

func factor(difficulty string) float64 {
	switch difficulty {
	case "easy":
		return easyFactor
	case "hard":
		return hardFactor
	default:
		return mediumFactor
	}
}
