package assessments

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/readspeed/backend/internal/httputil"
	"github.com/readspeed/backend/internal/scoring"
)

// Scorer assigns the composite score for a finished assessment.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error)
}

// ScoreRequest is the payload sent to the scoring service.
type ScoreRequest struct {
	ResultID      string  `json:"result_id"`
	WPM           int     `json:"wpm"`
	Comprehension float64 `json:"comprehension"`
	Difficulty    string  `json:"difficulty"`
}

// ScoreResponse is the scoring service's verdict.
type ScoreResponse struct {
	Score  float64 `json:"score"`
	Rating string  `json:"rating"`
	Model  string  `json:"model"`
}

// HTTPScorer calls the external scoring service.
type HTTPScorer struct {
	client *httputil.Client
}

// NewHTTPScorer wraps a service client pointed at the scorer.
func NewHTTPScorer(client *httputil.Client) *HTTPScorer {
	return &HTTPScorer{client: client}
}

// Score posts the assessment to the scorer and extracts its verdict.
func (s *HTTPScorer) Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error) {
	resp, err := s.client.Post(ctx, "/v1/score", req)
	if err != nil {
		return ScoreResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, _ := httputil.ReadAllWithLimit(resp.Body, 32<<10)
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return ScoreResponse{}, fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, msg)
	}

	body, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("read scorer response: %w", err)
	}
	parsed := gjson.ParseBytes(body)
	score := parsed.Get("score")
	if !score.Exists() {
		return ScoreResponse{}, fmt.Errorf("scorer response missing score field")
	}
	return ScoreResponse{
		Score:  score.Float(),
		Rating: parsed.Get("rating").String(),
		Model:  parsed.Get("model").String(),
	}, nil
}

// MockScorer applies the local formula. Used when no scorer service is
// configured and as the fallback when one is unreachable.
type MockScorer struct{}

// Score implements Scorer.
func (MockScorer) Score(_ context.Context, req ScoreRequest) (ScoreResponse, error) {
	score := scoring.Composite(req.WPM, req.Comprehension, req.Difficulty)
	return ScoreResponse{Score: score, Rating: scoring.Rating(score), Model: scoring.Model}, nil
}
