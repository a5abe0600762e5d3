// Package main runs the ReadSpeed scoring service: a small standalone
// HTTP service the backend calls to score finished assessments.
package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/readspeed/backend/internal/httputil"
	"github.com/readspeed/backend/internal/scoring"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "scorer").Logger()

type scoreRequest struct {
	ResultID      string  `json:"result_id"`
	WPM           int     `json:"wpm" binding:"min=0"`
	Comprehension float64 `json:"comprehension" binding:"min=0,max=100"`
	Difficulty    string  `json:"difficulty"`
}

type scoreResponse struct {
	Score  float64 `json:"score"`
	Rating string  `json:"rating"`
	Model  string  `json:"model"`
}

// newRouter builds the service routes. apiKey, when non-empty, is
// required on every /v1 request.
func newRouter(apiKey string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": scoring.Model})
	})

	v1 := r.Group("/v1")
	if apiKey != "" {
		v1.Use(func(c *gin.Context) {
			if c.GetHeader(httputil.APIKeyHeader) != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
			c.Next()
		})
	}

	v1.POST("/score", func(c *gin.Context) {
		var req scoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid score request"})
			return
		}

		score := scoring.Composite(req.WPM, req.Comprehension, strings.ToLower(req.Difficulty))
		c.JSON(http.StatusOK, scoreResponse{
			Score:  score,
			Rating: scoring.Rating(score),
			Model:  scoring.Model,
		})
	})

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func main() {
	gin.SetMode(gin.ReleaseMode)

	addr := os.Getenv("SCORER_ADDR")
	if addr == "" {
		addr = ":8090"
	}

	router := newRouter(os.Getenv("SCORER_API_KEY"))
	logger.Info().Str("addr", addr).Msg("scorer listening")
	if err := router.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("scorer exited")
	}
}
