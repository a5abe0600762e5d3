// Package ops serves the operational endpoints on a listener separate
// from the public API: Prometheus metrics, health and pprof.
package ops

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/readspeed/backend/internal/logging"
	"github.com/readspeed/backend/internal/metrics"
)

// Pinger reports backend health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter builds the ops router. mx may be nil to skip /metrics and
// pinger may be nil to make /readyz unconditionally ready.
func NewRouter(mx *metrics.Metrics, pinger Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if pinger != nil {
			if err := pinger.Ping(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	if mx != nil {
		r.Handle("/metrics", mx.Handler())
	}

	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Handle("/{name}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
		}))
	})

	return r
}

// Server runs the ops listener with its own lifecycle.
type Server struct {
	srv *http.Server
	log *logging.Logger
}

// NewServer wraps the ops router in an HTTP server bound to addr.
func NewServer(addr string, mx *metrics.Metrics, pinger Pinger, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewDefault("ops")
	}
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(mx, pinger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		log: log,
	}
}

// Start serves until Stop is called. It blocks; run it in a goroutine.
func (s *Server) Start() error {
	s.log.WithField("addr", s.srv.Addr).Info("ops listener started")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains the listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
