package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server owns the listener and the root router. Versioned handlers are
// mounted through the register callback.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(port int, requestTimeout time.Duration, health HealthCheck, register func(chi.Router), logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	r := NewRouter(requestTimeout, health, register, &l)
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: &l,
	}
}

// NewRouter builds the middleware chain plus /health and /metrics.
func NewRouter(requestTimeout time.Duration, health HealthCheck, register func(chi.Router), logger *zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(logger), RequestLog(logger))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if health != nil {
			if err := health(ctx); err != nil {
				logger.Warn().Err(err).Msg("health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(api chi.Router) {
		if requestTimeout > 0 {
			api.Use(Timeout(requestTimeout))
		}
		if register != nil {
			register(api)
		}
	})
	return r
}

// Start blocks until the listener stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
