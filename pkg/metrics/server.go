package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/aof/pkg/log"
)

// DefaultAddr is the default bind address for the metrics endpoint.
const DefaultAddr = ":9464"

// Server exposes /metrics, /health, /ready, and /live over HTTP.
type Server struct {
	httpServer *http.Server
	collector  *Collector
	logger     zerolog.Logger
}

// NewServer builds the metrics HTTP server. The collector may be nil when
// the caller drives gauge updates itself.
func NewServer(addr string, collector *Collector) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		collector: collector,
		logger:    log.WithComponent("metrics"),
	}
}

// Start begins serving until the context is cancelled. It blocks.
func (s *Server) Start(ctx context.Context) error {
	if s.collector != nil {
		s.collector.Start()
		defer s.collector.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Metrics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
