// Package httpserver is the operational HTTP surface of the worker: probes,
// build info and Prometheus metrics. Analysis requests do not enter here.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

type Server struct {
	echo *echo.Echo
	port string

	metricsHandler http.Handler
	healthChecks   []HealthCheck
	clock          clockwork.Clock
	startTime      time.Time
}

// NewServer wires the ops routes. metricsHandler serves /metrics and may be nil.
func NewServer(port string, metricsHandler http.Handler, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		port:           port,
		metricsHandler: metricsHandler,
		healthChecks:   healthChecks,
		clock:          clock,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting ops server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
