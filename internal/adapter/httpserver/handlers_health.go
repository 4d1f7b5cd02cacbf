package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	apperrors "github.com/roberjo/AuraStream-sub000/internal/platform/errors"
	"github.com/roberjo/AuraStream-sub000/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency probe. Checks run concurrently.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.probe(startupProbeTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.probe(readinessProbeTimeout))
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return writeJSON(c, map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	})
}

// probe answers 200 when every check passes within timeout. Otherwise it returns an
// unavailable error naming the failed checks in registration order.
func (s *Server) probe(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		errs := make([]error, len(s.healthChecks))
		var wg sync.WaitGroup
		for i, hc := range s.healthChecks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = hc.Check(ctx)
			}()
		}
		wg.Wait()

		checks := make(map[string]string, len(s.healthChecks))
		var failed []string
		for i, hc := range s.healthChecks {
			if errs[i] != nil {
				checks[hc.Name] = errs[i].Error()
				failed = append(failed, hc.Name)
				continue
			}
			checks[hc.Name] = "ok"
		}

		if len(failed) > 0 {
			return apperrors.UnavailableError("not ready", nil).
				WithContext("failed_checks", failed).
				WithContext("checks", checks)
		}
		return writeJSON(c, map[string]any{"status": "ready", "checks": checks})
	}
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, version.Get())
}

func writeJSON(c echo.Context, body any) error {
	if err := c.JSON(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to write %s response: %w", c.Path(), err)
	}
	return nil
}
