// Package http serves the operational endpoints: liveness, readiness and metrics.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/contracts"
)

// ReadinessCheck reports whether one backing dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func NewRouter(logger *slog.Logger, checks ...ReadinessCheck) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", readinessHandler(logger, checks))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func readinessHandler(logger *slog.Logger, checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		results := make([]contracts.ReadinessCheckResult, 0, len(checks))
		var firstErr error
		for _, check := range checks {
			result := contracts.ReadinessCheckResult{Name: check.Name, Status: "ok"}
			if err := check.Check(ctx); err != nil {
				result.Status = "failed"
				result.Error = err.Error()
				if firstErr == nil {
					firstErr = err
				}
				logger.WarnContext(ctx, "readiness check failed",
					"module", "http.router",
					"layer", "adapter",
					"operation", "readyz",
					"outcome", "failure",
					"check", check.Name,
					"error", err,
				)
			}
			results = append(results, result)
		}
		if firstErr != nil {
			_, code := mapDomainError(firstErr)
			writeJSON(w, http.StatusServiceUnavailable, contracts.ErrorResponse{
				Status: "error",
				Error: contracts.ErrorPayload{
					Code:      code,
					Message:   "not ready",
					RequestID: requestIDFromContext(r.Context()),
				},
			})
			return
		}
		writeSuccess(w, http.StatusOK, "ready", results)
	}
}
