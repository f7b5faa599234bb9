// Package grpc exposes the standard gRPC health service for the engine.
package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "engagement.v1.EngagementEngine"

type CheckFunc func(ctx context.Context) error

// HealthReporter owns the health server and flips the engine's status from
// the configured checks.
type HealthReporter struct {
	server *health.Server
	checks []CheckFunc
}

func NewHealthReporter(checks ...CheckFunc) *HealthReporter {
	server := health.NewServer()
	server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{server: server, checks: checks}
}

func Register(server grpc.ServiceRegistrar, reporter *HealthReporter) {
	grpc_health_v1.RegisterHealthServer(server, reporter.server)
}

// Refresh runs every check and records SERVING only when all pass.
func (h *HealthReporter) Refresh(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for _, check := range h.checks {
		if err := check(ctx); err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	h.server.SetServingStatus(ServiceName, status)
	return status
}

// Serve refreshes the status on every tick until ctx ends, then marks the
// server as shutting down.
func (h *HealthReporter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		h.Refresh(checkCtx)
		cancel()
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *HealthReporter) String() string { return "grpc-health-reporter" }
