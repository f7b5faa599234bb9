package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthReporterFollowsChecks(t *testing.T) {
	t.Parallel()
	var failing atomic.Bool
	reporter := NewHealthReporter(func(context.Context) error {
		if failing.Load() {
			return errors.New("database down")
		}
		return nil
	})

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	Register(server, reporter)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := grpc_health_v1.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, reporter.Refresh(ctx))
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())

	failing.Store(true)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, reporter.Refresh(ctx))
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestHealthReporterServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	reporter := NewHealthReporter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, reporter.Serve(ctx), context.Canceled)
	resp, err := reporter.server.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
