package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/application"
)

func TestNewRuntimeFallsBackToInMemoryAdapters(t *testing.T) {
	rt, err := NewRuntime(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	svc := rt.Service()
	require.NotNil(t, svc)
	ctx := context.Background()

	credit, err := svc.AddPoints(ctx, application.AddPointsInput{UserID: "u-1", OrderID: "o-1", OrderAmount: 42})
	require.NoError(t, err)
	require.Equal(t, int64(42), credit.PointsCredited)

	published, err := rt.outboxWorker.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, published)

	recs, err := svc.SeasonalRecommendations(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.NotNil(t, rt.sweeper)
}

func TestNewRuntimeOpensSQLiteStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:file:"+filepath.Join(t.TempDir(), "engagement.db"))
	rt, err := NewRuntime(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	ctx := context.Background()

	_, err = rt.Service().AddPoints(ctx, application.AddPointsInput{UserID: "u-1", OrderID: "o-1", OrderAmount: 42})
	require.NoError(t, err)
	replay, err := rt.Service().AddPoints(ctx, application.AddPointsInput{UserID: "u-1", OrderID: "o-1", OrderAmount: 42})
	require.NoError(t, err)
	require.True(t, replay.Duplicate)
	require.NoError(t, rt.Service().VerifyLedger(ctx, "u-1"))
}

type tickingService struct {
	ticks atomic.Int32
}

func (s *tickingService) Serve(ctx context.Context) error {
	for {
		s.ticks.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSupervisorTreeStopsCleanlyOnCancel(t *testing.T) {
	t.Parallel()
	tree := newSupervisorTree("test", slog.New(slog.NewTextHandler(io.Discard, nil)), TreeConfig{ShutdownTimeout: time.Second})
	worker := &tickingService{}
	tree.workers.Add(worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.serve(ctx) }()
	require.Eventually(t, func() bool { return worker.ticks.Load() > 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}
