package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"google.golang.org/grpc"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// supervisorTree splits transports from background workers so a crashing
// worker restarts without touching the listeners.
type supervisorTree struct {
	root      *suture.Supervisor
	transport *suture.Supervisor
	workers   *suture.Supervisor
}

func newSupervisorTree(name string, logger *slog.Logger, cfg TreeConfig) *supervisorTree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	handler := &sutureslog.Handler{Logger: logger}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = handler.MustHook()

	root := suture.New(name, rootSpec)
	transport := suture.New("transport", childSpec)
	workers := suture.New("workers", childSpec)
	root.Add(transport)
	root.Add(workers)
	return &supervisorTree{root: root, transport: transport, workers: workers}
}

func (t *supervisorTree) serve(ctx context.Context) error {
	err := t.root.Serve(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// httpServerService adapts http.Server to suture's context-driven lifecycle.
type httpServerService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func (h *httpServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpServerService) String() string { return "ops-http-server" }

type grpcServerService struct {
	server *grpc.Server
	addr   string
}

func (g *grpcServerService) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.server.Serve(lis)
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("grpc server failed: %w", err)
	case <-ctx.Done():
		g.server.GracefulStop()
		<-errCh
		return ctx.Err()
	}
}

func (g *grpcServerService) String() string { return "grpc-server" }
