package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/cache"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/catalog"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/memory"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/application"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedEntropy fills each read with the next byte value, so every call to
// domain.GenerateCode yields a code made of one repeated symbol.
type scriptedEntropy struct {
	mu     sync.Mutex
	values []byte
}

func (e *scriptedEntropy) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.values) == 0 {
		return 0, io.EOF
	}
	v := e.values[0]
	e.values = e.values[1:]
	for i := range p {
		p[i] = v
	}
	return len(p), nil
}

type harness struct {
	svc     *application.Service
	repos   memory.Repositories
	catalog *catalog.StaticCatalog
	cache   *cache.MemoryProfileCache
	clock   *fakeClock
}

type harnessOption func(*application.Dependencies)

func withLoyalty(rules domain.LoyaltyRules) harnessOption {
	return func(d *application.Dependencies) { d.Config.Loyalty = rules }
}

func withEntropy(r io.Reader) harnessOption {
	return func(d *application.Dependencies) { d.Entropy = r }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		repos:   memory.NewRepositories(),
		catalog: catalog.NewStaticCatalog(),
		cache:   cache.NewMemoryProfileCache(),
		clock:   newFakeClock(),
	}
	deps := application.Dependencies{
		Config: application.Config{
			Loyalty:                      domain.DefaultLoyaltyRules(),
			EnableDomainEventConsumption: true,
		},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Activity:    h.repos.Activity,
		Ledger:      h.repos.Ledger,
		Redemptions: h.repos.Redemptions,
		EventDedup:  h.repos.EventDedup,
		Profiles:    h.cache,
		Catalog:     h.catalog,
		Clock:       h.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = application.NewService(deps)
	return h
}

func (h *harness) credit(t *testing.T, userID, orderID string, amount float64) application.PointsCredit {
	t.Helper()
	out, err := h.svc.AddPoints(context.Background(), application.AddPointsInput{
		UserID:      userID,
		OrderID:     orderID,
		OrderAmount: amount,
	})
	require.NoError(t, err)
	return out
}

func (h *harness) redeem(userID string, cost int64) (domain.RedemptionCode, error) {
	return h.svc.RedeemPoints(context.Background(), application.RedeemPointsInput{
		UserID:      userID,
		PointsCost:  cost,
		RewardID:    "reward-10-off",
		RewardName:  "10 off",
		RewardType:  string(domain.RewardFixed),
		RewardValue: 10,
	})
}
