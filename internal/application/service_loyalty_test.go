package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/application"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

func TestRegisterUserOpensBronzeAccountOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.RegisterUser(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, domain.TierBronze, first.Tier)
	require.True(t, first.IsActive)
	require.Zero(t, first.TotalPoints)

	second, err := h.svc.RegisterUser(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, first.Sequence, second.Sequence)

	_, err = h.svc.RegisterUser(ctx, "  ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAddPointsUsesConfiguredRate(t *testing.T) {
	t.Parallel()
	rules := domain.DefaultLoyaltyRules()
	rules.PointsPerCurrency = 2
	h := newHarness(t, withLoyalty(rules))

	out := h.credit(t, "u-1", "order-1", 100)

	require.Equal(t, int64(200), out.PointsCredited)
	require.Equal(t, int64(200), out.Account.TotalPoints)
	require.Equal(t, int64(200), out.Account.LifetimePoints)
	require.Equal(t, int64(1), out.Account.TotalOrders)
	require.InDelta(t, 100.0, out.Account.TotalSpent, 1e-9)
	require.Equal(t, domain.ReasonOrderEarn, out.Transaction.Reason)
}

func TestAddPointsIsIdempotentPerOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	first := h.credit(t, "u-1", "order-1", 50)
	replay := h.credit(t, "u-1", "order-1", 50)

	require.False(t, first.Duplicate)
	require.True(t, replay.Duplicate)
	require.Equal(t, first.Transaction.ID, replay.Transaction.ID)
	require.Equal(t, int64(50), replay.Account.TotalPoints)

	txs, err := h.repos.Ledger.ListTransactions(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestAddPointsBelowMinimumLogsZeroCredit(t *testing.T) {
	t.Parallel()
	rules := domain.DefaultLoyaltyRules()
	rules.MinOrderAmount = 20
	h := newHarness(t, withLoyalty(rules))

	out := h.credit(t, "u-1", "order-1", 10)

	require.Zero(t, out.PointsCredited)
	require.Equal(t, int64(1), out.Account.TotalOrders)
	require.NoError(t, h.svc.VerifyLedger(context.Background(), "u-1"))
}

func TestAddPointsUpgradesTierAcrossThreshold(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.credit(t, "u-1", "order-1", 4990)
	out := h.credit(t, "u-1", "order-2", 20)

	require.True(t, out.TierChanged)
	require.Equal(t, domain.TierBronze, out.PreviousTier)
	require.Equal(t, domain.TierSilver, out.Account.Tier)
	require.Equal(t, int64(5010), out.Account.LifetimePoints)

	records, err := h.repos.Outbox.FetchUnpublished(context.Background(), 0)
	require.NoError(t, err)
	types := make([]string, 0, len(records))
	for _, r := range records {
		types = append(types, r.EventType)
	}
	require.Contains(t, types, domain.EventTierUpgraded)
}

func TestAddPointsRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.AddPoints(context.Background(), application.AddPointsInput{OrderAmount: 10})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.svc.AddPoints(context.Background(), application.AddPointsInput{UserID: "u-1", OrderAmount: -1})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConcurrentAddPointsNeverLosesCredits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	const workers = 64
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.AddPoints(ctx, application.AddPointsInput{
				UserID:      "u-race",
				OrderID:     fmt.Sprintf("order-%d", i),
				OrderAmount: 10,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	account, err := h.repos.Ledger.GetAccount(ctx, "u-race")
	require.NoError(t, err)
	require.Equal(t, int64(workers*10), account.TotalPoints)
	require.Equal(t, int64(workers), account.TotalOrders)
	require.NoError(t, h.svc.VerifyLedger(ctx, "u-race"))
}

func TestGetStatusReportsProgressAndNilForUnknown(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	status, err := h.svc.GetStatus(ctx, "ghost")
	require.NoError(t, err)
	require.Nil(t, status)

	h.credit(t, "u-1", "order-1", 2500)
	_, err = h.redeem("u-1", 500)
	require.NoError(t, err)

	status, err = h.svc.GetStatus(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Equal(t, int64(2000), status.Account.TotalPoints)
	require.Equal(t, domain.TierSilver, status.NextTier)
	require.Equal(t, int64(2500), status.PointsToNextTier)
	require.InDelta(t, 50.0, status.TierProgress, 1e-9)
	require.InDelta(t, 2000.0, status.PointsValue, 1e-9)
	require.Len(t, status.Transactions, 2)
	require.Len(t, status.ActiveRedemptions, 1)
}

func TestGetTopUsersOrdersByBalanceAndSkipsBlocked(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.credit(t, "u-a", "o-a", 100)
	h.credit(t, "u-b", "o-b", 300)
	h.credit(t, "u-c", "o-c", 100)
	h.credit(t, "u-d", "o-d", 900)
	_, err := h.svc.SetAccountBlocked(ctx, "u-d", true)
	require.NoError(t, err)

	top, err := h.svc.GetTopUsers(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(top))
	for _, a := range top {
		ids = append(ids, a.UserID)
	}
	require.Equal(t, []string{"u-b", "u-a", "u-c"}, ids)

	top, err = h.svc.GetTopUsers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)

	top, err = h.svc.GetTopUsers(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, top)

	_, err = h.svc.GetTopUsers(ctx, -1)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetPointsAnalytics(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.credit(t, "u-1", "o-1", 300)
	h.credit(t, "u-1", "o-2", 100)
	code, err := h.redeem("u-1", 150)
	require.NoError(t, err)
	_, err = h.svc.CancelRedemption(ctx, "u-1", code.Code)
	require.NoError(t, err)
	_, err = h.redeem("u-1", 50)
	require.NoError(t, err)

	out, err := h.svc.GetPointsAnalytics(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(400), out.TotalEarned)
	require.Equal(t, int64(200), out.TotalRedeemed)
	require.Equal(t, int64(150), out.TotalRefunded)
	require.Equal(t, int64(350), out.CurrentBalance)
	require.Equal(t, int64(400), out.LifetimePoints)
	require.InDelta(t, 200.0, out.AveragePointsPerOrder, 1e-9)

	_, err = h.svc.GetPointsAnalytics(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetAccountBlockedUnknownAccount(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.SetAccountBlocked(context.Background(), "ghost", true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAddPointsRejectsUncreditableAmount(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AddPoints(ctx, application.AddPointsInput{UserID: "u-1", OrderID: "o-1", OrderAmount: 1e19})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.repos.Ledger.GetAccount(ctx, "u-1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	h.credit(t, "u-1", "o-2", 100)
	_, err = h.svc.AddPoints(ctx, application.AddPointsInput{UserID: "u-1", OrderID: "o-3", OrderAmount: 5e18})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	account, err := h.repos.Ledger.GetAccount(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), account.TotalPoints)
	require.Equal(t, 100.0, account.TotalSpent)
	require.Equal(t, int64(1), account.TotalOrders)
}

func TestConcurrentCreditsAndRedemptionsKeepLedgerChained(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.credit(t, "u-race", "order-seed", 100)

	const pairs = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		redeemed int64
	)
	errs := make(chan error, 2*pairs)
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.AddPoints(ctx, application.AddPointsInput{
				UserID:      "u-race",
				OrderID:     fmt.Sprintf("order-%d", i),
				OrderAmount: 10,
			})
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := h.redeem("u-race", 15)
			if errors.Is(err, domain.ErrInsufficientBalance) {
				errs <- nil
				return
			}
			if err == nil {
				mu.Lock()
				redeemed += 15
				mu.Unlock()
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, h.svc.VerifyLedger(ctx, "u-race"))
	txs, err := h.repos.Ledger.ListTransactions(ctx, "u-race")
	require.NoError(t, err)
	var balance int64
	for _, tx := range txs {
		require.Equal(t, balance, tx.BalanceBefore)
		require.Equal(t, tx.BalanceBefore+tx.Delta, tx.BalanceAfter)
		require.GreaterOrEqual(t, tx.BalanceAfter, int64(0))
		balance = tx.BalanceAfter
	}

	account, err := h.repos.Ledger.GetAccount(ctx, "u-race")
	require.NoError(t, err)
	require.Equal(t, balance, account.TotalPoints)
	require.Equal(t, int64(100+pairs*10)-redeemed, account.TotalPoints)
	require.Equal(t, int64(100+pairs*10), account.LifetimePoints)
}

func TestTierIgnoresDebitsAndRefunds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.credit(t, "u-1", "o-1", 4990)
	code, err := h.redeem("u-1", 4000)
	require.NoError(t, err)
	_, err = h.svc.CancelRedemption(ctx, "u-1", code.Code)
	require.NoError(t, err)

	account, err := h.repos.Ledger.GetAccount(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, domain.TierBronze, account.Tier)
	require.Equal(t, int64(4990), account.TotalPoints)
	require.Equal(t, int64(4990), account.LifetimePoints)

	credit := h.credit(t, "u-1", "o-2", 20)
	require.True(t, credit.TierChanged)
	require.Equal(t, domain.TierSilver, credit.Account.Tier)

	_, err = h.redeem("u-1", 5000)
	require.NoError(t, err)
	account, err = h.repos.Ledger.GetAccount(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, domain.TierSilver, account.Tier)
	require.Equal(t, int64(10), account.TotalPoints)
	require.NoError(t, h.svc.VerifyLedger(ctx, "u-1"))
}
