package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

func TestWithinUserLockDiscardsStagedWritesOnError(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		account, err := tx.CreateAccount(ctx, domain.NewLoyaltyAccount("u-1", now))
		if err != nil {
			return err
		}
		txn, err := account.Apply("t-1", domain.LedgerEntry{Delta: 10, Reason: domain.ReasonOrderEarn, OrderID: "o-1", CountsToLifetime: true}, now)
		if err != nil {
			return err
		}
		require.NoError(t, tx.SaveAccount(ctx, account))
		require.NoError(t, tx.AppendTransaction(ctx, txn))

		staged, found, err := tx.LockAccount(ctx)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(10), staged.TotalPoints)
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = store.GetAccount(ctx, "u-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	txs, err := store.ListTransactions(ctx, "u-1")
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestWithinUserLockRejectsCancelledContext(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinUserLock(ctx, "u-1", func(ports.LedgerTx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestCommitDetectsDuplicateCodes(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	code := domain.RedemptionCode{Code: "AAAAAAAAAAAA", UserID: "u-1", Status: domain.RedemptionPending}

	require.NoError(t, store.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		return tx.CreateRedemption(ctx, code)
	}))

	err := store.WithinUserLock(ctx, "u-2", func(tx ports.LedgerTx) error {
		other := code
		other.UserID = "u-2"
		return tx.CreateRedemption(ctx, other)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	exists, err := store.CodeExists(ctx, code.Code)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestOrderCreditLookupIsScopedPerUser(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		account, err := tx.CreateAccount(ctx, domain.NewLoyaltyAccount("u-1", now))
		if err != nil {
			return err
		}
		txn, err := account.Apply("t-1", domain.LedgerEntry{Delta: 5, Reason: domain.ReasonOrderEarn, OrderID: "o-1"}, now)
		if err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, txn)
	}))

	require.NoError(t, store.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		found, err := tx.FindOrderCredit(ctx, "o-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		return nil
	}))
	require.NoError(t, store.WithinUserLock(ctx, "u-2", func(tx ports.LedgerTx) error {
		found, err := tx.FindOrderCredit(ctx, "o-1")
		require.NoError(t, err)
		require.Nil(t, found)
		return nil
	}))
}

func TestActivityRequiresRegisteredUser(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()

	_, err := store.AppendView(ctx, "ghost", "p-1", time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)

	created, err := store.EnsureUser(ctx, "u-1", time.Now())
	require.NoError(t, err)
	require.True(t, created)
	version, err := store.ActivityVersion(ctx, "u-1")
	require.NoError(t, err)
	require.Zero(t, version)

	v1, err := store.AppendView(ctx, "u-1", "p-1", time.Now())
	require.NoError(t, err)
	v2, err := store.AppendView(ctx, "u-1", "p-1", time.Now())
	require.NoError(t, err)
	require.Greater(t, v2, v1)

	activity, err := store.LoadActivity(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, []string{"p-1"}, activity.ViewedProducts)
}

func TestPurgeExpiredDropsOldestMarkersFirst(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.MarkProcessed(ctx, "evt-old", domain.EventOrderCompleted, now, now.Add(time.Hour)))
	require.NoError(t, store.MarkProcessed(ctx, "evt-mid", domain.EventOrderCompleted, now, now.Add(2*time.Hour)))
	require.NoError(t, store.MarkProcessed(ctx, "evt-new", domain.EventOrderCompleted, now, now.Add(48*time.Hour)))

	purged, err := store.PurgeExpired(ctx, now.Add(3*time.Hour), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
	dup, err := store.IsDuplicate(ctx, "evt-old", now)
	require.NoError(t, err)
	require.False(t, dup)
	dup, err = store.IsDuplicate(ctx, "evt-mid", now)
	require.NoError(t, err)
	require.True(t, dup)

	purged, err = store.PurgeExpired(ctx, now.Add(3*time.Hour), 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
	dup, err = store.IsDuplicate(ctx, "evt-new", now.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, dup)
}
