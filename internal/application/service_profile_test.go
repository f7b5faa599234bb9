package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/application"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

func TestBuildProfileUnknownUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.BuildProfile(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.BuildProfile(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuildProfileIsCachedUntilActivityChanges(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	trackShoePurchase(t, h, "u-1")

	first, err := h.svc.BuildProfile(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalOrders)

	cached, err := h.cache.Get(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, first.Version, cached.Version)

	_, err = h.svc.TrackPurchase(ctx, application.TrackPurchaseInput{
		UserID:  "u-1",
		OrderID: "order-books",
		Total:   30,
		Lines: []application.OrderLineInput{
			{ProductID: "b-1", Category: "books", Price: 15, Quantity: 2},
		},
	})
	require.NoError(t, err)

	cached, err = h.cache.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Nil(t, cached)

	second, err := h.svc.BuildProfile(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 2, second.TotalOrders)
	require.Greater(t, second.Version, first.Version)
	require.Equal(t, "books", second.FavoriteCategories[0].Category)
}

func TestBuildProfileIgnoresStaleCacheEntry(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	trackShoePurchase(t, h, "u-1")

	stale, err := h.svc.BuildProfile(ctx, "u-1")
	require.NoError(t, err)
	require.NoError(t, h.svc.TrackView(ctx, "u-1", "p-7"))
	// Put the outdated copy back as if the invalidation had been lost.
	require.NoError(t, h.cache.Set(ctx, stale, 0))

	fresh, err := h.svc.BuildProfile(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, []string{"p-7"}, fresh.ViewedProducts)
}

func TestTrackPurchaseIsIdempotentAndAutoRegisters(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	trackShoePurchase(t, h, "u-1")
	recorded, err := h.svc.TrackPurchase(ctx, application.TrackPurchaseInput{
		UserID:  "u-1",
		OrderID: "order-shoes",
		Total:   100,
	})
	require.NoError(t, err)
	require.False(t, recorded)

	profile, err := h.svc.BuildProfile(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 1, profile.TotalOrders)
}

func TestTrackViewValidates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	err := h.svc.TrackView(context.Background(), "u-1", "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
