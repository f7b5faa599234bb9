package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/application"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

func seedCatalog(h *harness) {
	created := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	h.catalog.Put(
		domain.ProductCandidate{ProductID: "p-1", Name: "Runner", Category: "shoes", Price: 100, Rating: 5, CreatedAt: created},
		domain.ProductCandidate{ProductID: "p-2", Name: "Trail", Category: "shoes", Price: 95, Rating: 4.5, ViewCount: 100, CreatedAt: created},
		domain.ProductCandidate{ProductID: "p-3", Name: "Novel", Category: "books", Price: 100, Rating: 4, ViewCount: 50, CreatedAt: created},
		domain.ProductCandidate{ProductID: "p-4", Name: "Yo-yo", Category: "toys", Price: 10, Rating: 1, CreatedAt: created},
	)
}

func trackShoePurchase(t *testing.T, h *harness, userID string) {
	t.Helper()
	recorded, err := h.svc.TrackPurchase(context.Background(), application.TrackPurchaseInput{
		UserID:  userID,
		OrderID: "order-shoes",
		Total:   100,
		Lines:   []application.OrderLineInput{{ProductID: "p-1", Category: "shoes", Price: 100, Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, recorded)
}

func TestRecommendRanksAndExcludesPurchases(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)
	trackShoePurchase(t, h, "u-1")

	recs, err := h.svc.Recommend(context.Background(), "u-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.Equal(t, "p-2", recs[0].Product.ProductID)
	require.Equal(t, domain.RecommendationPersonalized, recs[0].Type)
	require.InDelta(t, 0.9625, recs[0].Score, 1e-9)

	require.Equal(t, "p-3", recs[1].Product.ProductID)
	require.Equal(t, domain.RecommendationCollaborative, recs[1].Type)
	require.Equal(t, "Within your usual price range", recs[1].Reason)
	require.InDelta(t, 0.55, recs[1].Score, 1e-9)

	for _, r := range recs {
		require.NotEqual(t, "p-1", r.Product.ProductID)
		require.GreaterOrEqual(t, r.Score, domain.ConfidenceFloor)
	}

	top, err := h.svc.Recommend(context.Background(), "u-1", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
}

func TestRecommendForUserWithoutHistoryIsTrending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)
	_, err := h.svc.RegisterUser(context.Background(), "u-new")
	require.NoError(t, err)

	recs, err := h.svc.Recommend(context.Background(), "u-new", 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	for _, r := range recs {
		require.Equal(t, domain.RecommendationTrending, r.Type)
		require.Equal(t, domain.NeutralScore, r.SubScores.Category)
	}
	require.Equal(t, "p-2", recs[0].Product.ProductID)
}

func TestRecommendLimitEdgeCases(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)
	trackShoePurchase(t, h, "u-1")
	ctx := context.Background()

	recs, err := h.svc.Recommend(ctx, "u-1", 0)
	require.NoError(t, err)
	require.NotNil(t, recs)
	require.Empty(t, recs)

	_, err = h.svc.Recommend(ctx, "u-1", -3)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.svc.Recommend(ctx, "ghost", 5)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecommendDegradesWhenCatalogFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)
	trackShoePurchase(t, h, "u-1")
	h.catalog.FailWith(domain.ErrDependencyUnavailable)

	recs, err := h.svc.Recommend(context.Background(), "u-1", 5)
	require.NoError(t, err)
	require.Empty(t, recs)

	seasonal, err := h.svc.SeasonalRecommendations(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, seasonal)
}

func TestSimilarProductsExcludesSeed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)
	ctx := context.Background()

	recs, err := h.svc.SimilarProducts(ctx, "p-1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	require.Equal(t, "p-2", recs[0].Product.ProductID)
	for _, r := range recs {
		require.NotEqual(t, "p-1", r.Product.ProductID)
		require.Equal(t, domain.RecommendationCategory, r.Type)
	}

	_, err = h.svc.SimilarProducts(ctx, "missing", 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSeasonalRecommendationsAreTrending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)

	recs, err := h.svc.SeasonalRecommendations(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "p-2", recs[0].Product.ProductID)
	require.Equal(t, "Trending right now", recs[0].Reason)
}

func TestRecommendationStats(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seedCatalog(h)
	trackShoePurchase(t, h, "u-1")
	require.NoError(t, h.svc.TrackView(context.Background(), "u-1", "p-3"))

	stats, err := h.svc.GetRecommendationStats(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalOrders)
	require.Equal(t, 1, stats.ViewedProducts)
	require.Equal(t, 2, stats.Recommendations)
	require.InDelta(t, (0.9625+0.55)/2, stats.AverageScore, 1e-4)
}
