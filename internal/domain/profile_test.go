package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildProfileAggregatesHistory(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := []OrderSummary{
		{
			OrderID:  "o-2",
			Total:    60,
			PlacedAt: now.Add(-time.Hour),
			Lines: []OrderLine{
				{ProductID: "p-3", Category: "books", Price: 20, Quantity: 3},
			},
		},
		{
			OrderID:  "o-1",
			Total:    140,
			PlacedAt: now.Add(-48 * time.Hour),
			Lines: []OrderLine{
				{ProductID: "p-1", Category: "shoes", Price: 100, Quantity: 1},
				{ProductID: "p-2", Category: "books", Price: 40, Quantity: 0},
			},
		},
	}

	profile := BuildProfile("u-1", orders, []string{"p-9", "p-1", "p-9", " "}, 7, now, 5)

	require.Equal(t, "u-1", profile.UserID)
	require.Equal(t, 2, profile.TotalOrders)
	require.Equal(t, int64(7), profile.Version)
	require.Equal(t, "o-1", profile.PurchaseHistory[0].OrderID)
	require.Equal(t, []string{"p-1", "p-9"}, profile.ViewedProducts)

	require.Len(t, profile.CategoryRanking, 2)
	require.Equal(t, "books", profile.CategoryRanking[0].Category)
	require.Equal(t, 4, profile.CategoryRanking[0].Count)
	require.InDelta(t, 0.8, profile.CategoryRanking[0].Weight, 1e-9)
	require.Equal(t, 0, profile.CategoryRank("books"))
	require.Equal(t, 1, profile.CategoryRank("shoes"))
	require.Equal(t, -1, profile.CategoryRank("toys"))

	require.InDelta(t, 160.0/3, profile.AverageLinePrice, 1e-9)
	require.InDelta(t, 100.0, profile.AverageOrderValue, 1e-9)
	require.True(t, profile.InPriceRange(50))
	require.False(t, profile.InPriceRange(100))

	purchased := profile.PurchasedProducts()
	require.Len(t, purchased, 3)
	require.Contains(t, purchased, "p-2")
}

func TestBuildProfileLimitsFavorites(t *testing.T) {
	t.Parallel()

	var lines []OrderLine
	for i, category := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		lines = append(lines, OrderLine{ProductID: category, Category: category, Price: 10, Quantity: 10 - i})
	}
	profile := BuildProfile("u-1", []OrderSummary{{OrderID: "o-1", Lines: lines}}, nil, 1, time.Now(), 5)

	require.Len(t, profile.FavoriteCategories, 5)
	require.Len(t, profile.CategoryRanking, 7)
	require.True(t, profile.IsFavorite("e"))
	require.False(t, profile.IsFavorite("f"))
}

func TestBuildProfileWithoutHistory(t *testing.T) {
	t.Parallel()

	profile := BuildProfile("u-1", nil, nil, 0, time.Now(), 0)

	require.False(t, profile.HasHistory())
	require.Empty(t, profile.FavoriteCategories)
	require.Zero(t, profile.AverageLinePrice)
	require.False(t, profile.InPriceRange(10))
}
