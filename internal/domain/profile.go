package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	DefaultFavoriteCategoryLimit = 5
	PriceTolerance               = 0.30
)

type OrderLine struct {
	ProductID string  `json:"product_id"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type OrderSummary struct {
	OrderID  string      `json:"order_id"`
	UserID   string      `json:"user_id"`
	Lines    []OrderLine `json:"lines"`
	Total    float64     `json:"total"`
	PlacedAt time.Time   `json:"placed_at"`
}

type CategoryWeight struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Weight   float64 `json:"weight"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// UserProfile is a derived, cacheable view over a user's purchase and view
// events. Version is the activity version it was built from; a cached profile
// whose version lags the store is discarded.
type UserProfile struct {
	UserID              string           `json:"user_id"`
	FavoriteCategories  []CategoryWeight `json:"favorite_categories"`
	CategoryRanking     []CategoryWeight `json:"category_ranking"`
	PreferredPriceRange PriceRange       `json:"preferred_price_range"`
	AverageLinePrice    float64          `json:"average_line_price"`
	AverageOrderValue   float64          `json:"average_order_value"`
	PurchaseHistory     []OrderSummary   `json:"purchase_history"`
	ViewedProducts      []string         `json:"viewed_products"`
	TotalOrders         int              `json:"total_orders"`
	Version             int64            `json:"version"`
	LastUpdated         time.Time        `json:"last_updated"`
}

// BuildProfile aggregates orders and views into a profile. It is pure: the
// same inputs always yield the same profile.
func BuildProfile(userID string, orders []OrderSummary, views []string, version int64, now time.Time, favoriteLimit int) UserProfile {
	if favoriteLimit <= 0 {
		favoriteLimit = DefaultFavoriteCategoryLimit
	}
	history := make([]OrderSummary, len(orders))
	copy(history, orders)
	slices.SortStableFunc(history, func(a, b OrderSummary) int {
		if c := a.PlacedAt.Compare(b.PlacedAt); c != 0 {
			return c
		}
		return strings.Compare(a.OrderID, b.OrderID)
	})

	counts := make(map[string]int)
	totalLines := 0
	priceSum := 0.0
	pricedLines := 0
	orderValueSum := 0.0
	for _, order := range history {
		orderValueSum += order.Total
		for _, line := range order.Lines {
			qty := line.Quantity
			if qty <= 0 {
				qty = 1
			}
			if category := strings.TrimSpace(line.Category); category != "" {
				counts[category] += qty
				totalLines += qty
			}
			if line.Price > 0 {
				priceSum += line.Price
				pricedLines++
			}
		}
	}

	ranking := make([]CategoryWeight, 0, len(counts))
	for category, count := range counts {
		ranking = append(ranking, CategoryWeight{
			Category: category,
			Count:    count,
			Weight:   float64(count) / float64(totalLines),
		})
	}
	slices.SortFunc(ranking, func(a, b CategoryWeight) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Category, b.Category)
	})
	favorites := ranking
	if len(favorites) > favoriteLimit {
		favorites = favorites[:favoriteLimit]
	}

	profile := UserProfile{
		UserID:             userID,
		FavoriteCategories: slices.Clone(favorites),
		CategoryRanking:    ranking,
		PurchaseHistory:    history,
		ViewedProducts:     uniqueSorted(views),
		TotalOrders:        len(history),
		Version:            version,
		LastUpdated:        now,
	}
	if pricedLines > 0 {
		avg := priceSum / float64(pricedLines)
		profile.AverageLinePrice = avg
		profile.PreferredPriceRange = PriceRange{Min: avg * (1 - PriceTolerance), Max: avg * (1 + PriceTolerance)}
	}
	if len(history) > 0 {
		profile.AverageOrderValue = orderValueSum / float64(len(history))
	}
	return profile
}

func (p UserProfile) HasHistory() bool {
	return p.TotalOrders > 0
}

// PurchasedProducts returns every product id that appears in the purchase history.
func (p UserProfile) PurchasedProducts() map[string]struct{} {
	out := make(map[string]struct{})
	for _, order := range p.PurchaseHistory {
		for _, line := range order.Lines {
			out[line.ProductID] = struct{}{}
		}
	}
	return out
}

// CategoryRank is the position of category in the full ranking, or -1.
func (p UserProfile) CategoryRank(category string) int {
	for i, cw := range p.CategoryRanking {
		if cw.Category == category {
			return i
		}
	}
	return -1
}

func (p UserProfile) IsFavorite(category string) bool {
	for _, cw := range p.FavoriteCategories {
		if cw.Category == category {
			return true
		}
	}
	return false
}

func (p UserProfile) InPriceRange(price float64) bool {
	if p.AverageLinePrice <= 0 {
		return false
	}
	return price >= p.PreferredPriceRange.Min && price <= p.PreferredPriceRange.Max
}

func uniqueSorted(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
