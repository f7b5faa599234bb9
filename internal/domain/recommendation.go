package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

const (
	WeightCategory = 0.30
	WeightPrice    = 0.25
	WeightRating   = 0.25
	WeightTrending = 0.20

	ConfidenceFloor = 0.4
	NeutralScore    = 0.5
	MaxRating       = 5.0
	// DefaultRating is used for products the catalog has no rating for.
	DefaultRating = 3.0
)

type RecommendationType string

const (
	RecommendationCollaborative RecommendationType = "collaborative"
	RecommendationTrending      RecommendationType = "trending"
	RecommendationPersonalized  RecommendationType = "personalized"
	RecommendationCategory      RecommendationType = "category"
)

type ProductCandidate struct {
	ProductID  string    `json:"product_id"`
	Name       string    `json:"name,omitempty"`
	Category   string    `json:"category"`
	Price      float64   `json:"price"`
	Rating     float64   `json:"rating"`
	ViewCount  int64     `json:"view_count"`
	LikeCount  int64     `json:"like_count"`
	OrderCount int64     `json:"order_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (p ProductCandidate) Engagement() float64 {
	return float64(p.ViewCount + p.LikeCount + p.OrderCount)
}

type SubScores struct {
	Category float64 `json:"category"`
	Price    float64 `json:"price"`
	Rating   float64 `json:"rating"`
	Trending float64 `json:"trending"`
}

func (s SubScores) Composite() float64 {
	total := s.Category*WeightCategory + s.Price*WeightPrice + s.Rating*WeightRating + s.Trending*WeightTrending
	return Clamp(total, 0, 1)
}

type Recommendation struct {
	Product   ProductCandidate   `json:"product"`
	Score     float64            `json:"score"`
	Reason    string             `json:"reason"`
	Type      RecommendationType `json:"type"`
	SubScores SubScores          `json:"sub_scores"`
}

// CategoryMatch scores a category by its rank in the user's ranking. Favorites
// score 1.0; categories ranked past the favorites halve per step; unranked
// categories score 0.
func CategoryMatch(rank, favoriteCount int) float64 {
	if rank < 0 {
		return 0
	}
	if rank < favoriteCount {
		return 1
	}
	return math.Pow(0.5, float64(rank-favoriteCount+1))
}

func PriceFit(preferred, price float64) float64 {
	if preferred <= 0 {
		return NeutralScore
	}
	return Clamp(1-math.Abs(preferred-price)/preferred, 0, 1)
}

func RatingScore(rating float64) float64 {
	if rating <= 0 || math.IsNaN(rating) {
		rating = DefaultRating
	}
	return Clamp(rating/MaxRating, 0, 1)
}

// TrendScore normalizes engagement against the candidate-set maximum.
func TrendScore(engagement, maxEngagement float64) float64 {
	if maxEngagement <= 0 {
		return 0
	}
	return Clamp(engagement/maxEngagement, 0, 1)
}

func Clamp(value, minValue, maxValue float64) float64 {
	if math.IsNaN(value) {
		return minValue
	}
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

// RankRecommendations drops entries below the confidence floor, orders by
// score then recency, removes duplicate products and truncates to limit.
func RankRecommendations(items []Recommendation, limit int) []Recommendation {
	if limit <= 0 {
		return []Recommendation{}
	}
	kept := make([]Recommendation, 0, len(items))
	for _, item := range items {
		if item.Score < ConfidenceFloor {
			continue
		}
		kept = append(kept, item)
	}
	slices.SortStableFunc(kept, func(a, b Recommendation) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		if c := b.Product.CreatedAt.Compare(a.Product.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Product.ProductID, b.Product.ProductID)
	})
	seen := make(map[string]struct{}, len(kept))
	out := make([]Recommendation, 0, min(limit, len(kept)))
	for _, item := range kept {
		if _, dup := seen[item.Product.ProductID]; dup {
			continue
		}
		seen[item.Product.ProductID] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
