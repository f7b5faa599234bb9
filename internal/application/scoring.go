package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	trendingReasonThreshold = 0.75
	highRatingThreshold     = 4.0
	bestSellerOrders        = 100
)

type candidateScorer interface {
	score(candidate domain.ProductCandidate, maxEngagement float64) domain.Recommendation
}

// profileScorer scores against a user profile. Users without purchases get
// neutral category and price sub-scores so they take the same path as
// everyone else.
type profileScorer struct {
	profile domain.UserProfile
}

func (p profileScorer) score(candidate domain.ProductCandidate, maxEngagement float64) domain.Recommendation {
	sub := domain.SubScores{
		Category: domain.NeutralScore,
		Price:    domain.NeutralScore,
		Rating:   domain.RatingScore(candidate.Rating),
		Trending: domain.TrendScore(candidate.Engagement(), maxEngagement),
	}
	if p.profile.HasHistory() {
		sub.Category = domain.CategoryMatch(p.profile.CategoryRank(candidate.Category), len(p.profile.FavoriteCategories))
		sub.Price = domain.PriceFit(p.profile.AverageLinePrice, candidate.Price)
	}
	rec := domain.Recommendation{Product: candidate, Score: sub.Composite(), SubScores: sub}
	switch {
	case !p.profile.HasHistory():
		rec.Type = domain.RecommendationTrending
		rec.Reason = popularityReason(candidate, sub)
	case p.profile.IsFavorite(candidate.Category):
		rec.Type = domain.RecommendationPersonalized
		rec.Reason = fmt.Sprintf("Because you like %s", candidate.Category)
	case sub.Trending >= trendingReasonThreshold:
		rec.Type = domain.RecommendationTrending
		rec.Reason = "Trending right now"
	default:
		rec.Type = domain.RecommendationCollaborative
		switch {
		case p.profile.InPriceRange(candidate.Price):
			rec.Reason = "Within your usual price range"
		case candidate.Rating >= highRatingThreshold:
			rec.Reason = "Highly rated by customers"
		case candidate.OrderCount > bestSellerOrders:
			rec.Reason = "Best seller"
		default:
			rec.Reason = "Popular with customers like you"
		}
	}
	return rec
}

// seedScorer scores candidates against a single product instead of a profile.
type seedScorer struct {
	seed domain.ProductCandidate
}

func (s seedScorer) score(candidate domain.ProductCandidate, maxEngagement float64) domain.Recommendation {
	category := 0.0
	if strings.EqualFold(candidate.Category, s.seed.Category) {
		category = 1
	}
	sub := domain.SubScores{
		Category: category,
		Price:    domain.PriceFit(s.seed.Price, candidate.Price),
		Rating:   domain.RatingScore(candidate.Rating),
		Trending: domain.TrendScore(candidate.Engagement(), maxEngagement),
	}
	label := s.seed.Name
	if label == "" {
		label = s.seed.ProductID
	}
	return domain.Recommendation{
		Product:   candidate,
		Score:     sub.Composite(),
		SubScores: sub,
		Type:      domain.RecommendationCategory,
		Reason:    "Similar to " + label,
	}
}

type platformScorer struct{}

func (platformScorer) score(candidate domain.ProductCandidate, maxEngagement float64) domain.Recommendation {
	sub := domain.SubScores{
		Category: domain.NeutralScore,
		Price:    domain.NeutralScore,
		Rating:   domain.RatingScore(candidate.Rating),
		Trending: domain.TrendScore(candidate.Engagement(), maxEngagement),
	}
	return domain.Recommendation{
		Product:   candidate,
		Score:     sub.Composite(),
		SubScores: sub,
		Type:      domain.RecommendationTrending,
		Reason:    popularityReason(candidate, sub),
	}
}

func popularityReason(candidate domain.ProductCandidate, sub domain.SubScores) string {
	switch {
	case sub.Trending >= trendingReasonThreshold:
		return "Trending right now"
	case candidate.OrderCount > bestSellerOrders:
		return "Best seller"
	case candidate.Rating >= highRatingThreshold:
		return "Highly rated by customers"
	default:
		return "Popular this season"
	}
}

// scoreCandidates fans scoring out over bounded goroutines. Each worker owns a
// disjoint slice range so results need no locking.
func (s *Service) scoreCandidates(ctx context.Context, candidates []domain.ProductCandidate, scorer candidateScorer) ([]domain.Recommendation, error) {
	maxEngagement := 0.0
	for _, c := range candidates {
		maxEngagement = max(maxEngagement, c.Engagement())
	}
	out := make([]domain.Recommendation, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ScoringParallelism)
	for start := 0; start < len(candidates); start += s.cfg.ScoringChunkSize {
		end := min(start+s.cfg.ScoringChunkSize, len(candidates))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = scorer.score(candidates[i], maxEngagement)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
