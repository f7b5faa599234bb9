package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/metrics"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

const statsRecommendationLimit = 10

// Recommend ranks catalog candidates for a user. Products the user already
// bought are never returned. Catalog failures and timeouts yield an empty
// result rather than an error.
func (s *Service) Recommend(ctx context.Context, userID string, limit int) ([]domain.Recommendation, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []domain.Recommendation{}, nil
	}
	defer observeRecommendation("personal", time.Now())

	profile, err := s.BuildProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RecommendationTimeout)
	defer cancel()

	candidates, err := s.catalog.ListCandidates(ctx, ports.CandidateQuery{Limit: s.cfg.CandidatePoolSize})
	if err != nil {
		s.degrade(ctx, "personal", err)
		return []domain.Recommendation{}, nil
	}
	purchased := profile.PurchasedProducts()
	eligible := make([]domain.ProductCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, bought := purchased[c.ProductID]; bought {
			continue
		}
		eligible = append(eligible, c)
	}
	return s.rank(ctx, "personal", eligible, profileScorer{profile: profile}, limit)
}

// SimilarProducts ranks candidates against one seed product, excluding the seed.
func (s *Service) SimilarProducts(ctx context.Context, productID string, limit int) ([]domain.Recommendation, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product_id is required", domain.ErrInvalidInput)
	}
	if limit == 0 {
		return []domain.Recommendation{}, nil
	}
	defer observeRecommendation("similar", time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RecommendationTimeout)
	defer cancel()

	seed, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.degrade(ctx, "similar", err)
		return []domain.Recommendation{}, nil
	}
	candidates, err := s.catalog.ListCandidates(ctx, ports.CandidateQuery{Limit: s.cfg.CandidatePoolSize})
	if err != nil {
		s.degrade(ctx, "similar", err)
		return []domain.Recommendation{}, nil
	}
	eligible := make([]domain.ProductCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ProductID == seed.ProductID {
			continue
		}
		eligible = append(eligible, c)
	}
	return s.rank(ctx, "similar", eligible, seedScorer{seed: seed}, limit)
}

// SeasonalRecommendations is the platform-wide trending pass.
func (s *Service) SeasonalRecommendations(ctx context.Context, limit int) ([]domain.Recommendation, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []domain.Recommendation{}, nil
	}
	defer observeRecommendation("seasonal", time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RecommendationTimeout)
	defer cancel()

	candidates, err := s.catalog.ListCandidates(ctx, ports.CandidateQuery{Limit: s.cfg.CandidatePoolSize})
	if err != nil {
		s.degrade(ctx, "seasonal", err)
		return []domain.Recommendation{}, nil
	}
	return s.rank(ctx, "seasonal", candidates, platformScorer{}, limit)
}

func (s *Service) GetRecommendationStats(ctx context.Context, userID string) (RecommendationStats, error) {
	profile, err := s.BuildProfile(ctx, userID)
	if err != nil {
		return RecommendationStats{}, err
	}
	recs, err := s.Recommend(ctx, userID, statsRecommendationLimit)
	if err != nil {
		return RecommendationStats{}, err
	}
	stats := RecommendationStats{
		UserID:             profile.UserID,
		TotalOrders:        profile.TotalOrders,
		ViewedProducts:     len(profile.ViewedProducts),
		FavoriteCategories: profile.FavoriteCategories,
		Recommendations:    len(recs),
	}
	if len(recs) > 0 {
		sum := 0.0
		for _, r := range recs {
			sum += r.Score
		}
		stats.AverageScore = domain.RoundCurrency(sum/float64(len(recs)), 4)
	}
	return stats, nil
}

func (s *Service) rank(ctx context.Context, kind string, candidates []domain.ProductCandidate, scorer candidateScorer, limit int) ([]domain.Recommendation, error) {
	scored, err := s.scoreCandidates(ctx, candidates, scorer)
	if err != nil {
		s.degrade(ctx, kind, err)
		return []domain.Recommendation{}, nil
	}
	return domain.RankRecommendations(scored, min(limit, s.cfg.MaxRecommendationLimit)), nil
}

func (s *Service) degrade(ctx context.Context, kind string, err error) {
	cause := "error"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		cause = "timeout"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		cause = "unavailable"
	}
	metrics.RecommendationDegraded.WithLabelValues(kind, cause).Inc()
	s.logger.WarnContext(ctx, "recommendation degraded to empty result",
		"module", "application.recommend",
		"layer", "application",
		"operation", kind,
		"outcome", "degraded",
		"cause", cause,
		"error", err,
	)
}

func observeRecommendation(kind string, start time.Time) {
	metrics.RecommendationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func checkLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative", domain.ErrInvalidInput)
	}
	return nil
}
