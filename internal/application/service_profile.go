package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/metrics"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/validation"
)

// RegisterUser records the user and opens a bronze loyalty account. Calling it
// again returns the existing account.
func (s *Service) RegisterUser(ctx context.Context, userID string) (domain.LoyaltyAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.LoyaltyAccount{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	now := s.nowFn()
	if _, err := s.activity.EnsureUser(ctx, userID, now); err != nil {
		return domain.LoyaltyAccount{}, err
	}
	var account domain.LoyaltyAccount
	err := s.ledger.WithinUserLock(ctx, userID, func(tx ports.LedgerTx) error {
		var err error
		account, err = s.lockOrCreateAccount(ctx, tx, userID, now)
		return err
	})
	if err != nil {
		return domain.LoyaltyAccount{}, err
	}
	return account, nil
}

// BuildProfile returns the user's behavioral profile, serving it from cache
// when the cached copy was built from the current activity version.
func (s *Service) BuildProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	version, err := s.activity.ActivityVersion(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if cached := s.cachedProfile(ctx, userID, version); cached != nil {
		return *cached, nil
	}

	activity, err := s.activity.LoadActivity(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile := domain.BuildProfile(userID, activity.Orders, activity.ViewedProducts, activity.Version, s.nowFn(), s.cfg.FavoriteCategoryLimit)
	if err := s.profiles.Set(ctx, profile, s.cfg.ProfileCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "profile cache write failed",
			"module", "application.profile",
			"layer", "application",
			"operation", "build_profile",
			"outcome", "degraded",
			"user_id", userID,
			"error", err,
		)
	}
	return profile, nil
}

func (s *Service) cachedProfile(ctx context.Context, userID string, version int64) *domain.UserProfile {
	cached, err := s.profiles.Get(ctx, userID)
	if err != nil {
		metrics.ProfileCache.WithLabelValues("error").Inc()
		s.logger.WarnContext(ctx, "profile cache read failed",
			"module", "application.profile",
			"layer", "application",
			"operation", "build_profile",
			"outcome", "degraded",
			"user_id", userID,
			"error", err,
		)
		return nil
	}
	if cached == nil {
		metrics.ProfileCache.WithLabelValues("miss").Inc()
		return nil
	}
	if cached.Version != version {
		metrics.ProfileCache.WithLabelValues("stale").Inc()
		return nil
	}
	metrics.ProfileCache.WithLabelValues("hit").Inc()
	return cached
}

// TrackView records a product view and invalidates the user's cached profile.
func (s *Service) TrackView(ctx context.Context, userID, productID string) error {
	input := TrackViewInput{UserID: strings.TrimSpace(userID), ProductID: strings.TrimSpace(productID)}
	if err := validation.Struct(input); err != nil {
		return err
	}
	now := s.nowFn()
	if _, err := s.activity.EnsureUser(ctx, input.UserID, now); err != nil {
		return err
	}
	if _, err := s.activity.AppendView(ctx, input.UserID, input.ProductID, now); err != nil {
		return err
	}
	s.invalidateProfile(ctx, input.UserID)
	return nil
}

// TrackPurchase records a completed order in the user's history. It reports
// false when the order was already recorded.
func (s *Service) TrackPurchase(ctx context.Context, input TrackPurchaseInput) (bool, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.OrderID = strings.TrimSpace(input.OrderID)
	if err := validation.Struct(input); err != nil {
		return false, err
	}
	now := s.nowFn()
	placedAt := input.PlacedAt
	if placedAt.IsZero() {
		placedAt = now
	}
	order := domain.OrderSummary{
		OrderID:  input.OrderID,
		UserID:   input.UserID,
		Lines:    make([]domain.OrderLine, 0, len(input.Lines)),
		Total:    input.Total,
		PlacedAt: placedAt.UTC(),
	}
	for _, line := range input.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: strings.TrimSpace(line.ProductID),
			Category:  strings.TrimSpace(line.Category),
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
	}
	if _, err := s.activity.EnsureUser(ctx, input.UserID, now); err != nil {
		return false, err
	}
	_, recorded, err := s.activity.AppendPurchase(ctx, order)
	if err != nil {
		return false, err
	}
	if recorded {
		s.invalidateProfile(ctx, input.UserID)
	}
	return recorded, nil
}

// invalidateProfile drops the cached profile. A failed delete is tolerated
// because reads also compare activity versions.
func (s *Service) invalidateProfile(ctx context.Context, userID string) {
	if err := s.profiles.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "profile cache invalidation failed",
			"module", "application.profile",
			"layer", "application",
			"operation", "invalidate_profile",
			"outcome", "degraded",
			"user_id", userID,
			"error", err,
		)
	}
}
