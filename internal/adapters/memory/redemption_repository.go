package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

func (s *Store) CodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *Store) GetByCode(_ context.Context, code string) (domain.RedemptionCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.codes[code]
	if !ok {
		return domain.RedemptionCode{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]domain.RedemptionCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RedemptionCode, 0)
	for _, r := range s.codes {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortCodes(out)
	return out, nil
}

func (s *Store) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]domain.RedemptionCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RedemptionCode, 0)
	for _, r := range s.codes {
		if r.Status == domain.RedemptionPending && now.After(r.ExpiresAt) {
			out = append(out, r)
		}
	}
	sortCodes(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExpired(_ context.Context, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.codes[code]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !r.ExpireIfDue(at) {
		return false, nil
	}
	s.codes[code] = r
	return true, nil
}

func sortCodes(items []domain.RedemptionCode) {
	slices.SortFunc(items, func(a, b domain.RedemptionCode) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
}

var _ ports.RedemptionRepository = (*Store)(nil)
