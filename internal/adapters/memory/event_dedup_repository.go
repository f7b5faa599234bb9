package memory

import (
	"context"
	"sort"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type dedupRecord struct {
	eventType   string
	processedAt time.Time
	expiresAt   time.Time
}

func (s *Store) IsDuplicate(_ context.Context, eventID string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.dedup[eventID]
	return ok && rec.expiresAt.After(now), nil
}

func (s *Store) MarkProcessed(_ context.Context, eventID, eventType string, processedAt, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[eventID] = dedupRecord{eventType: eventType, processedAt: processedAt, expiresAt: expiresAt}
	return nil
}

func (s *Store) PurgeExpired(_ context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lapsed := make([]string, 0)
	for id, rec := range s.dedup {
		if !rec.expiresAt.After(now) {
			lapsed = append(lapsed, id)
		}
	}
	sort.Slice(lapsed, func(i, j int) bool {
		a, b := s.dedup[lapsed[i]], s.dedup[lapsed[j]]
		if !a.expiresAt.Equal(b.expiresAt) {
			return a.expiresAt.Before(b.expiresAt)
		}
		return lapsed[i] < lapsed[j]
	})
	if limit > 0 && len(lapsed) > limit {
		lapsed = lapsed[:limit]
	}
	for _, id := range lapsed {
		delete(s.dedup, id)
	}
	return int64(len(lapsed)), nil
}

var _ ports.EventDedupRepository = (*Store)(nil)
