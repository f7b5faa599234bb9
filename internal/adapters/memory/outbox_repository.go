package memory

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type outboxEntry struct {
	record ports.OutboxRecord
}

func (s *Store) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.OutboxRecord, 0)
	for _, e := range s.outbox {
		if e.record.PublishedAt != nil {
			continue
		}
		out = append(out, e.record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, outboxID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.record.OutboxID == outboxID {
			published := at
			e.record.PublishedAt = &published
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) MarkFailed(_ context.Context, outboxID string, errMsg string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.record.OutboxID == outboxID {
			msg := errMsg
			e.record.RetryCount++
			e.record.LastError = &msg
			return nil
		}
	}
	return domain.ErrNotFound
}

var _ ports.OutboxRepository = (*Store)(nil)
