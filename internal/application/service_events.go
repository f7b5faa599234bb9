package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

// HandleDomainEvent applies an inbound envelope once. Redelivered events are
// acknowledged without side effects.
func (s *Service) HandleDomainEvent(ctx context.Context, event contracts.EventEnvelope) error {
	if !s.cfg.EnableDomainEventConsumption {
		return nil
	}
	if !isSupportedEventType(event.EventType) {
		return domain.ErrUnsupportedEventType
	}
	if event.EventClass != "" && event.EventClass != domain.CanonicalEventClassDomain {
		return domain.ErrUnsupportedEventClass
	}
	if err := validateDomainEventEnvelope(event, "data.user_id", "user_id"); err != nil {
		return err
	}

	now := s.nowFn()
	dup, err := s.eventDedup.IsDuplicate(ctx, event.EventID, now)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	switch event.EventType {
	case domain.EventUserRegistered:
		var payload contracts.UserRegisteredPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode user.registered payload: %w", err)
		}
		if err := checkPartitionKey(event, payload.UserID); err != nil {
			return err
		}
		_, err = s.RegisterUser(ctx, payload.UserID)
	case domain.EventOrderCompleted:
		var payload contracts.OrderCompletedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode order.completed payload: %w", err)
		}
		if err := checkPartitionKey(event, payload.UserID); err != nil {
			return err
		}
		err = s.handleOrderCompleted(ctx, payload, event.OccurredAt)
	case domain.EventProductViewed:
		var payload contracts.ProductViewedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return fmt.Errorf("decode product.viewed payload: %w", err)
		}
		if err := checkPartitionKey(event, payload.UserID); err != nil {
			return err
		}
		err = s.TrackView(ctx, payload.UserID, payload.ProductID)
	default:
		err = domain.ErrUnsupportedEventType
	}
	if err != nil {
		return err
	}
	return s.eventDedup.MarkProcessed(ctx, event.EventID, event.EventType, now, now.Add(s.cfg.EventDedupTTL))
}

// PurgeProcessedEvents drops dedup markers whose retention has lapsed.
func (s *Service) PurgeProcessedEvents(ctx context.Context) (int64, error) {
	return s.eventDedup.PurgeExpired(ctx, s.nowFn(), s.cfg.SweepBatchSize)
}

// handleOrderCompleted feeds the profile history and the ledger. Both steps are
// idempotent per order id, so a partially applied event can be replayed.
func (s *Service) handleOrderCompleted(ctx context.Context, payload contracts.OrderCompletedPayload, occurredAt time.Time) error {
	placedAt := occurredAt
	if parsed, err := time.Parse(time.RFC3339, payload.CompletedAt); err == nil {
		placedAt = parsed
	}
	lines := make([]OrderLineInput, 0, len(payload.Lines))
	for _, l := range payload.Lines {
		lines = append(lines, OrderLineInput{ProductID: l.ProductID, Category: l.Category, Price: l.Price, Quantity: l.Quantity})
	}
	if _, err := s.TrackPurchase(ctx, TrackPurchaseInput{
		UserID:   payload.UserID,
		OrderID:  payload.OrderID,
		Lines:    lines,
		Total:    payload.OrderAmount,
		PlacedAt: placedAt,
	}); err != nil {
		return err
	}
	_, err := s.AddPoints(ctx, AddPointsInput{
		UserID:      payload.UserID,
		OrderID:     payload.OrderID,
		OrderAmount: payload.OrderAmount,
	})
	return err
}

func (s *Service) enqueue(ctx context.Context, tx ports.LedgerTx, eventType, userID string, data any, now time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	envelope := contracts.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		EventClass:       domain.CanonicalEventClassDomain,
		OccurredAt:       now,
		PartitionKeyPath: "data.user_id",
		PartitionKey:     userID,
		SourceService:    s.cfg.ServiceName,
		TraceID:          uuid.NewString(),
		SchemaVersion:    "v1",
		Data:             raw,
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, ports.OutboxEvent{
		EventID:      envelope.EventID,
		EventType:    eventType,
		PartitionKey: userID,
		Payload:      blob,
		OccurredAt:   now,
	})
}

func isSupportedEventType(eventType string) bool {
	switch eventType {
	case domain.EventUserRegistered, domain.EventOrderCompleted, domain.EventProductViewed:
		return true
	default:
		return false
	}
}

func validateDomainEventEnvelope(event contracts.EventEnvelope, allowedPartitionPaths ...string) error {
	if strings.TrimSpace(event.EventID) == "" ||
		strings.TrimSpace(event.EventType) == "" ||
		strings.TrimSpace(event.PartitionKey) == "" ||
		len(event.Data) == 0 {
		return domain.ErrInvalidEnvelope
	}
	path := strings.TrimSpace(event.PartitionKeyPath)
	for _, allowed := range allowedPartitionPaths {
		if path == allowed {
			return nil
		}
	}
	return domain.ErrInvalidEnvelope
}

func checkPartitionKey(event contracts.EventEnvelope, userID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(event.PartitionKey) != strings.TrimSpace(userID) {
		return domain.ErrInvalidEnvelope
	}
	return nil
}
