package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/metrics"
)

type Message struct {
	Topic string
	// EventType is resolved by the consumer from headers or the topic mapping.
	EventType string
	Key       string
	Payload   []byte

	raw *kafka.Message
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	Commit(ctx context.Context, msgs ...Message) error
}

// EventHandler applies one decoded inbound envelope.
type EventHandler interface {
	HandleDomainEvent(ctx context.Context, event contracts.EventEnvelope) error
}

type ConsumerWorker struct {
	logger   *slog.Logger
	consumer Consumer
	handler  EventHandler
	interval time.Duration
	// held keeps the unhandled tail of a batch that stopped on a retryable
	// failure; it is retried before anything new is polled.
	held []Message
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler EventHandler, interval time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ConsumerWorker{
		logger: logger, consumer: consumer, handler: handler, interval: interval,
	}
}

func (w *ConsumerWorker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce handles one batch and returns how many messages applied cleanly.
// Applied and poison messages are committed; a storage failure holds the rest
// of the batch for the next pass.
func (w *ConsumerWorker) ProcessOnce(ctx context.Context) (int, error) {
	batch := w.held
	w.held = nil
	if len(batch) == 0 {
		polled, err := w.consumer.Poll(ctx, 50)
		if err != nil {
			return 0, err
		}
		batch = polled
	}
	applied := 0
	for i, msg := range batch {
		var envelope contracts.EventEnvelope
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
			w.skip(ctx, msg, err)
			continue
		}
		if envelope.EventType == "" {
			envelope.EventType = msg.EventType
		}
		err := w.handler.HandleDomainEvent(ctx, envelope)
		switch {
		case err == nil:
			metrics.InboundEvents.WithLabelValues("applied").Inc()
			applied++
		case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, context.Canceled):
			metrics.InboundEvents.WithLabelValues("retry").Inc()
			w.held = batch[i:]
			if commitErr := w.consumer.Commit(ctx, batch[:i]...); commitErr != nil {
				return applied, errors.Join(err, commitErr)
			}
			return applied, err
		default:
			w.skip(ctx, msg, err)
		}
	}
	if err := w.consumer.Commit(ctx, batch...); err != nil {
		return applied, fmt.Errorf("commit inbound batch: %w", err)
	}
	return applied, nil
}

func (w *ConsumerWorker) skip(ctx context.Context, msg Message, err error) {
	metrics.InboundEvents.WithLabelValues("skipped").Inc()
	w.logger.WarnContext(ctx, "inbound event skipped",
		"module", "events.consumer_worker",
		"layer", "adapter",
		"operation", "handle_event",
		"outcome", "skipped",
		"topic", msg.Topic,
		"event_type", msg.EventType,
		"partition_key", msg.Key,
		"error", err,
	)
}

func (w *ConsumerWorker) String() string { return "consumer-worker" }
