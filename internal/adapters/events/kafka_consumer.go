package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
)

// HeaderEventType names the event carried by a message. Publishers in this
// service set it; messages without it fall back to the topic mapping.
const HeaderEventType = "event_type"

type KafkaConsumerConfig struct {
	Brokers []string
	GroupID string
	// EventTopics maps each inbound event type to the topic it arrives on.
	EventTopics map[string]string
	MaxWait     time.Duration
	// QuietAfter ends a poll early once no message arrives for this long.
	QuietAfter time.Duration
}

// KafkaConsumer fetches inbound engagement events without committing them.
// Offsets move only through Commit, after the worker has applied a message.
type KafkaConsumer struct {
	reader       *kafka.Reader
	eventByTopic map[string]string
	quietAfter   time.Duration
}

func NewKafkaConsumer(cfg KafkaConsumerConfig) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	eventByTopic := make(map[string]string, len(cfg.EventTopics))
	topics := make([]string, 0, len(cfg.EventTopics))
	for eventType, topic := range cfg.EventTopics {
		if topic == "" {
			continue
		}
		if prior, ok := eventByTopic[topic]; ok && prior != eventType {
			// Shared topics must carry the event type header.
			eventByTopic[topic] = ""
			continue
		}
		eventByTopic[topic] = eventType
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one topic")
	}
	slices.Sort(topics)
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	if cfg.QuietAfter <= 0 {
		cfg.QuietAfter = 250 * time.Millisecond
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	return &KafkaConsumer{reader: reader, eventByTopic: eventByTopic, quietAfter: cfg.QuietAfter}, nil
}

// Poll fetches up to max messages, returning early once the reader goes quiet.
func (c *KafkaConsumer) Poll(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	out := make([]Message, 0, max)
	for range max {
		fetchCtx, cancel := context.WithTimeout(ctx, c.quietAfter)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				return out, nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return out, ctx.Err()
			default:
				return out, err
			}
		}
		out = append(out, c.toMessage(msg))
	}
	return out, nil
}

func (c *KafkaConsumer) toMessage(msg kafka.Message) Message {
	eventType := c.eventByTopic[msg.Topic]
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType && len(h.Value) > 0 {
			eventType = string(h.Value)
			break
		}
	}
	return Message{
		Topic:     msg.Topic,
		EventType: eventType,
		Key:       string(msg.Key),
		Payload:   msg.Value,
		raw:       &msg,
	}
}

// Commit acknowledges handled messages. Messages that did not come from this
// reader are ignored.
func (c *KafkaConsumer) Commit(ctx context.Context, msgs ...Message) error {
	raw := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.raw != nil {
			raw = append(raw, *m.raw)
		}
	}
	if len(raw) == 0 {
		return nil
	}
	return c.reader.CommitMessages(ctx, raw...)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
