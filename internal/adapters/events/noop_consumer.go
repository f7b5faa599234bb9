package events

import (
	"context"
	"sync"
)

type NoopConsumer struct{}

func NewNoopConsumer() *NoopConsumer {
	return &NoopConsumer{}
}

func (n *NoopConsumer) Poll(_ context.Context, _ int) ([]Message, error) {
	return nil, nil
}

func (n *NoopConsumer) Commit(context.Context, ...Message) error { return nil }

// MemoryConsumer hands out messages pushed into it, in push order, and records
// which ones were committed.
type MemoryConsumer struct {
	mu        sync.Mutex
	pending   []Message
	committed []Message
}

func NewMemoryConsumer() *MemoryConsumer {
	return &MemoryConsumer{}
}

func (c *MemoryConsumer) Push(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, msgs...)
}

func (c *MemoryConsumer) Poll(_ context.Context, max int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if max <= 0 || max > len(c.pending) {
		max = len(c.pending)
	}
	out := c.pending[:max:max]
	c.pending = c.pending[max:]
	return out, nil
}

func (c *MemoryConsumer) Commit(_ context.Context, msgs ...Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, msgs...)
	return nil
}

func (c *MemoryConsumer) Committed() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.committed))
	copy(out, c.committed)
	return out
}
