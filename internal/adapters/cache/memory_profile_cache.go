// Package cache holds profile cache adapters.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type memoryEntry struct {
	profile   domain.UserProfile
	expiresAt time.Time
}

// MemoryProfileCache is the process-local fallback used when no redis is configured.
type MemoryProfileCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

func NewMemoryProfileCache() *MemoryProfileCache {
	return &MemoryProfileCache{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

func (c *MemoryProfileCache) Get(_ context.Context, userID string) (*domain.UserProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !c.nowFn().Before(entry.expiresAt) {
		delete(c.entries, userID)
		return nil, nil
	}
	out := cloneProfile(entry.profile)
	return &out, nil
}

func (c *MemoryProfileCache) Set(_ context.Context, profile domain.UserProfile, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := memoryEntry{profile: cloneProfile(profile)}
	if ttl > 0 {
		entry.expiresAt = c.nowFn().Add(ttl)
	}
	c.entries[profile.UserID] = entry
	return nil
}

func (c *MemoryProfileCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

func cloneProfile(p domain.UserProfile) domain.UserProfile {
	p.FavoriteCategories = slices.Clone(p.FavoriteCategories)
	p.CategoryRanking = slices.Clone(p.CategoryRanking)
	p.ViewedProducts = slices.Clone(p.ViewedProducts)
	history := make([]domain.OrderSummary, 0, len(p.PurchaseHistory))
	for _, o := range p.PurchaseHistory {
		o.Lines = slices.Clone(o.Lines)
		history = append(history, o)
	}
	p.PurchaseHistory = history
	return p
}

var _ ports.ProfileCache = (*MemoryProfileCache)(nil)
