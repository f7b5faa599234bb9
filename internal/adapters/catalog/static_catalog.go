package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

// StaticCatalog serves a fixed product set from memory.
type StaticCatalog struct {
	mu       sync.RWMutex
	products []domain.ProductCandidate
	err      error
}

func NewStaticCatalog(products ...domain.ProductCandidate) *StaticCatalog {
	return &StaticCatalog{products: slices.Clone(products)}
}

func (c *StaticCatalog) Put(products ...domain.ProductCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		idx := slices.IndexFunc(c.products, func(existing domain.ProductCandidate) bool {
			return existing.ProductID == p.ProductID
		})
		if idx >= 0 {
			c.products[idx] = p
			continue
		}
		c.products = append(c.products, p)
	}
}

// FailWith makes every read return err until cleared with nil.
func (c *StaticCatalog) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *StaticCatalog) ListCandidates(ctx context.Context, query ports.CandidateQuery) ([]domain.ProductCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]domain.ProductCandidate, 0, len(c.products))
	for _, p := range c.products {
		if len(query.Categories) > 0 && !slices.ContainsFunc(query.Categories, func(category string) bool {
			return strings.EqualFold(category, p.Category)
		}) {
			continue
		}
		out = append(out, p)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (c *StaticCatalog) GetProduct(ctx context.Context, productID string) (domain.ProductCandidate, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProductCandidate{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return domain.ProductCandidate{}, c.err
	}
	for _, p := range c.products {
		if p.ProductID == productID {
			return p, nil
		}
	}
	return domain.ProductCandidate{}, domain.ErrNotFound
}

var _ ports.CatalogReader = (*StaticCatalog)(nil)
