package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

type CandidateQuery struct {
	Categories []string
	Limit      int
}

// CatalogReader is the external product catalog. Implementations must return
// within the caller's deadline.
type CatalogReader interface {
	ListCandidates(ctx context.Context, query CandidateQuery) ([]domain.ProductCandidate, error)
	GetProduct(ctx context.Context, productID string) (domain.ProductCandidate, error)
}

// ProfileCache returns (nil, nil) on a miss.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Set(ctx context.Context, profile domain.UserProfile, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
