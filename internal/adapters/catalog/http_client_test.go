package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

func TestHTTPClientListsAndFetchesProducts(t *testing.T) {
	t.Parallel()
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products":
			lastQuery.Store(r.URL.RawQuery)
			_ = json.NewEncoder(w).Encode(map[string]any{"products": []domain.ProductCandidate{
				{ProductID: "p-1", Category: "shoes", Price: 10, Rating: 4},
				{ProductID: "p-2", Category: "books", Price: 20},
			}})
		case "/products/p-1":
			_ = json.NewEncoder(w).Encode(domain.ProductCandidate{ProductID: "p-1", Category: "shoes"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(ClientConfig{BaseURL: srv.URL + "/", BreakerName: "catalog-list-test"})
	require.NoError(t, err)
	ctx := context.Background()

	items, err := client.ListCandidates(ctx, ports.CandidateQuery{Limit: 5, Categories: []string{"shoes"}})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "category=shoes&limit=5", lastQuery.Load())

	product, err := client.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, "shoes", product.Category)

	_, err = client.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, gobreaker.StateClosed, client.State())
}

func TestHTTPClientBreakerOpensOnRepeatedFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(ClientConfig{
		BaseURL:          srv.URL,
		BreakerName:      "catalog-breaker-test",
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.ListCandidates(ctx, ports.CandidateQuery{})
		require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	}
	require.Equal(t, gobreaker.StateOpen, client.State())

	_, err = client.ListCandidates(ctx, ports.CandidateQuery{})
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	require.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientHonoursDeadline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(ClientConfig{BaseURL: srv.URL, BreakerName: "catalog-deadline-test"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.ListCandidates(ctx, ports.CandidateQuery{})
	require.Error(t, err)
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPClient(ClientConfig{})
	require.Error(t, err)
}

func TestStaticCatalogFiltersAndFails(t *testing.T) {
	t.Parallel()
	c := NewStaticCatalog(
		domain.ProductCandidate{ProductID: "p-1", Category: "Shoes"},
		domain.ProductCandidate{ProductID: "p-2", Category: "books"},
	)
	ctx := context.Background()

	items, err := c.ListCandidates(ctx, ports.CandidateQuery{Categories: []string{"shoes"}})
	require.NoError(t, err)
	require.Len(t, items, 1)

	c.Put(domain.ProductCandidate{ProductID: "p-2", Category: "toys"})
	product, err := c.GetProduct(ctx, "p-2")
	require.NoError(t, err)
	require.Equal(t, "toys", product.Category)

	c.FailWith(domain.ErrDependencyUnavailable)
	_, err = c.ListCandidates(ctx, ports.CandidateQuery{})
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	c.FailWith(nil)
	items, err = c.ListCandidates(ctx, ports.CandidateQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
}
