// Package catalog reads product candidates from the external catalog.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/metrics"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type ClientConfig struct {
	BaseURL          string
	Timeout          time.Duration
	BreakerName      string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// HTTPClient talks to the catalog's JSON API through a circuit breaker. An
// open breaker fails fast with domain.ErrDependencyUnavailable.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]domain.ProductCandidate]
}

type listResponse struct {
	Products []domain.ProductCandidate `json:"products"`
}

func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("catalog client requires a base url")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "catalog"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[[]domain.ProductCandidate](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    30 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CatalogBreakerState.WithLabelValues(name).Set(breakerGauge(to))
		},
	})
	metrics.CatalogBreakerState.WithLabelValues(cfg.BreakerName).Set(0)
	return &HTTPClient{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}, nil
}

func (c *HTTPClient) ListCandidates(ctx context.Context, query ports.CandidateQuery) ([]domain.ProductCandidate, error) {
	params := url.Values{}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	for _, category := range query.Categories {
		params.Add("category", category)
	}
	endpoint := c.baseURL + "/products"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	out, err := c.breaker.Execute(func() ([]domain.ProductCandidate, error) {
		var resp listResponse
		if err := c.getJSON(ctx, endpoint, &resp); err != nil {
			return nil, err
		}
		return resp.Products, nil
	})
	if err != nil {
		return nil, mapBreakerError(err)
	}
	return out, nil
}

func (c *HTTPClient) GetProduct(ctx context.Context, productID string) (domain.ProductCandidate, error) {
	endpoint := c.baseURL + "/products/" + url.PathEscape(productID)
	out, err := c.breaker.Execute(func() ([]domain.ProductCandidate, error) {
		var product domain.ProductCandidate
		if err := c.getJSON(ctx, endpoint, &product); err != nil {
			return nil, err
		}
		return []domain.ProductCandidate{product}, nil
	})
	if err != nil {
		return domain.ProductCandidate{}, mapBreakerError(err)
	}
	if len(out) == 0 {
		return domain.ProductCandidate{}, domain.ErrNotFound
	}
	return out[0], nil
}

func (c *HTTPClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: catalog returned status %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode catalog response: %v", domain.ErrDependencyUnavailable, err)
	}
	return nil
}

func mapBreakerError(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrDependencyUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
}

func breakerGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

var _ ports.CatalogReader = (*HTTPClient)(nil)
