// Package metrics holds the Prometheus collectors for the engagement engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PointsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engagement_points_credited_total",
		Help: "Loyalty points credited from orders.",
	})

	PointsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engagement_points_redeemed_total",
		Help: "Loyalty points debited by redemptions.",
	})

	TierUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_tier_upgrades_total",
		Help: "Tier upgrades by destination tier.",
	}, []string{"tier"})

	RedemptionCodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_redemption_codes_total",
		Help: "Redemption code lifecycle transitions.",
	}, []string{"status"})

	CodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engagement_redemption_code_collisions_total",
		Help: "Generated redemption codes rejected because they already existed.",
	})

	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_ledger_operations_total",
		Help: "Ledger operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	RecommendationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engagement_recommendation_duration_seconds",
		Help:    "Time spent producing a recommendation set.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"kind"})

	RecommendationDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_recommendation_degraded_total",
		Help: "Recommendation calls answered from a fallback path.",
	}, []string{"kind", "cause"})

	ProfileCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_profile_cache_total",
		Help: "Profile cache lookups by result.",
	}, []string{"result"})

	OutboxPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_outbox_publishes_total",
		Help: "Outbox publish attempts by event type and outcome.",
	}, []string{"event_type", "outcome"})

	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_inbound_events_total",
		Help: "Inbound events by outcome.",
	}, []string{"outcome"})

	CatalogBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engagement_catalog_breaker_state",
		Help: "Catalog circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})
)
