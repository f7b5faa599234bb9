package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.HTTPPort)
	require.Equal(t, 1.0, cfg.PointsPerCurrency)
	require.Equal(t, 1.0, cfg.CurrencyPerPoint)
	require.Equal(t, 365, cfg.PointsExpiryDays)
	require.Equal(t, 800*time.Millisecond, cfg.RecommendationTimeout)
	require.Equal(t, "loyalty.events", cfg.TopicLoyaltyEvents)
	require.True(t, cfg.EnableDomainEventConsumption)
	require.Empty(t, cfg.DatabaseURL)
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := writeConfig(t, `
service:
  http_port: 18080
storage:
  redis_url: " redis://cache:6379/0 "
  profile_cache_ttl: 5m
dependencies:
  kafka_brokers: ["kafka-1:9092", " ", "kafka-2:9092"]
  catalog_url: http://catalog:8080
  catalog_timeout: 500ms
loyalty:
  points_per_currency: 2
  points_expiry_days: 90
recommendations:
  max_limit: 20
feature_flags:
  enable_redemption_sweep: false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 18080, cfg.HTTPPort)
	require.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	require.Equal(t, 5*time.Minute, cfg.ProfileCacheTTL)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "http://catalog:8080", cfg.CatalogURL)
	require.Equal(t, 500*time.Millisecond, cfg.CatalogTimeout)
	require.Equal(t, 2.0, cfg.PointsPerCurrency)
	require.Equal(t, 90, cfg.PointsExpiryDays)
	require.Equal(t, 20, cfg.MaxRecommendationLimit)
	require.False(t, cfg.EnableRedemptionSweep)
	require.True(t, cfg.EnableDomainEventConsumption)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "loyalty:\n  points_per_currency: 2\n")
	t.Setenv("LOYALTY_POINTS_PER_CURRENCY", "3.5")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("ENABLE_DOMAIN_EVENT_CONSUMPTION", "off")
	t.Setenv("RECOMMENDATION_TIMEOUT", "not-a-duration")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3.5, cfg.PointsPerCurrency)
	require.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	require.False(t, cfg.EnableDomainEventConsumption)
	require.Equal(t, 800*time.Millisecond, cfg.RecommendationTimeout)
}

func TestLoadConfigRejectsBadDurations(t *testing.T) {
	path := writeConfig(t, "recommendations:\n  timeout: soon\n")
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "recommendations.timeout")

	path = writeConfig(t, "service: [")
	_, err = LoadConfig(path)
	require.Error(t, err)
}
