package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL      string
	DatabaseMaxConns int32
	RedisURL         string
	ProfileCacheTTL  time.Duration

	KafkaBrokers        []string
	KafkaConsumerGroup  string
	TopicUserRegistered string
	TopicOrderCompleted string
	TopicProductViewed  string
	// TopicLoyaltyEvents receives every outbound loyalty.* event.
	TopicLoyaltyEvents string

	CatalogURL              string
	CatalogTimeout          time.Duration
	CatalogFailureThreshold int
	CatalogOpenTimeout      time.Duration

	PointsPerCurrency float64
	CurrencyPerPoint  float64
	PointsExpiryDays  int
	MinOrderAmount    float64
	MaxPointsPerOrder int64

	FavoriteCategoryLimit  int
	CandidatePoolSize      int
	MaxRecommendationLimit int
	RecommendationTimeout  time.Duration
	ScoringParallelism     int

	EventDedupTTL        time.Duration
	ConsumerPollInterval time.Duration
	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	SweepInterval        time.Duration
	SweepBatchSize       int

	EnableDomainEventConsumption bool
	EnableRedemptionSweep        bool
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Storage struct {
		DatabaseURL     string `yaml:"database_url"`
		MaxConns        int32  `yaml:"max_conns"`
		RedisURL        string `yaml:"redis_url"`
		ProfileCacheTTL string `yaml:"profile_cache_ttl"`
	} `yaml:"storage"`
	Dependencies struct {
		KafkaBrokers            []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup      string   `yaml:"kafka_consumer_group"`
		TopicUserRegistered     string   `yaml:"topic_user_registered"`
		TopicOrderCompleted     string   `yaml:"topic_order_completed"`
		TopicProductViewed      string   `yaml:"topic_product_viewed"`
		TopicLoyaltyEvents      string   `yaml:"topic_loyalty_events"`
		CatalogURL              string   `yaml:"catalog_url"`
		CatalogTimeout          string   `yaml:"catalog_timeout"`
		CatalogFailureThreshold int      `yaml:"catalog_failure_threshold"`
		CatalogOpenTimeout      string   `yaml:"catalog_open_timeout"`
	} `yaml:"dependencies"`
	Loyalty struct {
		PointsPerCurrency float64 `yaml:"points_per_currency"`
		CurrencyPerPoint  float64 `yaml:"currency_per_point"`
		PointsExpiryDays  int     `yaml:"points_expiry_days"`
		MinOrderAmount    float64 `yaml:"min_order_amount"`
		MaxPointsPerOrder int64   `yaml:"max_points_per_order"`
	} `yaml:"loyalty"`
	Recommendations struct {
		FavoriteCategoryLimit int    `yaml:"favorite_category_limit"`
		CandidatePoolSize     int    `yaml:"candidate_pool_size"`
		MaxLimit              int    `yaml:"max_limit"`
		Timeout               string `yaml:"timeout"`
		ScoringParallelism    int    `yaml:"scoring_parallelism"`
	} `yaml:"recommendations"`
	Workers struct {
		EventDedupTTL        string `yaml:"event_dedup_ttl"`
		ConsumerPollInterval string `yaml:"consumer_poll_interval"`
		OutboxPollInterval   string `yaml:"outbox_poll_interval"`
		OutboxBatchSize      int    `yaml:"outbox_batch_size"`
		SweepInterval        string `yaml:"sweep_interval"`
		SweepBatchSize       int    `yaml:"sweep_batch_size"`
	} `yaml:"workers"`
	FeatureFlags struct {
		EnableDomainEventConsumption *bool `yaml:"enable_domain_event_consumption"`
		EnableRedemptionSweep        *bool `yaml:"enable_redemption_sweep"`
	} `yaml:"feature_flags"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                    "M46-Engagement-Engine",
		HTTPPort:                     8080,
		GRPCPort:                     9090,
		DatabaseMaxConns:             10,
		ProfileCacheTTL:              15 * time.Minute,
		KafkaConsumerGroup:           "m46-engagement-engine",
		TopicUserRegistered:          "user.registered",
		TopicOrderCompleted:          "order.completed",
		TopicProductViewed:           "product.viewed",
		TopicLoyaltyEvents:           "loyalty.events",
		CatalogTimeout:               2 * time.Second,
		CatalogFailureThreshold:      5,
		CatalogOpenTimeout:           10 * time.Second,
		PointsPerCurrency:            1,
		CurrencyPerPoint:             1,
		PointsExpiryDays:             365,
		FavoriteCategoryLimit:        5,
		CandidatePoolSize:            200,
		MaxRecommendationLimit:       50,
		RecommendationTimeout:        800 * time.Millisecond,
		ScoringParallelism:           4,
		EventDedupTTL:                7 * 24 * time.Hour,
		ConsumerPollInterval:         2 * time.Second,
		OutboxPollInterval:           2 * time.Second,
		OutboxBatchSize:              100,
		SweepInterval:                time.Minute,
		SweepBatchSize:               200,
		EnableDomainEventConsumption: true,
		EnableRedemptionSweep:        true,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if err := applyFile(&cfg, f); err != nil {
			return Config{}, err
		}
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseMaxConns = int32(envInt("DATABASE_MAX_CONNS", int(cfg.DatabaseMaxConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.ProfileCacheTTL = envDuration("PROFILE_CACHE_TTL", cfg.ProfileCacheTTL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.TopicUserRegistered = envOrDefault("KAFKA_TOPIC_USER_REGISTERED", cfg.TopicUserRegistered)
	cfg.TopicOrderCompleted = envOrDefault("KAFKA_TOPIC_ORDER_COMPLETED", cfg.TopicOrderCompleted)
	cfg.TopicProductViewed = envOrDefault("KAFKA_TOPIC_PRODUCT_VIEWED", cfg.TopicProductViewed)
	cfg.TopicLoyaltyEvents = envOrDefault("KAFKA_TOPIC_LOYALTY_EVENTS", cfg.TopicLoyaltyEvents)
	cfg.CatalogURL = envOrDefault("CATALOG_URL", cfg.CatalogURL)
	cfg.CatalogTimeout = envDuration("CATALOG_TIMEOUT", cfg.CatalogTimeout)
	cfg.CatalogFailureThreshold = envInt("CATALOG_FAILURE_THRESHOLD", cfg.CatalogFailureThreshold)
	cfg.CatalogOpenTimeout = envDuration("CATALOG_OPEN_TIMEOUT", cfg.CatalogOpenTimeout)
	cfg.PointsPerCurrency = envFloat("LOYALTY_POINTS_PER_CURRENCY", cfg.PointsPerCurrency)
	cfg.CurrencyPerPoint = envFloat("LOYALTY_CURRENCY_PER_POINT", cfg.CurrencyPerPoint)
	cfg.PointsExpiryDays = envInt("LOYALTY_POINTS_EXPIRY_DAYS", cfg.PointsExpiryDays)
	cfg.MinOrderAmount = envFloat("LOYALTY_MIN_ORDER_AMOUNT", cfg.MinOrderAmount)
	cfg.MaxPointsPerOrder = int64(envInt("LOYALTY_MAX_POINTS_PER_ORDER", int(cfg.MaxPointsPerOrder)))
	cfg.MaxRecommendationLimit = envInt("RECOMMENDATION_MAX_LIMIT", cfg.MaxRecommendationLimit)
	cfg.RecommendationTimeout = envDuration("RECOMMENDATION_TIMEOUT", cfg.RecommendationTimeout)
	cfg.ScoringParallelism = envInt("RECOMMENDATION_SCORING_PARALLELISM", cfg.ScoringParallelism)
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.SweepInterval = envDuration("REDEMPTION_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.EnableDomainEventConsumption = envBool("ENABLE_DOMAIN_EVENT_CONSUMPTION", cfg.EnableDomainEventConsumption)
	cfg.EnableRedemptionSweep = envBool("ENABLE_REDEMPTION_SWEEP", cfg.EnableRedemptionSweep)

	return cfg, nil
}

func applyFile(cfg *Config, f configFile) error {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	cfg.DatabaseURL = strings.TrimSpace(f.Storage.DatabaseURL)
	if f.Storage.MaxConns > 0 {
		cfg.DatabaseMaxConns = f.Storage.MaxConns
	}
	cfg.RedisURL = strings.TrimSpace(f.Storage.RedisURL)
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.KafkaConsumerGroup != "" {
		cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
	}
	if f.Dependencies.TopicUserRegistered != "" {
		cfg.TopicUserRegistered = f.Dependencies.TopicUserRegistered
	}
	if f.Dependencies.TopicOrderCompleted != "" {
		cfg.TopicOrderCompleted = f.Dependencies.TopicOrderCompleted
	}
	if f.Dependencies.TopicProductViewed != "" {
		cfg.TopicProductViewed = f.Dependencies.TopicProductViewed
	}
	if f.Dependencies.TopicLoyaltyEvents != "" {
		cfg.TopicLoyaltyEvents = f.Dependencies.TopicLoyaltyEvents
	}
	cfg.CatalogURL = strings.TrimSpace(f.Dependencies.CatalogURL)
	if f.Dependencies.CatalogFailureThreshold > 0 {
		cfg.CatalogFailureThreshold = f.Dependencies.CatalogFailureThreshold
	}
	if f.Loyalty.PointsPerCurrency > 0 {
		cfg.PointsPerCurrency = f.Loyalty.PointsPerCurrency
	}
	if f.Loyalty.CurrencyPerPoint > 0 {
		cfg.CurrencyPerPoint = f.Loyalty.CurrencyPerPoint
	}
	if f.Loyalty.PointsExpiryDays > 0 {
		cfg.PointsExpiryDays = f.Loyalty.PointsExpiryDays
	}
	if f.Loyalty.MinOrderAmount > 0 {
		cfg.MinOrderAmount = f.Loyalty.MinOrderAmount
	}
	if f.Loyalty.MaxPointsPerOrder > 0 {
		cfg.MaxPointsPerOrder = f.Loyalty.MaxPointsPerOrder
	}
	if f.Recommendations.FavoriteCategoryLimit > 0 {
		cfg.FavoriteCategoryLimit = f.Recommendations.FavoriteCategoryLimit
	}
	if f.Recommendations.CandidatePoolSize > 0 {
		cfg.CandidatePoolSize = f.Recommendations.CandidatePoolSize
	}
	if f.Recommendations.MaxLimit > 0 {
		cfg.MaxRecommendationLimit = f.Recommendations.MaxLimit
	}
	if f.Recommendations.ScoringParallelism > 0 {
		cfg.ScoringParallelism = f.Recommendations.ScoringParallelism
	}
	if f.Workers.OutboxBatchSize > 0 {
		cfg.OutboxBatchSize = f.Workers.OutboxBatchSize
	}
	if f.Workers.SweepBatchSize > 0 {
		cfg.SweepBatchSize = f.Workers.SweepBatchSize
	}
	if f.FeatureFlags.EnableDomainEventConsumption != nil {
		cfg.EnableDomainEventConsumption = *f.FeatureFlags.EnableDomainEventConsumption
	}
	if f.FeatureFlags.EnableRedemptionSweep != nil {
		cfg.EnableRedemptionSweep = *f.FeatureFlags.EnableRedemptionSweep
	}

	durations := []struct {
		key    string
		raw    string
		target *time.Duration
	}{
		{"storage.profile_cache_ttl", f.Storage.ProfileCacheTTL, &cfg.ProfileCacheTTL},
		{"dependencies.catalog_timeout", f.Dependencies.CatalogTimeout, &cfg.CatalogTimeout},
		{"dependencies.catalog_open_timeout", f.Dependencies.CatalogOpenTimeout, &cfg.CatalogOpenTimeout},
		{"recommendations.timeout", f.Recommendations.Timeout, &cfg.RecommendationTimeout},
		{"workers.event_dedup_ttl", f.Workers.EventDedupTTL, &cfg.EventDedupTTL},
		{"workers.consumer_poll_interval", f.Workers.ConsumerPollInterval, &cfg.ConsumerPollInterval},
		{"workers.outbox_poll_interval", f.Workers.OutboxPollInterval, &cfg.OutboxPollInterval},
		{"workers.sweep_interval", f.Workers.SweepInterval, &cfg.SweepInterval},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.target = parsed
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
