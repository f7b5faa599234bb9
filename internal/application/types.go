package application

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
)

type Config struct {
	ServiceName string
	Loyalty     domain.LoyaltyRules

	FavoriteCategoryLimit  int
	CandidatePoolSize      int
	MaxRecommendationLimit int
	RecommendationTimeout  time.Duration
	ScoringParallelism     int
	ScoringChunkSize       int
	ProfileCacheTTL        time.Duration

	MaxCodeAttempts int
	SweepBatchSize  int

	EventDedupTTL                time.Duration
	EnableDomainEventConsumption bool
}

type Service struct {
	cfg    Config
	logger *slog.Logger

	activity    ports.ActivityRepository
	ledger      ports.LedgerRepository
	redemptions ports.RedemptionRepository
	eventDedup  ports.EventDedupRepository
	profiles    ports.ProfileCache
	catalog     ports.CatalogReader

	entropy io.Reader
	nowFn   func() time.Time
}

type Dependencies struct {
	Config      Config
	Logger      *slog.Logger
	Activity    ports.ActivityRepository
	Ledger      ports.LedgerRepository
	Redemptions ports.RedemptionRepository
	EventDedup  ports.EventDedupRepository
	Profiles    ports.ProfileCache
	Catalog     ports.CatalogReader
	// Entropy feeds redemption code generation; crypto/rand when nil.
	Entropy io.Reader
	Clock   func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M46-Engagement-Engine"
	}
	defaults := domain.DefaultLoyaltyRules()
	if cfg.Loyalty.PointsPerCurrency <= 0 {
		cfg.Loyalty.PointsPerCurrency = defaults.PointsPerCurrency
	}
	if cfg.Loyalty.CurrencyPerPoint <= 0 {
		cfg.Loyalty.CurrencyPerPoint = defaults.CurrencyPerPoint
	}
	if cfg.Loyalty.PointsExpiryDays <= 0 {
		cfg.Loyalty.PointsExpiryDays = defaults.PointsExpiryDays
	}
	if cfg.FavoriteCategoryLimit <= 0 {
		cfg.FavoriteCategoryLimit = domain.DefaultFavoriteCategoryLimit
	}
	if cfg.CandidatePoolSize <= 0 {
		cfg.CandidatePoolSize = 200
	}
	if cfg.MaxRecommendationLimit <= 0 {
		cfg.MaxRecommendationLimit = 50
	}
	if cfg.RecommendationTimeout <= 0 {
		cfg.RecommendationTimeout = 800 * time.Millisecond
	}
	if cfg.ScoringParallelism <= 0 {
		cfg.ScoringParallelism = 4
	}
	if cfg.ScoringChunkSize <= 0 {
		cfg.ScoringChunkSize = 32
	}
	if cfg.ProfileCacheTTL <= 0 {
		cfg.ProfileCacheTTL = 15 * time.Minute
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 5
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 200
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	entropy := deps.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	profiles := deps.Profiles
	if profiles == nil {
		profiles = noProfileCache{}
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:         cfg,
		logger:      logger,
		activity:    deps.Activity,
		ledger:      deps.Ledger,
		redemptions: deps.Redemptions,
		eventDedup:  deps.EventDedup,
		profiles:    profiles,
		catalog:     deps.Catalog,
		entropy:     entropy,
		nowFn:       nowFn,
	}
}

// noProfileCache always misses, so every profile read rebuilds from activity.
type noProfileCache struct{}

func (noProfileCache) Get(context.Context, string) (*domain.UserProfile, error) { return nil, nil }
func (noProfileCache) Set(context.Context, domain.UserProfile, time.Duration) error {
	return nil
}
func (noProfileCache) Invalidate(context.Context, string) error { return nil }

type OrderLineInput struct {
	ProductID string  `json:"product_id" validate:"required"`
	Category  string  `json:"category"`
	Price     float64 `json:"price" validate:"gte=0,finite"`
	Quantity  int     `json:"quantity" validate:"gte=0"`
}

type TrackPurchaseInput struct {
	UserID   string           `json:"user_id" validate:"required"`
	OrderID  string           `json:"order_id" validate:"required"`
	Lines    []OrderLineInput `json:"lines" validate:"dive"`
	Total    float64          `json:"total" validate:"gte=0,finite"`
	PlacedAt time.Time        `json:"placed_at"`
}

type TrackViewInput struct {
	UserID    string `json:"user_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
}

// AddPointsInput is the order-subsystem callback. OrderID is optional; when
// present, repeated callbacks for the same order credit once.
type AddPointsInput struct {
	UserID      string  `json:"user_id" validate:"required"`
	OrderID     string  `json:"order_id"`
	OrderAmount float64 `json:"order_amount" validate:"gte=0,finite"`
}

type PointsCredit struct {
	PointsCredited int64
	Transaction    domain.PointsTransaction
	Account        domain.LoyaltyAccount
	PreviousTier   domain.Tier
	TierChanged    bool
	Duplicate      bool
}

type RedeemPointsInput struct {
	UserID      string  `json:"user_id" validate:"required"`
	PointsCost  int64   `json:"points_cost" validate:"gt=0"`
	RewardID    string  `json:"reward_id" validate:"required"`
	RewardName  string  `json:"reward_name"`
	RewardType  string  `json:"reward_type" validate:"required,oneof=fixed percentage free_shipping gift"`
	RewardValue float64 `json:"reward_value" validate:"gte=0,finite"`
}

type LoyaltyStatus struct {
	Account           domain.LoyaltyAccount
	Transactions      []domain.PointsTransaction
	ActiveRedemptions []domain.RedemptionCode
	NextTier          domain.Tier
	PointsToNextTier  int64
	TierProgress      float64
	PointsValue       float64
}

type PointsAnalytics struct {
	UserID                string
	TotalEarned           int64
	TotalRedeemed         int64
	TotalRefunded         int64
	CurrentBalance        int64
	LifetimePoints        int64
	OrdersCredited        int64
	AveragePointsPerOrder float64
}

type RecommendationStats struct {
	UserID             string
	TotalOrders        int
	ViewedProducts     int
	FavoriteCategories []domain.CategoryWeight
	Recommendations    int
	AverageScore       float64
}
