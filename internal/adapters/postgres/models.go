package postgres

import (
	"time"

	"gorm.io/datatypes"
)

type userModel struct {
	UserID          string    `gorm:"column:user_id;primaryKey"`
	ActivityVersion int64     `gorm:"column:activity_version;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (userModel) TableName() string { return "engagement_users" }

type purchaseLine struct {
	ProductID string  `json:"product_id"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// purchaseModel is keyed per user; order ids are only unique within one user's history.
type purchaseModel struct {
	UserID    string         `gorm:"column:user_id;primaryKey"`
	OrderID   string         `gorm:"column:order_id;primaryKey"`
	Total     float64        `gorm:"column:total"`
	Lines     datatypes.JSON `gorm:"column:lines"`
	PlacedAt  time.Time      `gorm:"column:placed_at"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime:false"`
}

func (purchaseModel) TableName() string { return "purchase_events" }

type viewModel struct {
	UserID        string    `gorm:"column:user_id;primaryKey"`
	ProductID     string    `gorm:"column:product_id;primaryKey"`
	ViewCount     int64     `gorm:"column:view_count"`
	FirstViewedAt time.Time `gorm:"column:first_viewed_at"`
	LastViewedAt  time.Time `gorm:"column:last_viewed_at"`
}

func (viewModel) TableName() string { return "product_views" }

// ledgerLockModel rows exist only to be locked; one per user that ever had a ledger unit.
type ledgerLockModel struct {
	UserID string `gorm:"column:user_id;primaryKey"`
}

func (ledgerLockModel) TableName() string { return "ledger_locks" }

type accountModel struct {
	Sequence       int64     `gorm:"column:sequence;primaryKey;autoIncrement"`
	UserID         string    `gorm:"column:user_id;uniqueIndex"`
	TotalPoints    int64     `gorm:"column:total_points"`
	LifetimePoints int64     `gorm:"column:lifetime_points"`
	Tier           string    `gorm:"column:tier"`
	IsActive       bool      `gorm:"column:is_active"`
	IsBlocked      bool      `gorm:"column:is_blocked"`
	TotalSpent     float64   `gorm:"column:total_spent"`
	TotalOrders    int64     `gorm:"column:total_orders"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (accountModel) TableName() string { return "loyalty_accounts" }

type transactionModel struct {
	EntryID        int64     `gorm:"column:entry_id;primaryKey;autoIncrement"`
	TransactionID  string    `gorm:"column:transaction_id;uniqueIndex"`
	UserID         string    `gorm:"column:user_id;index"`
	OrderID        *string   `gorm:"column:order_id"`
	RedemptionCode *string   `gorm:"column:redemption_code"`
	Delta          int64     `gorm:"column:delta"`
	Reason         string    `gorm:"column:reason"`
	OrderAmount    float64   `gorm:"column:order_amount"`
	BalanceBefore  int64     `gorm:"column:balance_before"`
	BalanceAfter   int64     `gorm:"column:balance_after"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime:false"`
}

func (transactionModel) TableName() string { return "points_transactions" }

type redemptionModel struct {
	Code               string     `gorm:"column:code;primaryKey"`
	UserID             string     `gorm:"column:user_id;index"`
	RewardID           string     `gorm:"column:reward_id"`
	RewardName         string     `gorm:"column:reward_name"`
	RewardType         string     `gorm:"column:reward_type"`
	RewardValue        float64    `gorm:"column:reward_value"`
	PointsCost         int64      `gorm:"column:points_cost"`
	Status             string     `gorm:"column:status;index"`
	DebitTransactionID string     `gorm:"column:debit_transaction_id"`
	OrderID            *string    `gorm:"column:order_id"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime:false"`
	ExpiresAt          time.Time  `gorm:"column:expires_at"`
	UsedAt             *time.Time `gorm:"column:used_at"`
}

func (redemptionModel) TableName() string { return "redemption_codes" }

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      string     `gorm:"column:payload"`
	RetryCount   int        `gorm:"column:retry_count"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	LastError    *string    `gorm:"column:last_error"`
	LastErrorAt  *time.Time `gorm:"column:last_error_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime:false"`
}

func (outboxModel) TableName() string { return "engagement_outbox" }

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (eventDedupModel) TableName() string { return "engagement_event_dedup" }
