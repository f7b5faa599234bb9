package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

type UserRegisteredPayload struct {
	UserID       string `json:"user_id"`
	RegisteredAt string `json:"registered_at"`
}

type OrderLinePayload struct {
	ProductID string  `json:"product_id"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type OrderCompletedPayload struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	OrderAmount float64            `json:"order_amount"`
	Lines       []OrderLinePayload `json:"lines"`
	CompletedAt string             `json:"completed_at"`
}

type ProductViewedPayload struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	ViewedAt  string `json:"viewed_at"`
}

type PointsCreditedPayload struct {
	UserID        string  `json:"user_id"`
	OrderID       string  `json:"order_id,omitempty"`
	OrderAmount   float64 `json:"order_amount"`
	PointsEarned  int64   `json:"points_earned"`
	BalanceAfter  int64   `json:"balance_after"`
	TransactionID string  `json:"transaction_id"`
	CreditedAt    string  `json:"credited_at"`
}

type TierUpgradedPayload struct {
	UserID         string `json:"user_id"`
	PreviousTier   string `json:"previous_tier"`
	NewTier        string `json:"new_tier"`
	LifetimePoints int64  `json:"lifetime_points"`
	UpgradedAt     string `json:"upgraded_at"`
}

type PointsRedeemedPayload struct {
	UserID        string  `json:"user_id"`
	Code          string  `json:"code"`
	PointsCost    int64   `json:"points_cost"`
	RewardID      string  `json:"reward_id"`
	RewardType    string  `json:"reward_type"`
	RewardValue   float64 `json:"reward_value"`
	BalanceAfter  int64   `json:"balance_after"`
	TransactionID string  `json:"transaction_id"`
	ExpiresAt     string  `json:"expires_at"`
}

type RedemptionStatusPayload struct {
	UserID    string `json:"user_id"`
	Code      string `json:"code"`
	Status    string `json:"status"`
	OrderID   string `json:"order_id,omitempty"`
	ChangedAt string `json:"changed_at"`
}
