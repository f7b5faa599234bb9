package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

// UserActivity is the raw event history a profile is derived from.
type UserActivity struct {
	UserID         string
	Orders         []domain.OrderSummary
	ViewedProducts []string
	Version        int64
}

// ActivityRepository stores users plus their purchase and view events. Every
// append bumps the user's activity version, which invalidates derived profiles.
type ActivityRepository interface {
	EnsureUser(ctx context.Context, userID string, at time.Time) (created bool, err error)
	// AppendPurchase is idempotent per order id; a repeated order returns the
	// current version and recorded=false.
	AppendPurchase(ctx context.Context, order domain.OrderSummary) (version int64, recorded bool, err error)
	AppendView(ctx context.Context, userID, productID string, at time.Time) (int64, error)
	LoadActivity(ctx context.Context, userID string) (UserActivity, error)
	ActivityVersion(ctx context.Context, userID string) (int64, error)
}

// LedgerTx is the view of storage available inside a per-user serialized unit.
// Nothing written through it is visible to other callers until the unit commits.
type LedgerTx interface {
	// LockAccount returns the account for the locked user; found is false when
	// no account exists yet.
	LockAccount(ctx context.Context) (account domain.LoyaltyAccount, found bool, err error)
	CreateAccount(ctx context.Context, account domain.LoyaltyAccount) (domain.LoyaltyAccount, error)
	SaveAccount(ctx context.Context, account domain.LoyaltyAccount) error
	AppendTransaction(ctx context.Context, tx domain.PointsTransaction) error
	FindOrderCredit(ctx context.Context, orderID string) (*domain.PointsTransaction, error)
	// CreateRedemption fails with domain.ErrConflict when the code already exists.
	CreateRedemption(ctx context.Context, code domain.RedemptionCode) error
	GetRedemption(ctx context.Context, code string) (domain.RedemptionCode, error)
	SaveRedemption(ctx context.Context, code domain.RedemptionCode) error
	EnqueueOutbox(ctx context.Context, event OutboxEvent) error
}

type LedgerRepository interface {
	// WithinUserLock runs fn serialized against every other unit for userID and
	// commits its writes atomically when fn returns nil.
	WithinUserLock(ctx context.Context, userID string, fn func(tx LedgerTx) error) error
	GetAccount(ctx context.Context, userID string) (domain.LoyaltyAccount, error)
	ListTransactions(ctx context.Context, userID string) ([]domain.PointsTransaction, error)
	// TopAccounts lists active, unblocked accounts by points desc then creation order.
	TopAccounts(ctx context.Context, limit int) ([]domain.LoyaltyAccount, error)
}

type RedemptionRepository interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	GetByCode(ctx context.Context, code string) (domain.RedemptionCode, error)
	ListByUser(ctx context.Context, userID string) ([]domain.RedemptionCode, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.RedemptionCode, error)
	// MarkExpired flips the code only while it is still pending.
	MarkExpired(ctx context.Context, code string, at time.Time) (bool, error)
}

type OutboxEvent struct {
	EventID      string
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

type OutboxRecord struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	PublishedAt  *time.Time
	LastError    *string
	FirstSeenAt  time.Time
}

type OutboxRepository interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID string, errMsg string, at time.Time) error
}

// EventDedupRepository remembers applied inbound event ids until their
// retention lapses.
type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, processedAt, expiresAt time.Time) error
	PurgeExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}
