package domain

import (
	"fmt"
	"math"
	"time"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

type TierThreshold struct {
	Tier           Tier
	LifetimePoints int64
}

var tierLadder = []TierThreshold{
	{Tier: TierBronze, LifetimePoints: 0},
	{Tier: TierSilver, LifetimePoints: 5000},
	{Tier: TierGold, LifetimePoints: 15000},
	{Tier: TierPlatinum, LifetimePoints: 30000},
}

func (t Tier) Rank() int {
	for i, step := range tierLadder {
		if step.Tier == t {
			return i
		}
	}
	return -1
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

func TierForLifetime(points int64) Tier {
	tier := TierBronze
	for _, step := range tierLadder {
		if points >= step.LifetimePoints {
			tier = step.Tier
		}
	}
	return tier
}

// NextTier returns the tier above t and its threshold. ok is false at the top.
func NextTier(t Tier) (next Tier, threshold int64, ok bool) {
	rank := t.Rank()
	if rank < 0 || rank+1 >= len(tierLadder) {
		return "", 0, false
	}
	step := tierLadder[rank+1]
	return step.Tier, step.LifetimePoints, true
}

func PointsToNextTier(t Tier, lifetime int64) int64 {
	_, threshold, ok := NextTier(t)
	if !ok {
		return 0
	}
	return max(0, threshold-lifetime)
}

// TierProgress is the percentage of the way from the current tier threshold
// to the next one. Top tier reports 100.
func TierProgress(t Tier, lifetime int64) float64 {
	rank := t.Rank()
	_, next, ok := NextTier(t)
	if !ok || rank < 0 {
		return 100
	}
	base := tierLadder[rank].LifetimePoints
	span := float64(next - base)
	return Clamp(float64(lifetime-base)/span*100, 0, 100)
}

type LoyaltyRules struct {
	PointsPerCurrency float64
	CurrencyPerPoint  float64
	PointsExpiryDays  int
	MinOrderAmount    float64
	MaxPointsPerOrder int64
}

func DefaultLoyaltyRules() LoyaltyRules {
	return LoyaltyRules{
		PointsPerCurrency: 1,
		CurrencyPerPoint:  1,
		PointsExpiryDays:  365,
		MinOrderAmount:    0,
		MaxPointsPerOrder: 0,
	}
}

func (r LoyaltyRules) Validate() error {
	if r.PointsPerCurrency < 0 || math.IsNaN(r.PointsPerCurrency) || math.IsInf(r.PointsPerCurrency, 0) {
		return fmt.Errorf("%w: points per currency must be a finite non-negative number", ErrInvalidInput)
	}
	if r.CurrencyPerPoint < 0 || math.IsNaN(r.CurrencyPerPoint) {
		return fmt.Errorf("%w: currency per point must be non-negative", ErrInvalidInput)
	}
	if r.PointsExpiryDays <= 0 {
		return fmt.Errorf("%w: points expiry days must be positive", ErrInvalidInput)
	}
	if r.MinOrderAmount < 0 || r.MaxPointsPerOrder < 0 {
		return fmt.Errorf("%w: order limits must be non-negative", ErrInvalidInput)
	}
	return nil
}

// MaxCreditPoints bounds a single credit to the range float64 holds exactly.
const MaxCreditPoints int64 = 1 << 53

// PointsForOrder converts an order amount to points. Orders below the minimum
// earn nothing; a positive MaxPointsPerOrder caps the credit. Amounts worth more
// than MaxCreditPoints are rejected as malformed.
func (r LoyaltyRules) PointsForOrder(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: order amount must be finite", ErrInvalidInput)
	}
	if amount <= 0 || amount < r.MinOrderAmount {
		return 0, nil
	}
	raw := amount * r.PointsPerCurrency
	if raw > float64(MaxCreditPoints) {
		return 0, fmt.Errorf("%w: order amount %g exceeds the creditable range", ErrInvalidInput, amount)
	}
	// The epsilon absorbs binary rounding such as 0.29*100 = 28.999999999999996.
	points := int64(math.Floor(raw + 1e-9))
	if r.MaxPointsPerOrder > 0 && points > r.MaxPointsPerOrder {
		points = r.MaxPointsPerOrder
	}
	return max(0, points), nil
}

func (r LoyaltyRules) PointsValue(points int64) float64 {
	return RoundCurrency(float64(points)*r.CurrencyPerPoint, 2)
}

func (r LoyaltyRules) RedemptionExpiry(from time.Time) time.Time {
	return from.AddDate(0, 0, r.PointsExpiryDays)
}

func RoundCurrency(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

type LoyaltyAccount struct {
	UserID         string    `json:"user_id"`
	TotalPoints    int64     `json:"total_points"`
	LifetimePoints int64     `json:"lifetime_points"`
	Tier           Tier      `json:"tier"`
	IsActive       bool      `json:"is_active"`
	IsBlocked      bool      `json:"is_blocked"`
	TotalSpent     float64   `json:"total_spent"`
	TotalOrders    int64     `json:"total_orders"`
	Sequence       int64     `json:"sequence"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewLoyaltyAccount(userID string, now time.Time) LoyaltyAccount {
	return LoyaltyAccount{
		UserID:    userID,
		Tier:      TierBronze,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a LoyaltyAccount) CanRedeem() bool {
	return a.IsActive && !a.IsBlocked
}

type TransactionReason string

const (
	ReasonOrderEarn        TransactionReason = "order_earn"
	ReasonRedemption       TransactionReason = "redemption"
	ReasonRedemptionRefund TransactionReason = "redemption_refund"
)

type PointsTransaction struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	OrderID        string            `json:"order_id,omitempty"`
	RedemptionCode string            `json:"redemption_code,omitempty"`
	Delta          int64             `json:"delta"`
	Reason         TransactionReason `json:"reason"`
	OrderAmount    float64           `json:"order_amount,omitempty"`
	BalanceBefore  int64             `json:"balance_before"`
	BalanceAfter   int64             `json:"balance_after"`
	CreatedAt      time.Time         `json:"created_at"`
}

// LedgerEntry describes a balance change before it is applied.
type LedgerEntry struct {
	Delta          int64
	Reason         TransactionReason
	OrderID        string
	OrderAmount    float64
	RedemptionCode string
	// CountsToLifetime marks credits that move the tier; refunds do not.
	CountsToLifetime bool
}

// Apply mutates the account for entry and returns the matching transaction.
// Credits re-evaluate the tier against the updated lifetime total; debits
// never touch the tier.
func (a *LoyaltyAccount) Apply(id string, entry LedgerEntry, now time.Time) (PointsTransaction, error) {
	before := a.TotalPoints
	if entry.Delta > 0 && before > math.MaxInt64-entry.Delta {
		return PointsTransaction{}, fmt.Errorf("%w: credit of %d overflows the balance", ErrInvalidInput, entry.Delta)
	}
	countsToLifetime := entry.Delta > 0 && entry.CountsToLifetime
	if countsToLifetime && a.LifetimePoints > math.MaxInt64-entry.Delta {
		return PointsTransaction{}, fmt.Errorf("%w: credit of %d overflows lifetime points", ErrInvalidInput, entry.Delta)
	}
	after := before + entry.Delta
	if after < 0 {
		return PointsTransaction{}, ErrInsufficientBalance
	}
	a.TotalPoints = after
	if countsToLifetime {
		a.LifetimePoints += entry.Delta
	}
	if entry.Delta >= 0 {
		a.Tier = a.EvaluateTier()
	}
	a.UpdatedAt = now
	return PointsTransaction{
		ID:             id,
		UserID:         a.UserID,
		OrderID:        entry.OrderID,
		RedemptionCode: entry.RedemptionCode,
		Delta:          entry.Delta,
		Reason:         entry.Reason,
		OrderAmount:    entry.OrderAmount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		CreatedAt:      now,
	}, nil
}

// EvaluateTier never returns a tier below the one already held.
func (a LoyaltyAccount) EvaluateTier() Tier {
	earned := TierForLifetime(a.LifetimePoints)
	if a.Tier.Valid() && a.Tier.Rank() > earned.Rank() {
		return a.Tier
	}
	return earned
}

// FoldTransactions replays a log and reports the balance it implies. It fails
// when an entry does not chain from the previous balance.
func FoldTransactions(txs []PointsTransaction) (int64, error) {
	var balance int64
	for i, tx := range txs {
		if tx.BalanceBefore != balance || tx.BalanceAfter != tx.BalanceBefore+tx.Delta {
			return 0, fmt.Errorf("%w: entry %d (%s) breaks the chain", ErrLedgerMismatch, i, tx.ID)
		}
		balance = tx.BalanceAfter
	}
	return balance, nil
}
