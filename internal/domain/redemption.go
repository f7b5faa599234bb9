package domain

import (
	"fmt"
	"io"
	"time"
)

const (
	CodeLength   = 12
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type RewardType string

const (
	RewardFixed        RewardType = "fixed"
	RewardPercentage   RewardType = "percentage"
	RewardFreeShipping RewardType = "free_shipping"
	RewardGift         RewardType = "gift"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardFixed, RewardPercentage, RewardFreeShipping, RewardGift:
		return true
	default:
		return false
	}
}

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionUsed      RedemptionStatus = "used"
	RedemptionExpired   RedemptionStatus = "expired"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

type Reward struct {
	RewardID string     `json:"reward_id"`
	Name     string     `json:"name"`
	Type     RewardType `json:"type"`
	Value    float64    `json:"value"`
}

func (r Reward) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown reward type %q", ErrInvalidInput, r.Type)
	}
	switch r.Type {
	case RewardFixed:
		if r.Value <= 0 {
			return fmt.Errorf("%w: fixed reward needs a positive value", ErrInvalidInput)
		}
	case RewardPercentage:
		if r.Value <= 0 || r.Value > 100 {
			return fmt.Errorf("%w: percentage reward must be in (0, 100]", ErrInvalidInput)
		}
	}
	return nil
}

type RedemptionCode struct {
	Code               string           `json:"code"`
	UserID             string           `json:"user_id"`
	RewardID           string           `json:"reward_id"`
	RewardName         string           `json:"reward_name"`
	RewardType         RewardType       `json:"reward_type"`
	RewardValue        float64          `json:"reward_value"`
	PointsCost         int64            `json:"points_cost"`
	Status             RedemptionStatus `json:"status"`
	DebitTransactionID string           `json:"debit_transaction_id"`
	OrderID            string           `json:"order_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	ExpiresAt          time.Time        `json:"expires_at"`
	UsedAt             *time.Time       `json:"used_at,omitempty"`
}

// ExpireIfDue flips a pending code past its expiry to expired and reports
// whether it changed.
func (r *RedemptionCode) ExpireIfDue(now time.Time) bool {
	if r.Status != RedemptionPending || !now.After(r.ExpiresAt) {
		return false
	}
	r.Status = RedemptionExpired
	return true
}

func (r RedemptionCode) IsActive(now time.Time) bool {
	return r.Status == RedemptionPending && !now.After(r.ExpiresAt)
}

// RewardGrant is what a checkout applies for a code.
type RewardGrant struct {
	Type            RewardType `json:"type"`
	DiscountAmount  float64    `json:"discount_amount,omitempty"`
	DiscountPercent float64    `json:"discount_percent,omitempty"`
	FreeShipping    bool       `json:"free_shipping,omitempty"`
	GiftRewardID    string     `json:"gift_reward_id,omitempty"`
	Description     string     `json:"description"`
}

func DescribeReward(code RedemptionCode) (RewardGrant, error) {
	switch code.RewardType {
	case RewardFixed:
		return RewardGrant{
			Type:           RewardFixed,
			DiscountAmount: RoundCurrency(code.RewardValue, 2),
			Description:    fmt.Sprintf("%.2f off the order total", code.RewardValue),
		}, nil
	case RewardPercentage:
		return RewardGrant{
			Type:            RewardPercentage,
			DiscountPercent: code.RewardValue,
			Description:     fmt.Sprintf("%g%% off the order total", code.RewardValue),
		}, nil
	case RewardFreeShipping:
		return RewardGrant{Type: RewardFreeShipping, FreeShipping: true, Description: "free shipping"}, nil
	case RewardGift:
		return RewardGrant{
			Type:         RewardGift,
			GiftRewardID: code.RewardID,
			Description:  "gift: " + code.RewardName,
		}, nil
	default:
		return RewardGrant{}, fmt.Errorf("%w: unknown reward type %q", ErrInvalidInput, code.RewardType)
	}
}

// GenerateCode draws CodeLength symbols from CodeAlphabet. Bytes at or above
// the largest multiple of the alphabet size are rejected so every symbol is
// equally likely.
func GenerateCode(rnd io.Reader) (string, error) {
	const limit = 256 - 256%len(CodeAlphabet)
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(rnd, buf); err != nil {
			return "", fmt.Errorf("read code entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
