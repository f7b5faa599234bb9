package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/metrics"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/validation"
)

// RedeemPoints debits the account and issues a code in one unit. A code
// collision rolls the unit back and retries with a fresh code.
func (s *Service) RedeemPoints(ctx context.Context, input RedeemPointsInput) (domain.RedemptionCode, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.RewardID = strings.TrimSpace(input.RewardID)
	if err := validation.Struct(input); err != nil {
		return domain.RedemptionCode{}, err
	}
	reward := domain.Reward{
		RewardID: input.RewardID,
		Name:     input.RewardName,
		Type:     domain.RewardType(input.RewardType),
		Value:    input.RewardValue,
	}
	if err := reward.Validate(); err != nil {
		return domain.RedemptionCode{}, err
	}

	for attempt := 1; attempt <= s.cfg.MaxCodeAttempts; attempt++ {
		code, err := s.GenerateCode(ctx)
		if errors.Is(err, domain.ErrConflict) {
			metrics.CodeCollisions.Inc()
			continue
		}
		if err != nil {
			return domain.RedemptionCode{}, err
		}
		redemption, err := s.issue(ctx, input.UserID, input.PointsCost, reward, code)
		if errors.Is(err, domain.ErrConflict) {
			metrics.CodeCollisions.Inc()
			continue
		}
		if err != nil {
			metrics.LedgerOperations.WithLabelValues("debit", "failure").Inc()
			return domain.RedemptionCode{}, err
		}
		metrics.LedgerOperations.WithLabelValues("debit", "success").Inc()
		metrics.PointsRedeemed.Add(float64(redemption.PointsCost))
		metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionPending)).Inc()
		return redemption, nil
	}
	metrics.LedgerOperations.WithLabelValues("debit", "failure").Inc()
	return domain.RedemptionCode{}, fmt.Errorf("%w: no unique redemption code after %d attempts", domain.ErrConflict, s.cfg.MaxCodeAttempts)
}

// GenerateCode returns a fresh code that is not yet stored. ErrConflict means
// the drawn code already exists; the storage unique constraint still guards
// the commit.
func (s *Service) GenerateCode(ctx context.Context) (string, error) {
	code, err := domain.GenerateCode(s.entropy)
	if err != nil {
		return "", err
	}
	exists, err := s.redemptions.CodeExists(ctx, code)
	if err != nil {
		return "", err
	}
	if exists {
		return "", domain.ErrConflict
	}
	return code, nil
}

func (s *Service) issue(ctx context.Context, userID string, cost int64, reward domain.Reward, code string) (domain.RedemptionCode, error) {
	var redemption domain.RedemptionCode
	err := s.ledger.WithinUserLock(ctx, userID, func(tx ports.LedgerTx) error {
		now := s.nowFn()
		account, found, err := tx.LockAccount(ctx)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		if !account.CanRedeem() {
			return domain.ErrAccountBlocked
		}
		if cost > account.TotalPoints {
			return domain.ErrInsufficientBalance
		}
		txn, err := account.Apply(uuid.NewString(), domain.LedgerEntry{
			Delta:          -cost,
			Reason:         domain.ReasonRedemption,
			RedemptionCode: code,
		}, now)
		if err != nil {
			return err
		}
		redemption = domain.RedemptionCode{
			Code:               code,
			UserID:             userID,
			RewardID:           reward.RewardID,
			RewardName:         reward.Name,
			RewardType:         reward.Type,
			RewardValue:        reward.Value,
			PointsCost:         cost,
			Status:             domain.RedemptionPending,
			DebitTransactionID: txn.ID,
			CreatedAt:          now,
			ExpiresAt:          s.cfg.Loyalty.RedemptionExpiry(now),
		}
		if err := tx.CreateRedemption(ctx, redemption); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, domain.EventPointsRedeemed, userID, contracts.PointsRedeemedPayload{
			UserID:        userID,
			Code:          code,
			PointsCost:    cost,
			RewardID:      reward.RewardID,
			RewardType:    string(reward.Type),
			RewardValue:   reward.Value,
			BalanceAfter:  txn.BalanceAfter,
			TransactionID: txn.ID,
			ExpiresAt:     redemption.ExpiresAt.Format(time.RFC3339),
		}, now)
	})
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	return redemption, nil
}

// GetRedemption reads a code, expiring it first when its time has passed.
func (s *Service) GetRedemption(ctx context.Context, code string) (domain.RedemptionCode, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	current, err := s.redemptions.GetByCode(ctx, code)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	return s.expireIfDue(ctx, current, s.nowFn())
}

// UseRedemption marks a pending code used by orderID. It succeeds once per code.
func (s *Service) UseRedemption(ctx context.Context, code, orderID string) (domain.RedemptionCode, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.RedemptionCode{}, fmt.Errorf("%w: order_id is required", domain.ErrInvalidInput)
	}
	current, err := s.redemptions.GetByCode(ctx, code)
	if err != nil {
		return domain.RedemptionCode{}, err
	}

	var (
		out     domain.RedemptionCode
		expired bool
	)
	err = s.ledger.WithinUserLock(ctx, current.UserID, func(tx ports.LedgerTx) error {
		now := s.nowFn()
		r, err := tx.GetRedemption(ctx, code)
		if err != nil {
			return err
		}
		if r.ExpireIfDue(now) {
			expired = true
			out = r
			return tx.SaveRedemption(ctx, r)
		}
		if err := pendingOrError(r); err != nil {
			return err
		}
		r.Status = domain.RedemptionUsed
		r.OrderID = orderID
		r.UsedAt = &now
		if err := tx.SaveRedemption(ctx, r); err != nil {
			return err
		}
		out = r
		return s.enqueue(ctx, tx, domain.EventRedemptionUsed, r.UserID, contracts.RedemptionStatusPayload{
			UserID:    r.UserID,
			Code:      r.Code,
			Status:    string(r.Status),
			OrderID:   orderID,
			ChangedAt: now.Format(time.RFC3339),
		}, now)
	})
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	if expired {
		metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionExpired)).Inc()
		return out, domain.ErrRedemptionExpired
	}
	metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionUsed)).Inc()
	return out, nil
}

// CancelRedemption cancels a pending code and refunds its points. The refund
// does not count toward lifetime points.
func (s *Service) CancelRedemption(ctx context.Context, userID, code string) (domain.RedemptionCode, error) {
	userID = strings.TrimSpace(userID)
	code, err := normalizeCode(code)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	var (
		out     domain.RedemptionCode
		expired bool
	)
	err = s.ledger.WithinUserLock(ctx, userID, func(tx ports.LedgerTx) error {
		now := s.nowFn()
		r, err := tx.GetRedemption(ctx, code)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return domain.ErrNotFound
		}
		if r.ExpireIfDue(now) {
			expired = true
			out = r
			return tx.SaveRedemption(ctx, r)
		}
		if err := pendingOrError(r); err != nil {
			return err
		}
		account, found, err := tx.LockAccount(ctx)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		txn, err := account.Apply(uuid.NewString(), domain.LedgerEntry{
			Delta:          r.PointsCost,
			Reason:         domain.ReasonRedemptionRefund,
			RedemptionCode: r.Code,
		}, now)
		if err != nil {
			return err
		}
		r.Status = domain.RedemptionCancelled
		if err := tx.SaveRedemption(ctx, r); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		out = r
		return s.enqueue(ctx, tx, domain.EventRedemptionCancelled, userID, contracts.RedemptionStatusPayload{
			UserID:    userID,
			Code:      r.Code,
			Status:    string(r.Status),
			ChangedAt: now.Format(time.RFC3339),
		}, now)
	})
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	if expired {
		metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionExpired)).Inc()
		return out, domain.ErrRedemptionExpired
	}
	metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionCancelled)).Inc()
	return out, nil
}

// DescribeReward returns what a checkout should apply for the code.
func (s *Service) DescribeReward(ctx context.Context, code string) (domain.RedemptionCode, domain.RewardGrant, error) {
	r, err := s.GetRedemption(ctx, code)
	if err != nil {
		return domain.RedemptionCode{}, domain.RewardGrant{}, err
	}
	grant, err := domain.DescribeReward(r)
	if err != nil {
		return domain.RedemptionCode{}, domain.RewardGrant{}, err
	}
	return r, grant, nil
}

// SweepExpiredRedemptions expires pending codes past their expiry in one batch.
func (s *Service) SweepExpiredRedemptions(ctx context.Context) (int, error) {
	now := s.nowFn()
	due, err := s.redemptions.ListExpiredPending(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, r := range due {
		changed, err := s.redemptions.MarkExpired(ctx, r.Code, now)
		if err != nil {
			return expired, err
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionExpired)).Add(float64(expired))
	}
	return expired, nil
}

func (s *Service) expireIfDue(ctx context.Context, r domain.RedemptionCode, now time.Time) (domain.RedemptionCode, error) {
	candidate := r
	if !candidate.ExpireIfDue(now) {
		return r, nil
	}
	changed, err := s.redemptions.MarkExpired(ctx, r.Code, now)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	if changed {
		metrics.RedemptionCodes.WithLabelValues(string(domain.RedemptionExpired)).Inc()
		return candidate, nil
	}
	// Another writer moved the code first; report what it stored.
	return s.redemptions.GetByCode(ctx, r.Code)
}

func pendingOrError(r domain.RedemptionCode) error {
	switch r.Status {
	case domain.RedemptionPending:
		return nil
	case domain.RedemptionExpired:
		return domain.ErrRedemptionExpired
	default:
		return domain.ErrRedemptionNotPending
	}
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !domain.ValidCode(code) {
		return "", fmt.Errorf("%w: malformed redemption code", domain.ErrInvalidInput)
	}
	return code, nil
}
