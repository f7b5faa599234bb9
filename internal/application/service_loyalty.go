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

// AddPoints credits points for an order. Orders under the minimum still log a
// zero-delta transaction. Tier is re-evaluated from the balance written in the
// same unit.
func (s *Service) AddPoints(ctx context.Context, input AddPointsInput) (PointsCredit, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.OrderID = strings.TrimSpace(input.OrderID)
	if err := validation.Struct(input); err != nil {
		return PointsCredit{}, err
	}
	points, err := s.cfg.Loyalty.PointsForOrder(input.OrderAmount)
	if err != nil {
		return PointsCredit{}, err
	}

	var result PointsCredit
	err = s.ledger.WithinUserLock(ctx, input.UserID, func(tx ports.LedgerTx) error {
		now := s.nowFn()
		if input.OrderID != "" {
			prior, err := tx.FindOrderCredit(ctx, input.OrderID)
			if err != nil {
				return err
			}
			if prior != nil {
				account, _, err := tx.LockAccount(ctx)
				if err != nil {
					return err
				}
				result = PointsCredit{
					PointsCredited: prior.Delta,
					Transaction:    *prior,
					Account:        account,
					PreviousTier:   account.Tier,
					Duplicate:      true,
				}
				return nil
			}
		}

		account, err := s.lockOrCreateAccount(ctx, tx, input.UserID, now)
		if err != nil {
			return err
		}
		previous := account.Tier
		txn, err := account.Apply(uuid.NewString(), domain.LedgerEntry{
			Delta:            points,
			Reason:           domain.ReasonOrderEarn,
			OrderID:          input.OrderID,
			OrderAmount:      input.OrderAmount,
			CountsToLifetime: true,
		}, now)
		if err != nil {
			return err
		}
		account.TotalSpent = domain.RoundCurrency(account.TotalSpent+input.OrderAmount, 2)
		account.TotalOrders++
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, domain.EventPointsCredited, account.UserID, contracts.PointsCreditedPayload{
			UserID:        account.UserID,
			OrderID:       input.OrderID,
			OrderAmount:   input.OrderAmount,
			PointsEarned:  txn.Delta,
			BalanceAfter:  txn.BalanceAfter,
			TransactionID: txn.ID,
			CreditedAt:    now.Format(time.RFC3339),
		}, now); err != nil {
			return err
		}
		if account.Tier != previous {
			if err := s.enqueue(ctx, tx, domain.EventTierUpgraded, account.UserID, contracts.TierUpgradedPayload{
				UserID:         account.UserID,
				PreviousTier:   string(previous),
				NewTier:        string(account.Tier),
				LifetimePoints: account.LifetimePoints,
				UpgradedAt:     now.Format(time.RFC3339),
			}, now); err != nil {
				return err
			}
		}
		result = PointsCredit{
			PointsCredited: txn.Delta,
			Transaction:    txn,
			Account:        account,
			PreviousTier:   previous,
			TierChanged:    account.Tier != previous,
		}
		return nil
	})
	if err != nil {
		metrics.LedgerOperations.WithLabelValues("credit", "failure").Inc()
		return PointsCredit{}, err
	}
	metrics.LedgerOperations.WithLabelValues("credit", "success").Inc()
	if !result.Duplicate {
		metrics.PointsCredited.Add(float64(result.PointsCredited))
		if result.TierChanged {
			metrics.TierUpgrades.WithLabelValues(string(result.Account.Tier)).Inc()
		}
	}
	return result, nil
}

// GetStatus returns nil without error for users that have no account.
func (s *Service) GetStatus(ctx context.Context, userID string) (*LoyaltyStatus, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	account, err := s.ledger.GetAccount(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes, err := s.redemptions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.nowFn()
	active := make([]domain.RedemptionCode, 0, len(codes))
	for _, code := range codes {
		code, err = s.expireIfDue(ctx, code, now)
		if err != nil {
			return nil, err
		}
		if code.IsActive(now) {
			active = append(active, code)
		}
	}
	next, _, _ := domain.NextTier(account.Tier)
	return &LoyaltyStatus{
		Account:           account,
		Transactions:      txs,
		ActiveRedemptions: active,
		NextTier:          next,
		PointsToNextTier:  domain.PointsToNextTier(account.Tier, account.LifetimePoints),
		TierProgress:      domain.TierProgress(account.Tier, account.LifetimePoints),
		PointsValue:       s.cfg.Loyalty.PointsValue(account.TotalPoints),
	}, nil
}

// GetTopUsers lists active, unblocked accounts by balance.
func (s *Service) GetTopUsers(ctx context.Context, limit int) ([]domain.LoyaltyAccount, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if limit == 0 {
		return []domain.LoyaltyAccount{}, nil
	}
	return s.ledger.TopAccounts(ctx, limit)
}

func (s *Service) GetPointsAnalytics(ctx context.Context, userID string) (PointsAnalytics, error) {
	userID = strings.TrimSpace(userID)
	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return PointsAnalytics{}, err
	}
	txs, err := s.ledger.ListTransactions(ctx, userID)
	if err != nil {
		return PointsAnalytics{}, err
	}
	out := PointsAnalytics{
		UserID:         userID,
		CurrentBalance: account.TotalPoints,
		LifetimePoints: account.LifetimePoints,
	}
	for _, tx := range txs {
		switch tx.Reason {
		case domain.ReasonOrderEarn:
			out.TotalEarned += tx.Delta
			out.OrdersCredited++
		case domain.ReasonRedemption:
			out.TotalRedeemed += -tx.Delta
		case domain.ReasonRedemptionRefund:
			out.TotalRefunded += tx.Delta
		}
	}
	if out.OrdersCredited > 0 {
		out.AveragePointsPerOrder = domain.RoundCurrency(float64(out.TotalEarned)/float64(out.OrdersCredited), 2)
	}
	return out, nil
}

// VerifyLedger replays the user's log and checks it against the stored balance.
func (s *Service) VerifyLedger(ctx context.Context, userID string) error {
	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	txs, err := s.ledger.ListTransactions(ctx, userID)
	if err != nil {
		return err
	}
	folded, err := domain.FoldTransactions(txs)
	if err != nil {
		return err
	}
	if folded != account.TotalPoints {
		return fmt.Errorf("%w: fold=%d stored=%d", domain.ErrLedgerMismatch, folded, account.TotalPoints)
	}
	return nil
}

// SetAccountBlocked toggles the blocked flag. Blocked accounts keep earning
// but cannot redeem.
func (s *Service) SetAccountBlocked(ctx context.Context, userID string, blocked bool) (domain.LoyaltyAccount, error) {
	userID = strings.TrimSpace(userID)
	var account domain.LoyaltyAccount
	err := s.ledger.WithinUserLock(ctx, userID, func(tx ports.LedgerTx) error {
		current, found, err := tx.LockAccount(ctx)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}
		current.IsBlocked = blocked
		current.UpdatedAt = s.nowFn()
		account = current
		return tx.SaveAccount(ctx, current)
	})
	return account, err
}

func (s *Service) lockOrCreateAccount(ctx context.Context, tx ports.LedgerTx, userID string, now time.Time) (domain.LoyaltyAccount, error) {
	account, found, err := tx.LockAccount(ctx)
	if err != nil {
		return domain.LoyaltyAccount{}, err
	}
	if found {
		return account, nil
	}
	return tx.CreateAccount(ctx, domain.NewLoyaltyAccount(userID, now))
}
