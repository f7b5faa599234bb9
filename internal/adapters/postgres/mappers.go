package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
)

func toDomainOrder(m purchaseModel) (domain.OrderSummary, error) {
	var lines []purchaseLine
	if len(m.Lines) > 0 {
		if err := json.Unmarshal(m.Lines, &lines); err != nil {
			return domain.OrderSummary{}, fmt.Errorf("decode order %s lines: %w", m.OrderID, err)
		}
	}
	out := domain.OrderSummary{
		OrderID:  m.OrderID,
		UserID:   m.UserID,
		Lines:    make([]domain.OrderLine, 0, len(lines)),
		Total:    m.Total,
		PlacedAt: m.PlacedAt.UTC(),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, domain.OrderLine{ProductID: l.ProductID, Category: l.Category, Price: l.Price, Quantity: l.Quantity})
	}
	return out, nil
}

func toPurchaseModel(order domain.OrderSummary) (purchaseModel, error) {
	lines := make([]purchaseLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, purchaseLine{ProductID: l.ProductID, Category: l.Category, Price: l.Price, Quantity: l.Quantity})
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return purchaseModel{}, err
	}
	return purchaseModel{
		OrderID:   order.OrderID,
		UserID:    order.UserID,
		Total:     order.Total,
		Lines:     raw,
		PlacedAt:  order.PlacedAt.UTC(),
		CreatedAt: order.PlacedAt.UTC(),
	}, nil
}

func toDomainAccount(m accountModel) domain.LoyaltyAccount {
	return domain.LoyaltyAccount{
		UserID:         m.UserID,
		TotalPoints:    m.TotalPoints,
		LifetimePoints: m.LifetimePoints,
		Tier:           domain.Tier(m.Tier),
		IsActive:       m.IsActive,
		IsBlocked:      m.IsBlocked,
		TotalSpent:     m.TotalSpent,
		TotalOrders:    m.TotalOrders,
		Sequence:       m.Sequence,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

func toAccountModel(a domain.LoyaltyAccount) accountModel {
	return accountModel{
		Sequence:       a.Sequence,
		UserID:         a.UserID,
		TotalPoints:    a.TotalPoints,
		LifetimePoints: a.LifetimePoints,
		Tier:           string(a.Tier),
		IsActive:       a.IsActive,
		IsBlocked:      a.IsBlocked,
		TotalSpent:     a.TotalSpent,
		TotalOrders:    a.TotalOrders,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

func toDomainTransaction(m transactionModel) domain.PointsTransaction {
	return domain.PointsTransaction{
		ID:             m.TransactionID,
		UserID:         m.UserID,
		OrderID:        deref(m.OrderID),
		RedemptionCode: deref(m.RedemptionCode),
		Delta:          m.Delta,
		Reason:         domain.TransactionReason(m.Reason),
		OrderAmount:    m.OrderAmount,
		BalanceBefore:  m.BalanceBefore,
		BalanceAfter:   m.BalanceAfter,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func toTransactionModel(t domain.PointsTransaction) transactionModel {
	return transactionModel{
		TransactionID:  t.ID,
		UserID:         t.UserID,
		OrderID:        optional(t.OrderID),
		RedemptionCode: optional(t.RedemptionCode),
		Delta:          t.Delta,
		Reason:         string(t.Reason),
		OrderAmount:    t.OrderAmount,
		BalanceBefore:  t.BalanceBefore,
		BalanceAfter:   t.BalanceAfter,
		CreatedAt:      t.CreatedAt.UTC(),
	}
}

func toDomainRedemption(m redemptionModel) domain.RedemptionCode {
	out := domain.RedemptionCode{
		Code:               m.Code,
		UserID:             m.UserID,
		RewardID:           m.RewardID,
		RewardName:         m.RewardName,
		RewardType:         domain.RewardType(m.RewardType),
		RewardValue:        m.RewardValue,
		PointsCost:         m.PointsCost,
		Status:             domain.RedemptionStatus(m.Status),
		DebitTransactionID: m.DebitTransactionID,
		OrderID:            deref(m.OrderID),
		CreatedAt:          m.CreatedAt.UTC(),
		ExpiresAt:          m.ExpiresAt.UTC(),
	}
	if m.UsedAt != nil {
		used := m.UsedAt.UTC()
		out.UsedAt = &used
	}
	return out
}

func toRedemptionModel(r domain.RedemptionCode) redemptionModel {
	return redemptionModel{
		Code:               r.Code,
		UserID:             r.UserID,
		RewardID:           r.RewardID,
		RewardName:         r.RewardName,
		RewardType:         string(r.RewardType),
		RewardValue:        r.RewardValue,
		PointsCost:         r.PointsCost,
		Status:             string(r.Status),
		DebitTransactionID: r.DebitTransactionID,
		OrderID:            optional(r.OrderID),
		CreatedAt:          r.CreatedAt.UTC(),
		ExpiresAt:          r.ExpiresAt.UTC(),
		UsedAt:             r.UsedAt,
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
