package postgres

import (
	"context"
	"errors"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepository struct {
	db *gorm.DB
}

// WithinUserLock serializes on a ledger_locks row. Locking that row rather
// than the account lets the first unit for a user create the account safely.
func (r *ledgerRepository) WithinUserLock(ctx context.Context, userID string, fn func(tx ports.LedgerTx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		if err := gtx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ledgerLockModel{UserID: userID}).Error; err != nil {
			return err
		}
		var lock ledgerLockModel
		if err := gtx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).Take(&lock).Error; err != nil {
			return err
		}
		return fn(&ledgerTx{db: gtx, userID: userID, readStatus: make(map[string]string)})
	})
	return translateError(err)
}

func (r *ledgerRepository) GetAccount(ctx context.Context, userID string) (domain.LoyaltyAccount, error) {
	var row accountModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return domain.LoyaltyAccount{}, translateError(err)
	}
	return toDomainAccount(row), nil
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, userID string) ([]domain.PointsTransaction, error) {
	var rows []transactionModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("entry_id asc").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make([]domain.PointsTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainTransaction(row))
	}
	return out, nil
}

func (r *ledgerRepository) TopAccounts(ctx context.Context, limit int) ([]domain.LoyaltyAccount, error) {
	var rows []accountModel
	q := r.db.WithContext(ctx).
		Where("is_active = ? AND is_blocked = ?", true, false).
		Order("total_points desc").
		Order("sequence asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make([]domain.LoyaltyAccount, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAccount(row))
	}
	return out, nil
}

type ledgerTx struct {
	db     *gorm.DB
	userID string
	// readStatus remembers the status each redemption had when this unit read it.
	readStatus map[string]string
}

func (t *ledgerTx) LockAccount(ctx context.Context) (domain.LoyaltyAccount, bool, error) {
	var row accountModel
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", t.userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LoyaltyAccount{}, false, nil
	}
	if err != nil {
		return domain.LoyaltyAccount{}, false, err
	}
	return toDomainAccount(row), true, nil
}

func (t *ledgerTx) CreateAccount(ctx context.Context, account domain.LoyaltyAccount) (domain.LoyaltyAccount, error) {
	account.UserID = t.userID
	row := toAccountModel(account)
	row.Sequence = 0
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.LoyaltyAccount{}, translateError(err)
	}
	return toDomainAccount(row), nil
}

func (t *ledgerTx) SaveAccount(ctx context.Context, account domain.LoyaltyAccount) error {
	if account.UserID != t.userID {
		return domain.ErrInvalidInput
	}
	res := t.db.WithContext(ctx).Model(&accountModel{}).Where("user_id = ?", t.userID).Updates(map[string]any{
		"total_points":    account.TotalPoints,
		"lifetime_points": account.LifetimePoints,
		"tier":            string(account.Tier),
		"is_active":       account.IsActive,
		"is_blocked":      account.IsBlocked,
		"total_spent":     account.TotalSpent,
		"total_orders":    account.TotalOrders,
		"updated_at":      account.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(ctx context.Context, txn domain.PointsTransaction) error {
	if txn.UserID != t.userID {
		return domain.ErrInvalidInput
	}
	row := toTransactionModel(txn)
	return translateError(t.db.WithContext(ctx).Create(&row).Error)
}

func (t *ledgerTx) FindOrderCredit(ctx context.Context, orderID string) (*domain.PointsTransaction, error) {
	var row transactionModel
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND order_id = ? AND reason = ?", t.userID, orderID, string(domain.ReasonOrderEarn)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	found := toDomainTransaction(row)
	return &found, nil
}

func (t *ledgerTx) CreateRedemption(ctx context.Context, code domain.RedemptionCode) error {
	row := toRedemptionModel(code)
	return translateError(t.db.WithContext(ctx).Create(&row).Error)
}

func (t *ledgerTx) GetRedemption(ctx context.Context, code string) (domain.RedemptionCode, error) {
	var row redemptionModel
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("code = ?", code).Take(&row).Error
	if err != nil {
		return domain.RedemptionCode{}, translateError(err)
	}
	t.readStatus[code] = row.Status
	return toDomainRedemption(row), nil
}

// SaveRedemption writes only if the code still carries the status this unit
// read. The sweeper expires codes outside the user lock, so a lost race
// surfaces as ErrConflict instead of overwriting its change.
func (t *ledgerTx) SaveRedemption(ctx context.Context, code domain.RedemptionCode) error {
	q := t.db.WithContext(ctx).Model(&redemptionModel{}).Where("code = ?", code.Code)
	if status, ok := t.readStatus[code.Code]; ok {
		q = q.Where("status = ?", status)
	}
	res := q.Updates(map[string]any{
		"status":   string(code.Status),
		"order_id": optional(code.OrderID),
		"used_at":  code.UsedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := t.db.WithContext(ctx).Model(&redemptionModel{}).Where("code = ?", code.Code).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	t.readStatus[code.Code] = string(code.Status)
	return nil
}

func (t *ledgerTx) EnqueueOutbox(ctx context.Context, event ports.OutboxEvent) error {
	row := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(event.Payload),
		CreatedAt:    event.OccurredAt.UTC(),
	}
	return t.db.WithContext(ctx).Create(&row).Error
}

var (
	_ ports.LedgerRepository = (*ledgerRepository)(nil)
	_ ports.LedgerTx         = (*ledgerTx)(nil)
)
