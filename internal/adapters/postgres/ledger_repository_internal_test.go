package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestSaveRedemptionDoesNotOverwriteConcurrentExpiry(t *testing.T) {
	t.Parallel()
	db := openSQLite(t)
	repo := &ledgerRepository{db: db}
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	code := domain.RedemptionCode{
		Code:       "AAAABBBBCCCC",
		UserID:     "u-1",
		RewardID:   "ship",
		RewardType: domain.RewardFreeShipping,
		PointsCost: 10,
		Status:     domain.RedemptionPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, repo.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		return tx.CreateRedemption(ctx, code)
	}))

	err := repo.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		current, err := tx.GetRedemption(ctx, code.Code)
		if err != nil {
			return err
		}
		// The sweeper commits its expiry between this unit's read and write.
		gtx := tx.(*ledgerTx).db
		if err := gtx.Model(&redemptionModel{}).Where("code = ?", code.Code).
			Update("status", string(domain.RedemptionExpired)).Error; err != nil {
			return err
		}
		used := now
		current.Status = domain.RedemptionUsed
		current.OrderID = "order-9"
		current.UsedAt = &used
		return tx.SaveRedemption(ctx, current)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	var row redemptionModel
	require.NoError(t, db.Where("code = ?", code.Code).Take(&row).Error)
	require.Equal(t, string(domain.RedemptionPending), row.Status)
	require.Nil(t, row.UsedAt)
}

func TestSaveRedemptionTracksItsOwnWrites(t *testing.T) {
	t.Parallel()
	db := openSQLite(t)
	repo := &ledgerRepository{db: db}
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	code := domain.RedemptionCode{
		Code:       "DDDDEEEEFFFF",
		UserID:     "u-1",
		RewardID:   "gift",
		RewardType: domain.RewardGift,
		PointsCost: 10,
		Status:     domain.RedemptionPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, repo.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		if err := tx.CreateRedemption(ctx, code); err != nil {
			return err
		}
		current, err := tx.GetRedemption(ctx, code.Code)
		if err != nil {
			return err
		}
		current.Status = domain.RedemptionCancelled
		if err := tx.SaveRedemption(ctx, current); err != nil {
			return err
		}
		return tx.SaveRedemption(ctx, current)
	}))

	missing := code
	missing.Code = "ZZZZZZZZZZZZ"
	err := repo.WithinUserLock(ctx, "u-1", func(tx ports.LedgerTx) error {
		return tx.SaveRedemption(ctx, missing)
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
