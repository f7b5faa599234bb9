package postgres

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"gorm.io/gorm"
)

type redemptionRepository struct {
	db *gorm.DB
}

func (r *redemptionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&redemptionModel{}).Where("code = ?", code).Count(&count).Error
	return count > 0, translateError(err)
}

func (r *redemptionRepository) GetByCode(ctx context.Context, code string) (domain.RedemptionCode, error) {
	var row redemptionModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error; err != nil {
		return domain.RedemptionCode{}, translateError(err)
	}
	return toDomainRedemption(row), nil
}

func (r *redemptionRepository) ListByUser(ctx context.Context, userID string) ([]domain.RedemptionCode, error) {
	var rows []redemptionModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Order("code asc").Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	return toDomainRedemptions(rows), nil
}

func (r *redemptionRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.RedemptionCode, error) {
	var rows []redemptionModel
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.RedemptionPending), now.UTC()).
		Order("expires_at asc").
		Order("code asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	return toDomainRedemptions(rows), nil
}

func (r *redemptionRepository) MarkExpired(ctx context.Context, code string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&redemptionModel{}).
		Where("code = ? AND status = ? AND expires_at < ?", code, string(domain.RedemptionPending), at.UTC()).
		Update("status", string(domain.RedemptionExpired))
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&redemptionModel{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, translateError(err)
	}
	if count == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func toDomainRedemptions(rows []redemptionModel) []domain.RedemptionCode {
	out := make([]domain.RedemptionCode, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainRedemption(row))
	}
	return out
}

var _ ports.RedemptionRepository = (*redemptionRepository)(nil)
