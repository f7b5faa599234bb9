package postgres

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventDedupRepository struct {
	db *gorm.DB
}

func (r *eventDedupRepository) IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&eventDedupModel{}).
		Where("event_id = ? AND expires_at > ?", eventID, now.UTC()).
		Count(&count).Error
	return count > 0, translateError(err)
}

// MarkProcessed upserts the marker; a redelivered event past its retention
// starts a fresh window.
func (r *eventDedupRepository) MarkProcessed(ctx context.Context, eventID, eventType string, processedAt, expiresAt time.Time) error {
	row := eventDedupModel{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: processedAt.UTC(),
		ExpiresAt:   expiresAt.UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_type", "processed_at", "expires_at"}),
	}).Create(&row).Error
	return translateError(err)
}

// PurgeExpired deletes up to limit lapsed markers, oldest first.
func (r *eventDedupRepository) PurgeExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	db := r.db.WithContext(ctx)
	lapsed := db.Model(&eventDedupModel{}).Select("event_id").Where("expires_at <= ?", now.UTC()).Order("expires_at asc")
	if limit > 0 {
		lapsed = lapsed.Limit(limit)
	}
	res := db.Where("event_id IN (?)", lapsed).Delete(&eventDedupModel{})
	return res.RowsAffected, translateError(res.Error)
}

var _ ports.EventDedupRepository = (*eventDedupRepository)(nil)
