package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type activityRepository struct {
	db *gorm.DB
}

func (r *activityRepository) EnsureUser(ctx context.Context, userID string, at time.Time) (bool, error) {
	row := userModel{UserID: userID, CreatedAt: at.UTC(), UpdatedAt: at.UTC()}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *activityRepository) AppendPurchase(ctx context.Context, order domain.OrderSummary) (int64, bool, error) {
	row, err := toPurchaseModel(order)
	if err != nil {
		return 0, false, err
	}
	var (
		version  int64
		recorded bool
	)
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, order.UserID)
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			version = user.ActivityVersion
			return nil
		}
		recorded = true
		version, err = bumpVersion(tx, user, order.PlacedAt)
		return err
	})
	if err != nil {
		return 0, false, translateError(err)
	}
	return version, recorded, nil
}

func (r *activityRepository) AppendView(ctx context.Context, userID, productID string, at time.Time) (int64, error) {
	var version int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		view := viewModel{
			UserID:        userID,
			ProductID:     productID,
			ViewCount:     1,
			FirstViewedAt: at.UTC(),
			LastViewedAt:  at.UTC(),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"view_count":     gorm.Expr("product_views.view_count + 1"),
				"last_viewed_at": at.UTC(),
			}),
		}).Create(&view).Error
		if err != nil {
			return err
		}
		version, err = bumpVersion(tx, user, at)
		return err
	})
	return version, translateError(err)
}

func (r *activityRepository) LoadActivity(ctx context.Context, userID string) (ports.UserActivity, error) {
	db := r.db.WithContext(ctx)
	var user userModel
	if err := db.Where("user_id = ?", userID).Take(&user).Error; err != nil {
		return ports.UserActivity{}, translateError(err)
	}
	var purchases []purchaseModel
	if err := db.Where("user_id = ?", userID).Order("placed_at asc").Order("order_id asc").Find(&purchases).Error; err != nil {
		return ports.UserActivity{}, translateError(err)
	}
	var views []viewModel
	if err := db.Where("user_id = ?", userID).Order("product_id asc").Find(&views).Error; err != nil {
		return ports.UserActivity{}, translateError(err)
	}
	out := ports.UserActivity{
		UserID:         userID,
		Orders:         make([]domain.OrderSummary, 0, len(purchases)),
		ViewedProducts: make([]string, 0, len(views)),
		Version:        user.ActivityVersion,
	}
	for _, p := range purchases {
		order, err := toDomainOrder(p)
		if err != nil {
			return ports.UserActivity{}, err
		}
		out.Orders = append(out.Orders, order)
	}
	for _, v := range views {
		out.ViewedProducts = append(out.ViewedProducts, v.ProductID)
	}
	return out, nil
}

func (r *activityRepository) ActivityVersion(ctx context.Context, userID string) (int64, error) {
	var user userModel
	if err := r.db.WithContext(ctx).Select("activity_version").Where("user_id = ?", userID).Take(&user).Error; err != nil {
		return 0, translateError(err)
	}
	return user.ActivityVersion, nil
}

func lockUser(tx *gorm.DB, userID string) (userModel, error) {
	var user userModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return userModel{}, domain.ErrNotFound
	}
	return user, err
}

func bumpVersion(tx *gorm.DB, user userModel, at time.Time) (int64, error) {
	next := user.ActivityVersion + 1
	err := tx.Model(&userModel{}).Where("user_id = ?", user.UserID).Updates(map[string]any{
		"activity_version": next,
		"updated_at":       at.UTC(),
	}).Error
	return next, err
}

var _ ports.ActivityRepository = (*activityRepository)(nil)
