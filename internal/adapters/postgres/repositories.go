// Package postgres persists engine state through gorm. Ledger units run in one
// database transaction holding a row lock per user.
package postgres

import (
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Activity    ports.ActivityRepository
	Ledger      ports.LedgerRepository
	Redemptions ports.RedemptionRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Activity:    &activityRepository{db: db},
		Ledger:      &ledgerRepository{db: db},
		Redemptions: &redemptionRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		EventDedup:  &eventDedupRepository{db: db},
	}
}
