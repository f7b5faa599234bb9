package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLitePrefix selects the single-node SQLite store, e.g. "sqlite:file:engagement.db".
const SQLitePrefix = "sqlite:"

// PoolConfig sizes the connection pool. Every ledger unit pins one connection
// for its whole transaction, so idle connections are kept at the open limit.
type PoolConfig struct {
	MaxConns        int32
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxConns <= 0 {
		p.MaxConns = 10
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = 5 * time.Minute
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 30 * time.Minute
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = 5 * time.Second
	}
	return p
}

// Open connects to postgres, or to SQLite when databaseURL carries SQLitePrefix.
// SQLite ignores row locks, so it is limited to one connection and ledger units
// serialize on it.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*gorm.DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}
	pool = pool.withDefaults()

	var (
		dialector gorm.Dialector
		conns     = int(pool.MaxConns)
	)
	if dsn, ok := strings.CutPrefix(databaseURL, SQLitePrefix); ok {
		dialector = sqlite.Open(dsn)
		conns = 1
	} else {
		dialector = postgres.Open(databaseURL)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    dialector.Name() == "postgres",
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}
	return db, nil
}

// Migrate brings the schema up to date: embedded SQL migrations on postgres,
// model-driven AutoMigrate on SQLite.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db.Dialector.Name() == "sqlite" {
		return AutoMigrate(db.WithContext(ctx))
	}
	return RunMigrations(ctx, db)
}

type schemaMigrationModel struct {
	Name      string    `gorm:"column:name;primaryKey"`
	AppliedAt time.Time `gorm:"column:applied_at"`
}

func (schemaMigrationModel) TableName() string { return "engagement_schema_migrations" }

// RunMigrations applies each embedded migration once, in file-name order, and
// records it in engagement_schema_migrations inside the same transaction.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if err := db.Exec(`CREATE TABLE IF NOT EXISTS engagement_schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
)`).Error; err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			// Concurrent replicas queue on the marker row instead of racing the DDL.
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&schemaMigrationModel{Name: name, AppliedAt: time.Now().UTC()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			return tx.Exec(string(raw)).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// AutoMigrate creates the schema from the models, for SQLite databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userModel{},
		&purchaseModel{},
		&viewModel{},
		&ledgerLockModel{},
		&accountModel{},
		&transactionModel{},
		&redemptionModel{},
		&outboxModel{},
		&eventDedupModel{},
	)
}
