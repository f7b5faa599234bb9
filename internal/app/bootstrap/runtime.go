package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	cacheadapter "github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/cache"
	catalogadapter "github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/catalog"
	eventadapter "github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/http"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/jobs"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/memory"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/application"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M46-engagement-engine/internal/ports"
	"google.golang.org/grpc"
)

type Runtime struct {
	cfg     Config
	logger  *slog.Logger
	service *application.Service

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *grpcadapter.HealthReporter

	outboxWorker   *eventadapter.OutboxWorker
	consumerWorker *eventadapter.ConsumerWorker
	sweeper        *jobs.ExpirySweeper

	closers []func() error
}

type storage struct {
	activity    ports.ActivityRepository
	ledger      ports.LedgerRepository
	redemptions ports.RedemptionRepository
	outbox      ports.OutboxRepository
	eventDedup  ports.EventDedupRepository
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	rt := &Runtime{cfg: cfg, logger: logger}
	var checks []httpadapter.ReadinessCheck

	store, dbCheck, err := rt.openStorage(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if dbCheck != nil {
		checks = append(checks, *dbCheck)
	}

	var profiles ports.ProfileCache = cacheadapter.NewMemoryProfileCache()
	if cfg.RedisURL != "" {
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		profiles = cacheadapter.NewRedisProfileCache(client)
		checks = append(checks, httpadapter.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
			}
			return nil
		}})
	}

	var catalog ports.CatalogReader = catalogadapter.NewStaticCatalog()
	if cfg.CatalogURL != "" {
		client, err := catalogadapter.NewHTTPClient(catalogadapter.ClientConfig{
			BaseURL:          cfg.CatalogURL,
			Timeout:          cfg.CatalogTimeout,
			FailureThreshold: uint32(max(cfg.CatalogFailureThreshold, 1)),
			OpenTimeout:      cfg.CatalogOpenTimeout,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		catalog = client
		checks = append(checks, httpadapter.ReadinessCheck{Name: "catalog", Check: func(context.Context) error {
			if client.State() == gobreaker.StateOpen {
				return fmt.Errorf("%w: catalog circuit open", domain.ErrDependencyUnavailable)
			}
			return nil
		}})
	} else {
		logger.WarnContext(ctx, "no catalog configured; recommendations will be empty",
			"module", "bootstrap",
			"layer", "app",
			"operation", "new_runtime",
			"outcome", "degraded",
		)
	}

	loyalty := domain.LoyaltyRules{
		PointsPerCurrency: cfg.PointsPerCurrency,
		CurrencyPerPoint:  cfg.CurrencyPerPoint,
		PointsExpiryDays:  cfg.PointsExpiryDays,
		MinOrderAmount:    cfg.MinOrderAmount,
		MaxPointsPerOrder: cfg.MaxPointsPerOrder,
	}
	if err := loyalty.Validate(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("loyalty rules: %w", err)
	}

	rt.service = application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:                  cfg.ServiceID,
			Loyalty:                      loyalty,
			FavoriteCategoryLimit:        cfg.FavoriteCategoryLimit,
			CandidatePoolSize:            cfg.CandidatePoolSize,
			MaxRecommendationLimit:       cfg.MaxRecommendationLimit,
			RecommendationTimeout:        cfg.RecommendationTimeout,
			ScoringParallelism:           cfg.ScoringParallelism,
			ProfileCacheTTL:              cfg.ProfileCacheTTL,
			SweepBatchSize:               cfg.SweepBatchSize,
			EventDedupTTL:                cfg.EventDedupTTL,
			EnableDomainEventConsumption: cfg.EnableDomainEventConsumption,
		},
		Logger:      logger,
		Activity:    store.activity,
		Ledger:      store.ledger,
		Redemptions: store.redemptions,
		EventDedup:  store.eventDedup,
		Profiles:    profiles,
		Catalog:     catalog,
	})

	publisher, consumer, err := rt.openEvents()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.outboxWorker = eventadapter.NewOutboxWorker(logger, store.outbox, publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	rt.consumerWorker = eventadapter.NewConsumerWorker(logger, consumer, rt.service, cfg.ConsumerPollInterval)
	if cfg.EnableRedemptionSweep {
		rt.sweeper = jobs.NewExpirySweeper(logger, rt.service, cfg.SweepInterval)
	}

	rt.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(logger, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	healthChecks := make([]grpcadapter.CheckFunc, 0, len(checks))
	for _, check := range checks {
		healthChecks = append(healthChecks, check.Check)
	}
	rt.health = grpcadapter.NewHealthReporter(healthChecks...)
	rt.grpcServer = grpc.NewServer()
	grpcadapter.Register(rt.grpcServer, rt.health)
	return rt, nil
}

func (r *Runtime) openStorage(ctx context.Context) (storage, *httpadapter.ReadinessCheck, error) {
	if r.cfg.DatabaseURL == "" {
		r.logger.WarnContext(ctx, "no database configured; using in-memory storage",
			"module", "bootstrap",
			"layer", "app",
			"operation", "open_storage",
			"outcome", "degraded",
		)
		repos := memory.NewRepositories()
		return storage{
			activity:    repos.Activity,
			ledger:      repos.Ledger,
			redemptions: repos.Redemptions,
			outbox:      repos.Outbox,
			eventDedup:  repos.EventDedup,
		}, nil, nil
	}
	db, err := postgres.Open(ctx, r.cfg.DatabaseURL, postgres.PoolConfig{MaxConns: r.cfg.DatabaseMaxConns})
	if err != nil {
		return storage{}, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return storage{}, nil, err
	}
	r.closers = append(r.closers, sqlDB.Close)
	if err := postgres.Migrate(ctx, db); err != nil {
		return storage{}, nil, err
	}
	repos := postgres.NewRepositories(db)
	check := &httpadapter.ReadinessCheck{Name: db.Dialector.Name(), Check: func(ctx context.Context) error {
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		return nil
	}}
	return storage{
		activity:    repos.Activity,
		ledger:      repos.Ledger,
		redemptions: repos.Redemptions,
		outbox:      repos.Outbox,
		eventDedup:  repos.EventDedup,
	}, check, nil
}

func (r *Runtime) openEvents() (ports.EventPublisher, eventadapter.Consumer, error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		return eventadapter.NewLoggingPublisher(r.logger), eventadapter.NewNoopConsumer(), nil
	}
	topicByEvent := map[string]string{
		domain.EventPointsCredited:      r.cfg.TopicLoyaltyEvents,
		domain.EventTierUpgraded:        r.cfg.TopicLoyaltyEvents,
		domain.EventPointsRedeemed:      r.cfg.TopicLoyaltyEvents,
		domain.EventRedemptionUsed:      r.cfg.TopicLoyaltyEvents,
		domain.EventRedemptionCancelled: r.cfg.TopicLoyaltyEvents,
	}
	publisher, err := eventadapter.NewKafkaPublisher(r.cfg.KafkaBrokers, topicByEvent)
	if err != nil {
		return nil, nil, err
	}
	r.closers = append(r.closers, publisher.Close)
	consumer, err := eventadapter.NewKafkaConsumer(eventadapter.KafkaConsumerConfig{
		Brokers: r.cfg.KafkaBrokers,
		GroupID: r.cfg.KafkaConsumerGroup,
		EventTopics: map[string]string{
			domain.EventUserRegistered: r.cfg.TopicUserRegistered,
			domain.EventOrderCompleted: r.cfg.TopicOrderCompleted,
			domain.EventProductViewed:  r.cfg.TopicProductViewed,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	r.closers = append(r.closers, consumer.Close)
	return publisher, consumer, nil
}

func (r *Runtime) Service() *application.Service {
	return r.service
}

// RunAPI serves ops HTTP and gRPC health until a signal arrives.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	tree := newSupervisorTree(r.cfg.ServiceID+"-api", r.logger, TreeConfig{})
	tree.transport.Add(&httpServerService{server: r.httpServer, shutdownTimeout: 10 * time.Second})
	tree.transport.Add(&grpcServerService{server: r.grpcServer, addr: fmt.Sprintf(":%d", r.cfg.GRPCPort)})
	tree.workers.Add(r.health)
	return r.serve(ctx, tree)
}

// RunWorker runs the outbox publisher, the inbound consumer and the expiry sweeper.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.Close()

	tree := newSupervisorTree(r.cfg.ServiceID+"-worker", r.logger, TreeConfig{})
	tree.workers.Add(r.outboxWorker)
	tree.workers.Add(r.consumerWorker)
	if r.sweeper != nil {
		tree.workers.Add(r.sweeper)
	}
	return r.serve(ctx, tree)
}

func (r *Runtime) serve(ctx context.Context, tree *supervisorTree) error {
	if err := tree.serve(ctx); err != nil {
		r.logger.ErrorContext(ctx, "runtime failure",
			"module", "bootstrap",
			"layer", "app",
			"operation", "serve",
			"outcome", "failure",
			"error", err,
		)
		return err
	}
	return nil
}

func (r *Runtime) Close() {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("runtime close reported errors",
			"module", "bootstrap",
			"layer", "app",
			"operation", "close",
			"outcome", "failure",
			"error", err,
		)
	}
}
