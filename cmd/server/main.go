package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/erp/backoffice/internal/application/billing"
	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/infrastructure/cache"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/event"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/erp/backoffice/internal/infrastructure/migration"
	"github.com/erp/backoffice/internal/infrastructure/persistence"
	"github.com/erp/backoffice/internal/infrastructure/scheduler"
	"github.com/erp/backoffice/internal/interfaces/http/handler"
	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/erp/backoffice/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting backoffice",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	obs, err := setupTelemetry(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		obs.shutdown(ctx, log)
	}()
	log = obs.bridge(log, cfg)

	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if err := obs.instrumentDatabase(db, cfg, log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(db, cfg.Database.Driver, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	guards := cache.NewRefundGuardFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
		cache.WithDatabaseGuard(persistence.NewAdvisoryRefundGuard(db.DB)),
	)
	guard, closeGuard, err := guards.Create(cfg.Billing.RefundGuard)
	if err != nil {
		log.Fatal("Failed to create refund guard", zap.Error(err))
	}
	defer func() {
		if err := closeGuard(); err != nil {
			log.Error("Error closing refund guard", zap.Error(err))
		}
	}()

	bus := event.NewInMemoryEventBus(log)
	if cfg.Kafka.Enabled {
		producer, err := event.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("Failed to connect to Kafka", zap.Error(err), zap.Strings("brokers", cfg.Kafka.Brokers))
		}
		forwarder := event.NewKafkaForwarder(producer, cfg.Kafka.Topic, log)
		bus.Subscribe(forwarder)
		defer func() {
			if err := forwarder.Close(); err != nil {
				log.Error("Error closing Kafka producer", zap.Error(err))
			}
		}()
		log.Info("Forwarding payment notifications to Kafka", zap.String("topic", cfg.Kafka.Topic))
	}
	if err := bus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	repos := db.Repositories()
	sales := appbilling.NewSaleService(appbilling.SaleServiceConfig{
		Payments:  repos.Payments,
		Invoices:  repos.Invoices,
		Orders:    repos.Orders,
		Guard:     guard,
		Publisher: bus,
		Metrics:   obs.billing,
		Logger:    log,
	})

	var resync *resyncSweep
	if cfg.Billing.ResyncEnabled {
		resync, err = startResyncSweep(cfg.Billing, sales, repos.Payments, log)
		if err != nil {
			log.Fatal("Failed to start resync sweep", zap.Error(err))
		}
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.App.Name,
		Mode:           ginMode(cfg.App.Env),
		CORS:           middleware.CORSConfigFrom(cfg.HTTP.CORSAllowOrigins, cfg.HTTP.CORSAllowMethods, cfg.HTTP.CORSAllowHeaders),
		Security:       securityConfig(cfg.App.Env),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing:        cfg.HTTP.Tracing,
	}, log)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, cfg.App.Env, healthChecks(db, guard)...)
	r := router.NewRouter(engine)
	r.RegisterRoot(healthRoutes{systemHandler}).
		Register(systemHandler).
		Register(handler.NewBillingHandler(sales))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if resync != nil {
		resync.stop(ctx, log)
	}
	if err := bus.Stop(ctx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// migrateUp applies the embedded schema. The migrator is not closed: its
// database driver owns the pool handed to it and would close it.
func migrateUp(db *persistence.Database, driver string, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, driver, log)
	if err != nil {
		return err
	}
	return m.Up()
}

// resyncSweep periodically re-propagates scopes whose ledger changed
type resyncSweep struct {
	scheduler *scheduler.Scheduler
	trigger   *scheduler.SweepTrigger
}

func startResyncSweep(cfg config.BillingConfig, sales *appbilling.SaleService, source scheduler.ScopeSource, log *zap.Logger) (*resyncSweep, error) {
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Workers = cfg.ResyncWorkers
	sched := scheduler.NewScheduler(schedCfg, sales, log)
	if err := sched.Start(context.Background()); err != nil {
		return nil, err
	}

	trigger := scheduler.NewSweepTrigger(scheduler.SweepConfig{
		Interval:  cfg.ResyncInterval,
		Lookback:  cfg.ResyncLookback,
		BatchSize: cfg.ResyncBatch,
	}, sched, source, log)
	if err := trigger.Start(context.Background()); err != nil {
		_ = sched.Stop(context.Background())
		return nil, err
	}
	return &resyncSweep{scheduler: sched, trigger: trigger}, nil
}

func (r *resyncSweep) stop(ctx context.Context, log *zap.Logger) {
	if err := r.trigger.Stop(ctx); err != nil {
		log.Error("Error stopping resync sweep", zap.Error(err))
	}
	if err := r.scheduler.Stop(ctx); err != nil {
		log.Error("Error stopping resync scheduler", zap.Error(err))
	}
}

// healthRoutes mounts the readiness probe at the engine root
type healthRoutes struct {
	h *handler.SystemHandler
}

func (r healthRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", r.h.Health)
}

func healthChecks(db *persistence.Database, guard billing.RefundGuard) []handler.SystemHandlerOption {
	opts := []handler.SystemHandlerOption{
		handler.WithHealthCheck("database", func(ctx context.Context) error {
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if rg, ok := guard.(interface{ GetClient() *redis.Client }); ok {
		opts = append(opts, handler.WithHealthCheck("redis", func(ctx context.Context) error {
			return rg.GetClient().Ping(ctx).Err()
		}))
	}
	return opts
}

func ginMode(env string) string {
	if env == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

func securityConfig(env string) middleware.SecurityConfig {
	cfg := middleware.DefaultSecurityConfig()
	cfg.HSTSEnabled = env == "production"
	return cfg
}
