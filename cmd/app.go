package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/smartwater-vending/api"
	"github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	aggregatePostgres "github.com/frahmantamala/smartwater-vending/internal/aggregate/postgres"
	"github.com/frahmantamala/smartwater-vending/internal/auth"
	"github.com/frahmantamala/smartwater-vending/internal/core/datamodel"
	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/lock"
	"github.com/frahmantamala/smartwater-vending/internal/meter"
	meterPostgres "github.com/frahmantamala/smartwater-vending/internal/meter/postgres"
	"github.com/frahmantamala/smartwater-vending/internal/metrics"
	"github.com/frahmantamala/smartwater-vending/internal/notification"
	"github.com/frahmantamala/smartwater-vending/internal/payment"
	paymentPostgres "github.com/frahmantamala/smartwater-vending/internal/payment/postgres"
	"github.com/frahmantamala/smartwater-vending/internal/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/reconcile"
	"github.com/frahmantamala/smartwater-vending/internal/tokengen"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/internal/transport/middleware"
	"github.com/frahmantamala/smartwater-vending/internal/transport/rest"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
	vendingPostgres "github.com/frahmantamala/smartwater-vending/internal/vending/postgres"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

// App holds every long-lived dependency. Commands build one, use the parts
// they need and Close it on the way out.
type App struct {
	Config  *internal.Config
	Logger  *slog.Logger
	DB      *gorm.DB
	SQLX    *sqlx.DB
	Redis   *redis.Client
	NATS    *nats.Conn
	Metrics *metrics.Metrics
	Bus     *events.EventBus

	Tokens     *auth.TokenService
	Aggregates *aggregate.Service
	Meters     *meter.Service
	Payments   *payment.Service
	Pipeline   *vending.Pipeline
	Vending    *vending.Service
	Notifier   *notification.Service
	Gateway    *paymentgateway.Client
	Simulator  *payment.Simulator
	Reconciler *reconcile.Service
}

func NewApp(ctx context.Context, cfg *internal.Config) (*App, error) {
	lg := logger.LoggerWrapper()
	app := &App{Config: cfg, Logger: lg}

	var err error
	if app.DB, app.SQLX, err = openDatabase(cfg.Database); err != nil {
		return nil, err
	}

	if cfg.Observability.Metrics.Enabled {
		app.Metrics = metrics.New(metrics.Config{
			ServiceName: cfg.Observability.Metrics.ServiceName,
			Environment: cfg.Observability.Metrics.Environment,
		})
	}

	locker, err := app.newLocker(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.NATS.URL != "" {
		app.NATS, err = nats.Connect(cfg.NATS.URL,
			nats.Name("smartwater"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				lg.Warn("nats disconnected", "error", err)
			}),
		)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
	}

	if app.Tokens, err = auth.NewTokenServiceFromConfig(cfg.Security); err != nil {
		app.Close()
		return nil, fmt.Errorf("load jwt keys: %w", err)
	}

	provider, err := notification.NewProvider(cfg.SMS, nil, lg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Notifier = notification.NewService(provider, cfg.Vending.NotifyTimeout, lg,
		notification.WithMetrics(app.Metrics),
		notification.WithBulkRate(cfg.SMS.BulkRatePerSecond))

	converter, err := tokengen.NewConverter(decimal.NewFromFloat(cfg.Vending.RatePerUnit))
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Bus = events.NewEventBus(lg)
	app.Aggregates = aggregate.NewService(aggregatePostgres.NewAggregateRepository(app.DB), locker, lg)
	app.Meters = meter.NewService(meterPostgres.NewMeterRepository(app.DB), lg)
	app.Payments = payment.NewService(
		paymentPostgres.NewPaymentRepository(app.DB),
		app.Aggregates,
		app.Meters,
		app.Bus,
		app.Metrics,
		lg,
		payment.ServiceConfig{RequireRegisteredMeter: cfg.Daraja.RequireRegisteredMeter},
	)

	vendRepo := vendingPostgres.NewVendingRepository(app.DB)
	app.Pipeline = vending.NewPipeline(
		vendRepo,
		tokengen.NewGenerator(cfg.Vending.TokenLength),
		converter,
		app.Notifier,
		app.Aggregates,
		lg,
		vending.PipelineConfig{
			MaxTokenAttempts: cfg.Vending.MaxTokenAttempts,
			NotifyTimeout:    cfg.Vending.NotifyTimeout,
		},
		vending.WithPublisher(app.Bus),
		vending.WithMetrics(app.Metrics),
	)
	app.Vending = vending.NewService(app.Pipeline, vendRepo)

	app.Gateway = paymentgateway.NewClient(cfg.Daraja, nil, lg, app.Metrics)
	app.Simulator = payment.NewSimulator(app.Gateway, app.Payments, app.Pipeline, payment.SimulatorConfig{
		ShortCode:     cfg.Daraja.ShortCode,
		SandboxMSISDN: cfg.Daraja.SandboxMSISDN,
	}, lg)
	app.Reconciler = reconcile.NewService(app.SQLX, app.Aggregates, lg)

	return app, nil
}

func (a *App) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Redis.Addr == "" {
		a.Logger.Info("using in-process meter locks")
		return lock.NewMemoryLocker(), nil
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.Redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return lock.NewRedisLocker(a.Redis, "smartwater:lock:", a.Config.Redis.LockTTL, a.Logger)
}

// StartVending wires payment.recorded to a local dispatcher. In nats mode the
// events are forwarded instead and a `worker vend` process does the vending.
func (a *App) StartVending() *vending.Dispatcher {
	natsMode := a.Config.Vending.DispatchMode == internal.DispatchModeNATS

	if a.NATS != nil {
		forwarded := []string{events.EventTypeVendCompleted, events.EventTypeVendAggregateFailed}
		if natsMode {
			forwarded = append(forwarded, events.EventTypePaymentRecorded)
		}
		events.NewNATSBridge(a.NATS, a.Config.NATS.SubjectPrefix, a.Logger).Forward(a.Bus, forwarded...)
	}

	if natsMode {
		a.Logger.Info("payment.recorded forwarded to nats for out-of-process vending")
		return nil
	}

	dispatcher := vending.NewDispatcher(a.Pipeline, vending.DispatcherConfig{
		Workers:   a.Config.Vending.Workers,
		QueueSize: a.Config.Vending.QueueSize,
	}, a.Logger, a.Metrics)
	dispatcher.Start()
	vending.NewEventHandler(dispatcher, a.Logger).RegisterEventHandlers(a.Bus)
	return dispatcher
}

func (a *App) Router() (*chi.Mux, error) {
	base := transport.NewBaseHandler(a.Logger)

	validator, err := middleware.NewRequestValidator(api.OpenAPISpec)
	if err != nil {
		return nil, err
	}

	checks := map[string]rest.HealthCheck{"database": rest.DatabaseCheck(a.SQLX)}
	if a.Redis != nil {
		checks["redis"] = rest.RedisCheck(a.Redis)
	}
	if a.NATS != nil {
		checks["nats"] = rest.NATSCheck(a.NATS)
	}

	routes := rest.Routes{
		Base:           base,
		Health:         rest.NewHealthHandler(checks),
		Verifier:       a.Tokens,
		Validator:      validator,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Auth:           auth.NewHandler(base),
		Webhook:        payment.NewWebhookHandler(base, a.Payments),
		Payment:        payment.NewHandler(base, a.Payments, a.Gateway, a.Simulator, a.Config.Daraja.CallbackBaseURL),
		Vending:        vending.NewHandler(base, a.Vending),
		Meter:          meter.NewHandler(base, a.Meters),
		Aggregate:      aggregate.NewHandler(base, a.Aggregates),
	}
	if a.Metrics != nil {
		routes.MetricsPath = a.Config.Observability.Metrics.Path
		routes.MetricsHandler = a.Metrics.Handler()
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, routes)
	return router, nil
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.NATS != nil {
		if err := a.NATS.Drain(); err != nil {
			a.Logger.Warn("nats drain failed", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", "error", err)
		}
	}
	if a.SQLX != nil {
		if err := a.SQLX.Close(); err != nil {
			a.Logger.Error("database close error", "error", err)
		}
	}
}

// openDatabase returns gorm for the repositories and sqlx over the same pool
// for raw queries.
func openDatabase(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	var (
		dialector  gorm.Dialector
		driverName string
	)
	switch cfg.Driver {
	case "sqlite":
		dialector, driverName = sqlite.Open(cfg.Source), "sqlite3"
	default:
		dialector, driverName = postgres.Open(cfg.Source), "pgx"
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// one connection keeps an in-memory database alive and serialises writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		if err := db.AutoMigrate(datamodel.Models()...); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	return db, sqlx.NewDb(sqlDB, driverName), nil
}

func (a *App) httpServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
	}
}
