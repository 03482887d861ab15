package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aiassist/core/internal/config"
	"github.com/aiassist/core/internal/database"
	"github.com/aiassist/core/internal/middleware"
	"github.com/aiassist/core/internal/modules/analytics"
	"github.com/aiassist/core/internal/modules/processing/ai"
	"github.com/aiassist/core/internal/pkg/alert"
	pkgcron "github.com/aiassist/core/internal/pkg/cron"
	"github.com/aiassist/core/internal/pkg/jwt"
	pkgredis "github.com/aiassist/core/internal/pkg/redis"
	"github.com/aiassist/core/internal/pkg/session"
	"github.com/aiassist/core/internal/pkg/usage"
	"github.com/aiassist/core/internal/pkg/validation"
	"github.com/aiassist/core/internal/store"
	"github.com/aiassist/core/internal/store/memstore"
	"github.com/aiassist/core/internal/store/mongostore"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "1.0.0"

// App holds all application dependencies.
type App struct {
	cfg         *config.AppConfig
	router      *gin.Engine
	store       store.Store
	rdb         *pkgredis.Client
	analyticsDB *gorm.DB
	logger      *zap.Logger
	sched       *pkgcron.Scheduler
	cancel      context.CancelFunc
}

// Deps are the connections the application is built on. Redis, Sink and
// AnalyticsDB are optional.
type Deps struct {
	Store       store.Store
	Redis       *pkgredis.Client
	Sink        analytics.Sink
	AnalyticsDB *gorm.DB
	Provider    ai.Provider
}

// New initializes the application: config → store → Redis → analytics →
// routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	ctx := context.Background()

	var (
		deps Deps
		mdb  *mongo.Database
		err  error
	)
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		deps.Store = memstore.New()
	default:
		mdb, err = database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		deps.Store, err = mongostore.New(ctx, mdb, logger.Named("Store"))
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
	}

	deps.Redis, err = pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		// Rate limiting and idempotence fail open without redis.
		logger.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		deps.Redis = nil
	}

	if cfg.Analytics.Enabled {
		deps.Sink, deps.AnalyticsDB, err = openAnalytics(ctx, cfg, mdb)
		if err != nil {
			_ = deps.Store.Close(ctx)
			return nil, fmt.Errorf("analytics: %w", err)
		}
	}

	return Build(logger, cfg, deps)
}

func openAnalytics(ctx context.Context, cfg *config.AppConfig, mdb *mongo.Database) (analytics.Sink, *gorm.DB, error) {
	switch {
	case cfg.Analytics.Sink == config.AnalyticsSinkMySQL:
		db, err := database.OpenMySQL(cfg.Analytics.MySQLDSN, cfg.IsDev())
		if err != nil {
			return nil, nil, err
		}
		return analytics.NewGormSink(db), db, nil
	case mdb != nil:
		sink, err := analytics.NewMongoSink(ctx, mdb, cfg.Analytics.RetentionDays)
		if err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	default:
		return analytics.NewMemorySink(analyticsMemoryLimit), nil, nil
	}
}

const analyticsMemoryLimit = 1000

// Build wires services and routes on top of ready connections.
func Build(logger *zap.Logger, cfg *config.AppConfig, deps Deps) (*App, error) {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	validation.Setup()

	signer, err := jwt.NewSigner(cfg.JWT.Secret, cfg.JWT.RefreshSecret, cfg.JWT.ExpiresIn, cfg.JWT.RefreshExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	notifier := alert.New(alert.Config{
		Key:       cfg.Alert.BarkKey,
		Server:    cfg.Alert.BarkServer,
		SiteTitle: cfg.Alert.SiteTitle,
	}, logger.Named("Alert"))

	provider := deps.Provider
	if provider == nil {
		provider, err = ai.NewProvider(cfg.AI, logger.Named("AI"), ai.WithAuthFailureHook(notifier.ProviderAuthFailure))
		if err != nil {
			return nil, fmt.Errorf("ai provider: %w", err)
		}
	}

	svc := &services{
		store:    deps.Store,
		rdb:      deps.Redis,
		sessions: session.NewManager(signer, deps.Store),
		gate: usage.NewGate(deps.Store, usage.TableFromConfig(cfg.AILimits),
			usage.WithLocation(cfg.Location()),
			usage.WithReservationTTL(cfg.AILimits.ReservationTTL)),
		tracker:  analytics.NewTracker(deps.Sink, logger.Named("Analytics")),
		pipeline: ai.NewPipeline(provider, cfg.AI.Timeout, logger.Named("AI")),
		notifier: notifier,
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New(pkgcron.WithLogger(logger.Named("Cron")))
	registerCronJobs(sched, cfg, deps, logger)
	go sched.Start(ctx)

	a := &App{
		cfg:         cfg,
		router:      router,
		store:       deps.Store,
		rdb:         deps.Redis,
		analyticsDB: deps.AnalyticsDB,
		logger:      logger,
		sched:       sched,
		cancel:      cancel,
	}
	a.registerRoutes(svc)

	logger.Info("application ready",
		zap.String("env", cfg.Env),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", deps.Redis != nil),
		zap.Bool("analytics", svc.tracker.Enabled()),
		zap.Any("ai", svc.pipeline.Status()))
	return a, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and closes every connection.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.analyticsDB != nil {
		if sqlDB, err := a.analyticsDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
}
