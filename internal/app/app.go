package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/api"
	"github.com/Ayash-Bera/metricslab/backend/internal/api/handlers"
	"github.com/Ayash-Bera/metricslab/backend/internal/cloudsync"
	"github.com/Ayash-Bera/metricslab/backend/internal/config"
	"github.com/Ayash-Bera/metricslab/backend/internal/database"
	"github.com/Ayash-Bera/metricslab/backend/internal/events"
	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/Ayash-Bera/metricslab/backend/internal/feedback"
	"github.com/Ayash-Bera/metricslab/backend/internal/health"
	"github.com/Ayash-Bera/metricslab/backend/internal/middleware"
	"github.com/Ayash-Bera/metricslab/backend/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// LocalStore is a local record backend.
type LocalStore interface {
	experiment.KV
	Ping(ctx context.Context) error
}

// App holds every long-lived component of the service.
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	DB         *database.Manager
	Repos      *repository.RepositoryManager
	Local      LocalStore
	RedisStore *database.RedisStore
	Bus        *events.Bus

	Store    *experiment.Store
	Tracker  *experiment.Tracker
	Sync     *cloudsync.Service
	Sessions *cloudsync.Registry
	Feedback *feedback.Service
	Health   *health.HealthChecker
	Limiter  *middleware.RateLimiter

	badger  *database.BadgerStore
	closers []func() error
}

type options struct {
	db *gorm.DB
}

type Option func(*options)

// WithDB uses an already opened gorm connection instead of dialing
// database.url. Redis is still dialed when redis.url is set.
func WithDB(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// New wires the application from configuration. On error, everything
// opened so far is closed.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	if err := a.wire(o); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(o options) error {
	cfg := a.Config

	if err := a.openDatabase(o); err != nil {
		return err
	}
	a.Repos = repository.NewRepositoryManager(a.DB.DB)

	if err := a.openLocalStore(); err != nil {
		return err
	}
	if err := a.openBus(); err != nil {
		return err
	}

	a.Store = experiment.NewStore(a.Local, a.Logger, experiment.WithNotifier(a.Bus))
	a.Tracker = experiment.NewTracker(a.Store, cfg.Experiment, a.Logger)
	a.Sync = cloudsync.NewService(a.Store, a.Repos.Documents, a.Bus, cfg.Sync, a.Logger)
	a.Sessions = cloudsync.NewRegistry(a.Sync)
	a.Feedback = feedback.NewService(a.Tracker, a.Repos.Feedback, a.Logger)
	a.Health = health.NewHealthChecker(a.Repos.SystemHealth, a.Logger, a.probes()...)
	a.Limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)
	return nil
}

func (a *App) openDatabase(o options) error {
	if o.db == nil {
		dbm, err := database.NewManager(&database.Config{
			DatabaseURL: a.Config.Database.URL,
			RedisURL:    a.Config.Redis.URL,
			LogLevel:    a.Config.Log.Level,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.DB = dbm
		a.closers = append(a.closers, dbm.Close)
		return nil
	}

	var client *redis.Client
	if a.Config.Redis.URL != "" {
		var err error
		client, err = database.NewRedisClient(a.Config.Redis.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
	}
	a.DB = database.NewManagerWithDB(o.db, client, a.Logger)
	return nil
}

func (a *App) openLocalStore() error {
	switch a.Config.Storage.Backend {
	case "redis":
		if !a.DB.RedisEnabled() {
			return fmt.Errorf("redis local store: %w", database.ErrRedisDisabled)
		}
		a.RedisStore = database.NewRedisStore(a.DB.Redis, a.Logger)
		a.Local = a.RedisStore
	default:
		badgerCfg := database.DefaultBadgerConfig(a.Config.Storage.BadgerPath)
		if a.Config.Storage.InMemory {
			badgerCfg = database.InMemoryBadgerConfig()
		}
		store, err := database.OpenBadger(badgerCfg, a.Logger)
		if err != nil {
			return err
		}
		a.badger = store
		a.Local = store
		a.closers = append(a.closers, store.Close)
	}
	if a.RedisStore == nil && a.DB.RedisEnabled() {
		a.RedisStore = database.NewRedisStore(a.DB.Redis, a.Logger)
	}
	return nil
}

func (a *App) openBus() error {
	var opts []events.Option
	switch a.Config.Bus.Backend {
	case "redis":
		if !a.DB.RedisEnabled() {
			return fmt.Errorf("redis bus: %w", database.ErrRedisDisabled)
		}
		b, err := events.NewRedisBroadcaster(a.DB.Redis, a.Config.Bus.Channel, a.Logger)
		if err != nil {
			return err
		}
		opts = append(opts, events.WithBroadcaster(b))
	case "nats":
		b, err := events.NewNATSBroadcaster(a.Config.NATS.URL, a.Config.Bus.Channel, a.Logger)
		if err != nil {
			return err
		}
		opts = append(opts, events.WithBroadcaster(b))
	}
	a.Bus = events.NewBus(a.Logger, opts...)
	a.closers = append(a.closers, a.Bus.Close)
	return nil
}

func (a *App) probes() []health.Probe {
	probes := []health.Probe{
		{Name: "postgresql", Critical: true, Check: health.Ping(a.DB.PingDatabase)},
		{Name: "local_store", Critical: true, Check: a.Local.Ping},
	}
	if a.DB.RedisEnabled() {
		critical := a.Config.Storage.Backend == "redis" || a.Config.Bus.Backend == "redis"
		probes = append(probes, health.Probe{Name: "redis", Critical: critical, Check: health.Ping(a.DB.PingRedis)})
	}
	return probes
}

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.RouterConfig{
		ExperimentHandler: handlers.NewExperimentHandler(a.Tracker, a.Logger),
		FeedbackHandler:   handlers.NewFeedbackHandler(a.Feedback, a.Tracker, a.Logger),
		SyncHandler:       handlers.NewSyncHandler(a.Sessions, a.Logger),
		HealthHandler:     handlers.NewHealthHandler(a.Health),
		RateLimiter:       a.Limiter,
		AllowedOrigins:    a.Config.CORS.AllowedOrigins,
		Logger:            a.Logger,
	})
}

// RunBackground starts the change forwarder and the maintenance loops, and
// blocks until ctx is done.
func (a *App) RunBackground(ctx context.Context) error {
	if err := a.Bus.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Limiter.Run(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		a.Health.PeriodicHealthCheck(gctx, time.Minute)
		return nil
	})
	if a.badger != nil {
		g.Go(func() error {
			a.badger.RunGC(gctx)
			return nil
		})
	}
	return g.Wait()
}

// Close stops open sync sessions and releases connections in reverse
// opening order.
func (a *App) Close() error {
	if a.Sessions != nil {
		a.Sessions.StopAll()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
