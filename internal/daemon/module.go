package daemon

import (
	"context"

	"github.com/tchatapp/tchat/internal/api"
	"github.com/tchatapp/tchat/internal/bus"
	"github.com/tchatapp/tchat/internal/cache"
	"github.com/tchatapp/tchat/internal/lifecycle"
	"github.com/tchatapp/tchat/internal/lock"
	"github.com/tchatapp/tchat/internal/logging"
	"github.com/tchatapp/tchat/internal/profile"
	"github.com/tchatapp/tchat/internal/realtime"
	"github.com/tchatapp/tchat/internal/status"
	"github.com/tchatapp/tchat/internal/store"
	intsync "github.com/tchatapp/tchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved identity and server configuration passed to the
// fx module.
type Params struct {
	BaseDir   string
	ServerURL string
	UserID    string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideTracker,
			provideLock,
			provideCache,
			provideAPIClient,
			provideEngine,
			provideRealtime,
			provideLifecycleManager,
			provideSignalPump,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.BaseDir, p.UserID), p.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *status.Tracker {
	return status.NewTracker(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.BaseDir, p.UserID); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("user_id", p.UserID))
	l, err := lock.Acquire(profile.Dir(p.BaseDir, p.UserID))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideCache opens and migrates the identity's message store. A store that
// cannot be opened degrades the daemon to direct server reads instead of
// aborting startup, so a corrupt cache file never locks the user out.
func provideCache(p Params, b *bus.Bus, logger *zap.Logger) *cache.Cache {
	dbPath := profile.CacheDBPath(p.BaseDir, p.UserID)
	db, err := store.Open(dbPath)
	if err != nil {
		logger.Warn("message cache unavailable, reads go to the server",
			zap.String("path", dbPath), zap.Error(err))
		return nil
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		logger.Warn("cache migration failed, reads go to the server",
			zap.String("path", dbPath), zap.Error(err))
		return nil
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return cache.New(db, b, logger)
}

func provideAPIClient(p Params, b *bus.Bus, logger *zap.Logger) *api.Client {
	return api.New(p.ServerURL, profile.StatePath(p.BaseDir), b, logger)
}

func provideEngine(c *cache.Cache, client *api.Client, tr *status.Tracker, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(c, client, tr, logger)
}

func provideRealtime(p Params, b *bus.Bus, logger *zap.Logger) *realtime.Client {
	return realtime.New(p.ServerURL, profile.StatePath(p.BaseDir), b, logger)
}

func provideLifecycleManager(p Params, b *bus.Bus, logger *zap.Logger) *lifecycle.Manager {
	return lifecycle.New(p.BaseDir, b, logger)
}

func provideSignalPump(engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *SignalPump {
	return NewSignalPump(engine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, c *cache.Cache, rt *realtime.Client, lm *lifecycle.Manager, pump *SignalPump, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Tear down the partition if the server later rejects the token.
			lm.Start(context.Background())

			// Warm the cache whenever the server signals new activity.
			pump.Start(context.Background())
			rt.Start(context.Background())

			logger.Info("daemon started", zap.String("user_id", p.UserID))
			return nil
		},
		OnStop: func(_ context.Context) error {
			rt.Stop()
			pump.Stop()
			lm.Stop()
			if c != nil {
				if err := c.Close(); err != nil {
					logger.Warn("error closing cache", zap.Error(err))
				}
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
