package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/wpphub/internal/api"
	"github.com/matheus3301/wpphub/internal/autoreply"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/config"
	"github.com/matheus3301/wpphub/internal/ingest"
	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/logging"
	"github.com/matheus3301/wpphub/internal/outbox"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tenant"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideResolver,
			provideProviderClient,
			provideSender,
			provideAutoReply,
			provideDispatcher,
			provideWebhookHandler,
			provideMessagesHandler,
			provideHealthHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.Log.Path, p.Config.Log.Level, "wpphubd")
}

func provideBus() *bus.Bus {
	return bus.New()
}

// provideLock keeps a second daemon off the same SQLite file. PostgreSQL
// deployments may run several daemons and get a nil lock.
func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if p.Config.Database.Driver != store.DriverSQLite {
		return nil, nil
	}
	path := lock.PathFor(p.Config.Database.DSN)
	logger.Info("acquiring database lock", zap.String("path", path))
	l, err := lock.Acquire(path)
	if err != nil {
		return nil, err
	}
	logger.Info("database lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(p.Config.Database.Driver, p.Config.Database.DSN)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("driver", db.Driver()))
	return db, nil
}

func provideResolver(db *store.DB) *tenant.Resolver {
	return tenant.NewResolver(db)
}

func provideProviderClient(p Params) (*cloudapi.Client, error) {
	timeout, err := p.Config.Provider.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return cloudapi.NewClient(p.Config.Provider.BaseURL, p.Config.Provider.APIVersion, timeout), nil
}

func provideSender(resolver *tenant.Resolver, db *store.DB, client *cloudapi.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(resolver, db, client, b, logger.Named("outbox"))
}

func provideAutoReply(sender *outbox.Sender, logger *zap.Logger) *autoreply.Engine {
	return autoreply.NewEngine(sender, logger.Named("autoreply"))
}

func provideDispatcher(resolver *tenant.Resolver, db *store.DB, engine *autoreply.Engine, b *bus.Bus, logger *zap.Logger) *ingest.Dispatcher {
	logger = logger.Named("ingest")
	return ingest.NewDispatcher(
		ingest.NewMessageProcessor(resolver, db, engine, b, logger),
		ingest.NewStatusProcessor(resolver, db, b, logger),
		logger,
	)
}

func provideWebhookHandler(p Params, d *ingest.Dispatcher, logger *zap.Logger) *api.WebhookHandler {
	return api.NewWebhookHandler(d, api.WebhookConfig{
		VerifyToken:  p.Config.Webhook.VerifyToken,
		AppSecret:    p.Config.Webhook.AppSecret,
		MaxBodyBytes: p.Config.Webhook.MaxBodyBytes,
	}, logger)
}

func provideMessagesHandler(sender *outbox.Sender, db *store.DB, resolver *tenant.Resolver, b *bus.Bus, logger *zap.Logger) *api.MessagesHandler {
	return api.NewMessagesHandler(sender, db, resolver, b, logger)
}

func provideHealthHandler(db *store.DB) *api.HealthHandler {
	return api.NewHealthHandler(db)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping HTTP server", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
