package daemon

import (
	"context"
	"path/filepath"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/config"
	"github.com/matheus3301/leadchat/internal/lock"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/media"
	"github.com/matheus3301/leadchat/internal/outbox"
	"github.com/matheus3301/leadchat/internal/profile"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"github.com/matheus3301/leadchat/internal/unread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
	Dir         string // optional override of the profile directory
	Config      *config.Profile
	Logger      *zap.Logger // optional; nil builds the file+stderr logger
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return profile.Dir(p.ProfileName)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideProvider,
			provideMedia,
			provideSender,
			provideUnread,
			providePoller,
			providePush,
			provideEngine,
			provideScheduler,
			provideInboxService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Profile, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadProfile(profile.ConfigPath(p.ProfileName)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Profile) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by the
// process owning the profile.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "leadchat.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideProvider(cfg *config.Profile) *provider.Client {
	return provider.NewClient(cfg.Provider.URL, cfg.Provider.Token, cfg.Provider.Timeout.Duration)
}

func provideMedia(client *provider.Client, db *store.DB, b *bus.Bus, logger *zap.Logger, cfg *config.Profile) *media.Lifecycle {
	return media.New(client, db, b, logger.Named("media"), media.Options{
		MinBytes:    cfg.Media.MinCaptureBytes,
		MinDuration: cfg.Media.MinCaptureDuration.Duration,
	})
}

func provideSender(db *store.DB, client *provider.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, b, logger.Named("outbox"))
}

func provideUnread(db *store.DB, b *bus.Bus, logger *zap.Logger) *unread.Aggregator {
	return unread.NewAggregator(db, b, logger.Named("unread"))
}

func providePoller(client *provider.Client, agg *unread.Aggregator, cfg *config.Profile, logger *zap.Logger) *unread.Poller {
	return unread.NewPoller(client, agg, cfg.Unread.PollInterval.Duration, logger.Named("unread"))
}

func providePush(agg *unread.Aggregator, cfg *config.Profile, logger *zap.Logger) *unread.PushListener {
	return unread.NewPushListener(unread.PushConfig{
		URL:     cfg.Unread.NATSURL,
		Token:   cfg.Unread.NATSToken,
		Subject: cfg.Unread.Subject,
	}, agg, logger.Named("unread"))
}

func provideEngine(
	cfg *config.Profile,
	client *provider.Client,
	db *store.DB,
	lc *media.Lifecycle,
	sender *outbox.Sender,
	agg *unread.Aggregator,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) *intsync.Engine {
	engine := intsync.NewEngine(intsync.Options{
		PageSize: cfg.Sync.PageSize,
		Window:   cfg.Sync.SessionWindow.Duration,
	}, intsync.Deps{
		Provider: client,
		Store:    db,
		Media:    lc,
		Outbox:   sender,
		Unread:   agg,
		Status:   machine,
		Bus:      b,
		Logger:   logger.Named("sync"),
	})
	sender.Bind(engine)
	return engine
}

func provideScheduler(engine *intsync.Engine, cfg *config.Profile, logger *zap.Logger) *intsync.Scheduler {
	return intsync.NewScheduler(engine, cfg.Sync.PollInterval.Duration, logger.Named("scheduler"))
}

func provideInboxService(p Params, engine *intsync.Engine, machine *status.Machine, agg *unread.Aggregator, b *bus.Bus, logger *zap.Logger) *api.InboxService {
	return api.NewInboxService(p.ProfileName, engine, machine, agg, b, logger.Named("api"))
}

type lifecycleParams struct {
	fx.In

	Server    *Server
	Metrics   *MetricsServer
	Lock      *lock.Lock
	Store     *store.DB
	Engine    *intsync.Engine
	Scheduler *intsync.Scheduler
	Sender    *outbox.Sender
	Media     *media.Lifecycle
	Unread    *unread.Aggregator
	Poller    *unread.Poller
	Push      *unread.PushListener
	Machine   *status.Machine
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleParams) {
	logger := d.Logger
	runCtx, cancel := context.WithCancel(context.Background())
	pollDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := d.Unread.Load(); err != nil {
				logger.Warn("failed to restore unread counts", zap.Error(err))
			}

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			d.Metrics.Start()

			d.Sender.Start(runCtx)
			d.Scheduler.Start(runCtx)
			go func() {
				defer close(pollDone)
				d.Poller.Run(runCtx)
			}()
			if err := d.Push.Start(); err != nil {
				// Polling still keeps badges current.
				logger.Warn("unread push listener unavailable", zap.Error(err))
			}

			return d.Machine.Transition(status.Ready)
		},
		OnStop: func(ctx context.Context) error {
			d.Push.Stop()
			d.Scheduler.Stop()
			cancel()
			<-pollDone
			d.Sender.Stop()
			d.Media.Close()
			d.Engine.Close()
			d.Server.Stop(ctx)
			d.Metrics.Stop(ctx)
			if err := d.Store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
