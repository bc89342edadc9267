// Package daemon wires the whole process together with fx and owns
// startup and shutdown ordering.
package daemon

import (
	"context"
	"time"

	"github.com/komsan13/chat-center-sub000/internal/backend"
	"github.com/komsan13/chat-center-sub000/internal/bus"
	"github.com/komsan13/chat-center-sub000/internal/chat"
	"github.com/komsan13/chat-center-sub000/internal/config"
	"github.com/komsan13/chat-center-sub000/internal/console"
	"github.com/komsan13/chat-center-sub000/internal/gateway"
	"github.com/komsan13/chat-center-sub000/internal/lock"
	"github.com/komsan13/chat-center-sub000/internal/logging"
	"github.com/komsan13/chat-center-sub000/internal/metrics"
	"github.com/komsan13/chat-center-sub000/internal/notify"
	"github.com/komsan13/chat-center-sub000/internal/outbox"
	"github.com/komsan13/chat-center-sub000/internal/readsync"
	"github.com/komsan13/chat-center-sub000/internal/store"
	syncengine "github.com/komsan13/chat-center-sub000/internal/sync"
	"github.com/komsan13/chat-center-sub000/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params configures the daemon from the command line.
type Params struct {
	ConfigPath string
}

// Module assembles the full dependency graph.
func Module(p Params) fx.Option {
	return fx.Options(
		fx.Supply(p),
		fx.Provide(
			newConfig,
			newLogger,
			bus.New,
			newLock,
			newDB,
			newBackend,
			newGateway,
			chat.NewStore,
			chat.NewCache,
			newRemoteTyping,
			newLocalTyping,
			newNotifier,
			newBroadcaster,
			newSender,
			newEngine,
			newConsole,
			newMetricsServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(registerLifecycle),
	)
}

func newConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureStateDir(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath(), cfg.StateDir)
}

func newLock(cfg *config.Config) (*lock.Lock, error) {
	return lock.Acquire(cfg.StateDir)
}

func newDB(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	res, err := db.Migrate()
	if err != nil {
		db.Close()
		return nil, err
	}
	if res.Changed {
		logger.Info("database migrated", zap.Uint("version", res.Version))
	}
	return db, nil
}

func newBackend(cfg *config.Config) *backend.Client {
	return backend.New(cfg.APIBaseURL, cfg.Token)
}

func newGateway(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *gateway.Gateway {
	return gateway.New(cfg.LiveEndpoint(), cfg.Token, b, logger)
}

func newRemoteTyping(b *bus.Bus) *typing.Remote {
	return typing.NewRemote(typing.DefaultExpiry, b)
}

func newLocalTyping(gw *gateway.Gateway, cfg *config.Config, logger *zap.Logger) *typing.Local {
	return typing.NewLocal(gw, cfg.Operator, typing.DefaultQuietPeriod, logger)
}

func newNotifier(cfg *config.Config, logger *zap.Logger) *notify.Controller {
	// NewExecPlayer returns nil when no sound file is configured; a
	// typed nil in the interface would defeat the controller's checks.
	var primary notify.Player
	if p := notify.NewExecPlayer(cfg.SoundCommand, cfg.SoundFile); p != nil {
		primary = p
	}
	fallback := notify.NewTonePlayer(cfg.SoundCommand, cfg.StateDir)
	return notify.NewController(primary, fallback, logger)
}

func newBroadcaster(convs *chat.Store, cache *chat.Cache, client *backend.Client, gw *gateway.Gateway, b *bus.Bus, logger *zap.Logger) *readsync.Broadcaster {
	return readsync.New(convs, cache, client, gw, b, logger)
}

func newSender(cache *chat.Cache, convs *chat.Store, client *backend.Client, t *typing.Local, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(cache, convs, client, t, b, logger)
}

func newEngine(
	convs *chat.Store,
	cache *chat.Cache,
	client *backend.Client,
	gw *gateway.Gateway,
	broadcaster *readsync.Broadcaster,
	remote *typing.Remote,
	local *typing.Local,
	notifier *notify.Controller,
	db *store.DB,
	b *bus.Bus,
	logger *zap.Logger,
) *syncengine.Engine {
	return syncengine.New(syncengine.Params{
		Conversations: convs,
		Cache:         cache,
		Backend:       client,
		Intents:       gw,
		Reader:        broadcaster,
		RemoteTyping:  remote,
		LocalTyping:   local,
		Notifier:      notifier,
		Selection:     db,
		Bus:           b,
		Logger:        logger,
	})
}

func newConsole(
	cfg *config.Config,
	engine *syncengine.Engine,
	sender *outbox.Sender,
	broadcaster *readsync.Broadcaster,
	local *typing.Local,
	remote *typing.Remote,
	convs *chat.Store,
	cache *chat.Cache,
	gw *gateway.Gateway,
	logger *zap.Logger,
) *console.Server {
	return console.NewServer(cfg.ControlAddr, console.Deps{
		Engine:       engine,
		Sender:       sender,
		Reader:       broadcaster,
		LocalTyping:  local,
		RemoteTyping: remote,
		Convs:        convs,
		Cache:        cache,
		Gateway:      gw,
		Logger:       logger,
	})
}

func newMetricsServer(cfg *config.Config, logger *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.MetricsAddr, logger)
}

type lifecycleDeps struct {
	fx.In

	Config      *config.Config
	Logger      *zap.Logger
	Lock        *lock.Lock
	DB          *store.DB
	Convs       *chat.Store
	Gateway     *gateway.Gateway
	LocalTyping *typing.Local
	Remote      *typing.Remote
	Broadcaster *readsync.Broadcaster
	Engine      *syncengine.Engine
	Console     *console.Server
	Metrics     *metrics.Server
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	connectCtx, cancelConnect := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.Engine.Start()
			d.Broadcaster.Start()
			d.Metrics.Start()
			if err := d.Console.Start(); err != nil {
				return err
			}

			// Restore the previously open conversation so the console
			// resumes where the operator left off.
			if id, err := d.DB.SelectedConversation(); err != nil {
				d.Logger.Warn("stored selection unreadable", zap.Error(err))
			} else if id != "" {
				d.Convs.SetActive(id)
				d.Logger.Info("restored selected conversation", zap.String("conversation", id))
			}

			// First refresh and the live channel come up in the
			// background; the daemon is usable before the network is.
			go func() {
				if err := d.Engine.Refresh(connectCtx, "", ""); err != nil {
					d.Logger.Warn("initial conversation list fetch failed", zap.Error(err))
				}
			}()
			go connectWithRetry(connectCtx, d.Gateway, d.Logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelConnect()
			d.Console.Stop(ctx)
			d.LocalTyping.StopAll()
			d.Remote.Close()
			d.Broadcaster.Stop()
			d.Engine.Stop()
			d.Gateway.Disconnect()
			d.Metrics.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("database close", zap.Error(err))
			}
			return d.Lock.Release()
		},
	})
}

// connectWithRetry covers the window before the first successful dial;
// after that the gateway's own backoff loop takes over.
func connectWithRetry(ctx context.Context, gw *gateway.Gateway, logger *zap.Logger) {
	for {
		err := gw.Connect(ctx)
		if err == nil {
			return
		}
		logger.Warn("initial live channel dial failed", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
