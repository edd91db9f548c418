// Package app composes the client: credentials, REST, realtime channel,
// messenger, cache and sync engine, wired through fx with the lifecycle
// driving connection state.
package app

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/nmanikumar5/swappio/internal/api"
	"github.com/nmanikumar5/swappio/internal/auth"
	"github.com/nmanikumar5/swappio/internal/bus"
	"github.com/nmanikumar5/swappio/internal/chat"
	"github.com/nmanikumar5/swappio/internal/config"
	"github.com/nmanikumar5/swappio/internal/lock"
	"github.com/nmanikumar5/swappio/internal/logging"
	"github.com/nmanikumar5/swappio/internal/realtime"
	"github.com/nmanikumar5/swappio/internal/rest"
	"github.com/nmanikumar5/swappio/internal/session"
	"github.com/nmanikumar5/swappio/internal/status"
	"github.com/nmanikumar5/swappio/internal/store"
	intsync "github.com/nmanikumar5/swappio/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// refreshWindow is how close to expiry the access token may get before
// the background refresher renews it.
const refreshWindow = 2 * time.Minute

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			provideStateMachine,
			provideLock,
			provideStore,
			provideHTTPClient,
			provideAuthSession,
			provideRESTClient,
			provideAccounts,
			provideMessages,
			provideListings,
			provideFavorites,
			provideChannel,
			provideMessenger,
			provideSyncEngine,
			provideReconciler,
			NewConnector,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideHTTPClient builds the one http.Client everything shares. The jar
// is what lets the httpOnly refresh cookie flow between login, refresh and
// authenticated calls.
func provideHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar, Timeout: 30 * time.Second}, nil
}

func provideAuthSession(p Params, cfg *config.Config, hc *http.Client, logger *zap.Logger) (*auth.Session, error) {
	store := auth.NewStore(session.CredentialsPath(p.SessionName))
	return auth.NewSession(store, hc, cfg.APIBaseURL+"/auth/refresh", logger)
}

func provideRESTClient(cfg *config.Config, hc *http.Client, s *auth.Session, logger *zap.Logger) (*rest.Client, error) {
	return rest.New(cfg.APIBaseURL, hc, s, logger)
}

func provideAccounts(c *rest.Client, s *auth.Session) *api.Accounts {
	return api.NewAccounts(c, s)
}

func provideMessages(c *rest.Client) *api.Messages {
	return api.NewMessages(c)
}

func provideListings(c *rest.Client) *api.Listings {
	return api.NewListings(c)
}

func provideFavorites(c *rest.Client) *api.Favorites {
	return api.NewFavorites(c)
}

func provideChannel(cfg *config.Config, s *auth.Session, b *bus.Bus, logger *zap.Logger) *realtime.Channel {
	return realtime.NewChannel(cfg.SocketURL, s, b, logger)
}

func provideMessenger(ch *realtime.Channel, msgs *api.Messages, b *bus.Bus, s *auth.Session, logger *zap.Logger) *chat.Messenger {
	return chat.NewMessenger(ch, msgs, b, selfID(s), logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, s *auth.Session, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, selfID(s), logger)
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger)
}

func selfID(s *auth.Session) func() string {
	return func() string {
		if u := s.User(); u != nil {
			return u.ID
		}
		return ""
	}
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, s *auth.Session, ch *realtime.Channel, messenger *chat.Messenger, engine *intsync.Engine, conn *Connector, machine *status.Machine, logger *zap.Logger) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			engine.Start(ctx)
			messenger.Start(ctx)

			go conn.refreshLoop(ctx)
			go conn.watchDisconnects(ctx)

			if !s.Authenticated() {
				logger.Info("no credentials found, auth required")
				_ = machine.Transition(status.AuthRequired)
				return nil
			}

			go conn.Connect(ctx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			if cancel != nil {
				cancel()
			}
			engine.Stop()
			ch.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

// Connector drives the session from credentials-on-disk to READY and
// keeps it there: dial, sync, reconnect with backoff, refresh tokens
// before they lapse. The TUI calls Connect after an interactive login.
type Connector struct {
	session *auth.Session
	channel *realtime.Channel
	msgs    *api.Messages
	engine  *intsync.Engine
	rec     *intsync.Reconciler
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
}

func NewConnector(s *auth.Session, ch *realtime.Channel, msgs *api.Messages, engine *intsync.Engine, rec *intsync.Reconciler, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Connector {
	return &Connector{
		session: s,
		channel: ch,
		msgs:    msgs,
		engine:  engine,
		rec:     rec,
		machine: machine,
		bus:     b,
		logger:  logger,
	}
}

// Connect refreshes the token if it is about to lapse, dials the realtime
// socket, then pulls the conversation list into the cache.
func (c *Connector) Connect(ctx context.Context) {
	_ = c.machine.Transition(status.Connecting)

	if c.session.ExpiresWithin(refreshWindow) {
		if _, err := c.session.Refresh(ctx); err != nil {
			c.logger.Warn("startup token refresh failed", zap.Error(err))
			if !c.session.Authenticated() {
				_ = c.machine.Transition(status.AuthRequired)
				return
			}
		}
	}

	if err := c.channel.Connect(ctx); err != nil {
		c.logger.Error("realtime connect failed", zap.Error(err))
		// REST may still work without the socket.
		_ = c.machine.Transition(status.Reconnecting)
		_ = c.machine.Transition(status.Degraded)
		return
	}

	_ = c.machine.Transition(status.Syncing)

	convs, err := c.msgs.Conversations(ctx)
	if err != nil {
		c.logger.Error("conversation sync failed", zap.Error(err))
		_ = c.machine.Transition(status.Degraded)
		return
	}
	if err := c.engine.IngestConversations(convs); err != nil {
		c.logger.Error("conversation ingest failed", zap.Error(err))
	}
	if err := c.rec.UpdateCheckpoint("conversations.synced_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		c.logger.Warn("checkpoint update failed", zap.Error(err))
	}

	_ = c.machine.Transition(status.Ready)
}

// refreshLoop renews the access token in the background before it expires
// so interactive calls rarely pay the 401-refresh-retry round trip.
func (c *Connector) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !c.session.Authenticated() || !c.session.ExpiresWithin(refreshWindow) {
				continue
			}
			if _, err := c.session.Refresh(ctx); err != nil {
				c.logger.Warn("background token refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchDisconnects redials the realtime socket with backoff after a drop.
func (c *Connector) watchDisconnects(ctx context.Context) {
	events, unsub := c.bus.Subscribe("session.socket_disconnected", 8)
	defer unsub()

	for {
		select {
		case <-events:
			if !c.session.Authenticated() {
				continue
			}
			_ = c.machine.Transition(status.Reconnecting)
			backoff := time.Second
			for {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				c.logger.Info("redialing realtime socket", zap.Duration("backoff", backoff))
				c.Connect(ctx)
				if c.channel.Connected() {
					break
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
