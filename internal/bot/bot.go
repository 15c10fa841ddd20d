// Package bot wires the runtime together: it logs in, restores cursors,
// loads handler groups, and runs the connection and dispatch engine until
// shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/chattobot/internal/backoff"
	"github.com/alfredjeanlab/chattobot/internal/client"
	"github.com/alfredjeanlab/chattobot/internal/config"
	"github.com/alfredjeanlab/chattobot/internal/conn"
	"github.com/alfredjeanlab/chattobot/internal/dispatch"
	"github.com/alfredjeanlab/chattobot/internal/events"
	"github.com/alfredjeanlab/chattobot/internal/metrics"
	"github.com/alfredjeanlab/chattobot/internal/middleware"
	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/plugins"
	"github.com/alfredjeanlab/chattobot/internal/presence"
	"github.com/alfredjeanlab/chattobot/internal/registry"
	"github.com/alfredjeanlab/chattobot/internal/replay"
	"github.com/alfredjeanlab/chattobot/internal/server"
	"github.com/alfredjeanlab/chattobot/internal/store"
	cursorsync "github.com/alfredjeanlab/chattobot/internal/sync"
	"github.com/alfredjeanlab/chattobot/internal/telemetry"
)

// Bot is one running bot process.
type Bot struct {
	cfg    *config.Config
	logger *slog.Logger
	me     *client.User

	client    *client.HTTPClient
	store     store.CursorStore
	tracker   *replay.Tracker
	registry  *registry.Registry
	catalog   *plugins.Catalog
	presence  *presence.Tracker
	reminders *plugins.Reminders
	engine    *dispatch.Engine
	conn      *conn.Manager
	scheduler *cursorsync.Scheduler

	publisher  events.Publisher
	subscriber events.Subscriber
	status     *server.StatusServer
	httpServer *http.Server

	telemetryShutdown func(context.Context) error

	// startMu orders Run's startup against a concurrent Shutdown.
	startMu sync.Mutex
	// stopping is closed when Shutdown starts; done when it has finished.
	stopping      chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
	shutdownErr   error
	controlCancel context.CancelFunc

	// attempt mirrors the connection's retry counter for state events.
	attempt atomic.Int32

	extraGroups map[string]plugins.Factory
}

// Option customizes a Bot built by New.
type Option func(*Bot)

// WithGroup makes a custom group available under name. It is loaded at start
// when name appears in the configured groups, and can be loaded later by the
// admin commands like any built-in.
func WithGroup(name string, f plugins.Factory) Option {
	return func(b *Bot) {
		if b.extraGroups == nil {
			b.extraGroups = make(map[string]plugins.Factory)
		}
		b.extraGroups[name] = f
	}
}

// New builds a bot from a validated configuration. It authenticates against
// the service, restores cursors and loads the configured groups, but does not
// connect yet.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *Bot, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			b.closeCollaborators(context.Background())
		}
	}()

	b.telemetryShutdown, err = telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	session := cfg.Session
	if session == "" {
		session, err = client.Login(ctx, nil, cfg.Instance, cfg.Email, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("logging in as %s: %w", cfg.Email, err)
		}
		logger.Info("bot: logged in", "identifier", cfg.Email)
	}
	b.client = client.NewHTTPClient(client.Options{
		Instance:   cfg.Instance,
		Credential: session,
		ReplyRate:  rate.Limit(cfg.ReplyRate),
		ReplyBurst: cfg.ReplyBurst,
		Logger:     logger,
	})
	if b.me, err = b.client.Me(ctx); err != nil {
		return nil, fmt.Errorf("fetching bot identity: %w", err)
	}
	logger.Info("bot: authenticated", "id", b.me.ID, "login", b.me.Login)
	if err := b.client.UpdatePresence(ctx, client.PresenceOnline); err != nil {
		logger.Warn("bot: could not set presence", "err", err)
	}

	if b.store, err = OpenStore(ctx, cfg.StateURL); err != nil {
		return nil, err
	}
	cursors, err := b.store.Load(ctx)
	if err != nil {
		logger.Warn("bot: could not load cursors, starting without them", "state_url", cfg.StateURL, "err", err)
		cursors = model.Cursors{}
	}
	b.tracker = replay.NewTracker(cursors)
	b.registry = registry.New(logger)
	b.presence = presence.New(logger)
	reminders, rerr := plugins.NewReminders(cfg.RemindersPath, logger)
	if rerr != nil {
		logger.Warn("bot: could not load reminders, starting without them", "path", cfg.RemindersPath, "err", rerr)
	}
	b.reminders = reminders

	if err := b.setupEvents(); err != nil {
		return nil, err
	}

	spaces := cfg.SubscribedSpaces()
	b.catalog = plugins.NewCatalog(&plugins.Deps{
		Prefix:    cfg.Prefix,
		Spaces:    spaces,
		Registry:  b.registry,
		Rooms:     b.client,
		Presence:  b.presence,
		Publisher: b.publisher,
		Poster:    b.client,
		Reminders: b.reminders,
		Logger:    logger,
	})
	for name, f := range b.extraGroups {
		b.catalog.Register(name, f)
	}
	if err := b.catalog.Load(ctx, "config", cfg.Groups...); err != nil {
		return nil, fmt.Errorf("loading groups: %w", err)
	}

	chain := &middleware.Chain{}
	if len(cfg.Rooms) > 0 {
		chain.Use(middleware.AllowRooms(cfg.Rooms...))
	}
	chain.Use(middleware.Recover())
	chain.Use(middleware.Logging())
	chain.Use(middleware.IgnoreActor(b.me.ID))

	b.engine = dispatch.New(dispatch.Options{
		Prefix:    cfg.Prefix,
		Admins:    cfg.Admins,
		Registry:  b.registry,
		Chain:     chain,
		Tracker:   b.tracker,
		Responder: b.client,
		Replay:    replay.NewBuffer(b.tracker, b.client, spaces, cfg.ReplayHorizon, logger),
		Publisher: b.publisher,
		Logger:    logger,
	})

	wsURL, err := conn.WebsocketURL(cfg.Instance)
	if err != nil {
		return nil, err
	}
	b.conn = conn.New(conn.Options{
		URL:              wsURL,
		Origin:           cfg.Instance,
		Credential:       session,
		Spaces:           spaces,
		Heartbeat:        cfg.HeartbeatInterval,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Backoff:          backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		Logger:           logger,
	}, b.engine)
	b.conn.OnStateChange(b.observeState)

	var dests []cursorsync.Destination
	if cfg.BackupS3Bucket != "" {
		s3, err := cursorsync.NewS3Destination(ctx, S3Options(cfg))
		if err != nil {
			return nil, fmt.Errorf("creating S3 backup destination: %w", err)
		}
		dests = append(dests, s3)
		logger.Info("bot: S3 cursor backup enabled", "bucket", cfg.BackupS3Bucket, "key", cfg.BackupS3Key)
	}
	b.scheduler = cursorsync.NewScheduler(b.tracker, b.store, dests, cfg.CheckpointInterval, logger)
	b.scheduler.MarkSaved(cursors)

	if cfg.HTTPAddr != "" {
		b.httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           b.status.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return b, nil
}

// setupEvents builds the publisher fan-out: the NATS bus when configured,
// and the status server's event stream when the HTTP server is enabled.
func (b *Bot) setupEvents() error {
	var pubs events.Fanout
	if b.cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(b.cfg.NATSURL, events.LogConnection(b.logger))
		if err != nil {
			return fmt.Errorf("connecting event publisher: %w", err)
		}
		pubs = append(pubs, pub)
		sub, err := events.NewNATSSubscriber(b.cfg.NATSURL, events.LogConnection(b.logger))
		if err != nil {
			_ = pub.Close()
			return fmt.Errorf("connecting control subscriber: %w", err)
		}
		b.subscriber = sub
		b.logger.Info("bot: events enabled", "nats_url", b.cfg.NATSURL)
	}
	if b.cfg.HTTPAddr != "" {
		b.status = server.New(server.Options{
			Token:    b.cfg.HTTPToken,
			State:    func() string { return b.conn.State().String() },
			Attempt:  func() int { return b.conn.Attempt() },
			Cursors:  func() model.Cursors { return b.tracker.Snapshot() },
			Pending:  func() int { return b.engine.Pending() },
			Loaded:   func() []string { return b.registry.Groups() },
			Groups:   groupsFunc(func() *plugins.Catalog { return b.catalog }),
			Presence: b.presence,
			Logger:   b.logger,
		})
		pubs = append(pubs, b.status)
	}
	switch len(pubs) {
	case 0:
		b.publisher = &events.NoopPublisher{}
	case 1:
		b.publisher = pubs[0]
	default:
		b.publisher = pubs
	}
	return nil
}

// Me returns the bot's own user.
func (b *Bot) Me() *client.User { return b.me }

// Registry returns the handler registry.
func (b *Bot) Registry() *registry.Registry { return b.registry }

// Cursors returns the current replay cursors.
func (b *Bot) Cursors() model.Cursors { return b.tracker.Snapshot() }

// State returns the connection state.
func (b *Bot) State() conn.State { return b.conn.State() }

// Run connects and dispatches until Shutdown is called, ctx is cancelled or
// the credential is rejected. It returns once shutdown has completed, with
// the shutdown result or the fatal connection error.
func (b *Bot) Run(ctx context.Context) error {
	b.startMu.Lock()
	select {
	case <-b.stopping:
		b.startMu.Unlock()
		<-b.done
		return b.shutdownErr
	default:
	}
	go func() {
		if err := b.engine.Run(context.Background()); err != nil {
			b.logger.Error("bot: dispatch engine stopped", "err", err)
		}
	}()

	connErr := make(chan error, 1)
	go func() { connErr <- b.conn.Run(context.Background()) }()

	b.scheduler.Start()
	if b.subscriber != nil {
		var cctx context.Context
		cctx, b.controlCancel = context.WithCancel(context.Background())
		go func() {
			if err := b.runControl(cctx, b.subscriber); err != nil {
				b.logger.Error("bot: control subscriber stopped", "err", err)
			}
		}()
	}
	if b.httpServer != nil {
		go func() {
			b.logger.Info("bot: status server listening", "addr", b.httpServer.Addr)
			if err := b.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Error("bot: status server error", "err", err)
			}
		}()
	}
	b.startMu.Unlock()
	b.logger.Info("bot: started", "spaces", b.cfg.SubscribedSpaces(), "groups", b.registry.Groups())

	var fatal error
	select {
	case <-ctx.Done():
		_ = b.Shutdown("context cancelled")
	case err := <-connErr:
		if err != nil {
			fatal = err
			_ = b.Shutdown("connection: " + err.Error())
		} else {
			_ = b.Shutdown("connection closed")
		}
	case <-b.stopping:
	}
	<-b.done
	if fatal != nil {
		return fatal
	}
	return b.shutdownErr
}

// Reload rebuilds one group, or every loaded group when name is empty.
func (b *Bot) Reload(ctx context.Context, source, name string) error {
	if name == "" || name == "all" {
		return b.catalog.ReloadAll(ctx, source)
	}
	return b.catalog.Reload(ctx, source, name)
}

func (b *Bot) observeState(from, to conn.State) {
	metrics.SetConnectionState(stateNames(), to.String())
	switch to {
	case conn.Reconnecting:
		metrics.Reconnects.Inc()
		b.attempt.Add(1)
	case conn.Subscribed:
		b.attempt.Store(0)
	}
	ev := events.ConnectionStateChanged{
		From:    from.String(),
		To:      to.String(),
		Attempt: int(b.attempt.Load()),
		At:      time.Now().UTC(),
	}
	if err := b.publisher.Publish(context.Background(), events.TopicConnectionState, ev); err != nil {
		b.logger.Warn("bot: publish state change failed", "err", err)
	}
}

func stateNames() []string {
	var names []string
	for s := conn.Disconnected; s <= conn.Closed; s++ {
		names = append(names, s.String())
	}
	return names
}

// S3Options maps the backup settings of cfg.
func S3Options(cfg *config.Config) cursorsync.S3Options {
	return cursorsync.S3Options{
		Bucket:   cfg.BackupS3Bucket,
		Key:      cfg.BackupS3Key,
		Region:   cfg.BackupS3Region,
		Endpoint: cfg.BackupS3Endpoint,
	}
}

// groupsFunc defers resolving the catalog until a request arrives, since the
// status server is built before the catalog.
type groupsFunc func() *plugins.Catalog

func (f groupsFunc) Names() []string { return f().Names() }

func (f groupsFunc) Reload(ctx context.Context, source, name string) error {
	return f().Reload(ctx, source, name)
}

func (f groupsFunc) ReloadAll(ctx context.Context, source string) error {
	return f().ReloadAll(ctx, source)
}
