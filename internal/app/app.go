// Package app wires the Chunk-Meet server runtime: config, logging, metrics,
// HTTP routes and the five realtime websocket gateways.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MoiChung-nwc/Chunk-Meet/internal/auth"
	"github.com/MoiChung-nwc/Chunk-Meet/internal/realtime"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Chunk-Meet server runtime: it owns HTTP wiring and the realtime
// gateway dependency graph.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	chatWS      *realtime.Gateway
	callWS      *realtime.Gateway
	meetingWS   *realtime.Gateway
	signalingWS *realtime.Gateway
	fileWS      *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, msgStore, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	registry := NewMetricsRegistry()
	metrics := realtime.NewMetrics(registry)

	authn, err := newAuthenticator(cfg, log)
	if err != nil {
		return nil, err
	}

	// Each endpoint tracks its own connections, mirroring the fact that one
	// user may hold a chat socket without a call socket and vice versa.
	chatPresence := realtime.NewPresence(log.With("plane", "chat"))
	callPresence := realtime.NewPresence(log.With("plane", "call"))
	signalingPresence := realtime.NewPresence(log.With("plane", "signaling"))
	filePresence := realtime.NewPresence(log.With("plane", "file"))
	rooms := realtime.NewRooms(log.With("plane", "meeting"))

	chatRelay := realtime.NewRelay(log, chatPresence, metrics, "chat")
	callRelay := realtime.NewRelay(log, callPresence, metrics, "call")
	signalingRelay := realtime.NewRelay(log, signalingPresence, metrics, "signaling")
	fileRelay := realtime.NewRelay(log, filePresence, metrics, "file")
	// The meeting plane fans out by room roster, never by identity, so its
	// relay carries no presence registry.
	meetingRelay := realtime.NewRelay(log, nil, metrics, "meeting")

	// Invites require the callee's call socket; acceptance waits for the
	// acceptor's signaling socket.
	coordinator := realtime.NewCoordinator(
		log,
		callPresence.IsOnline,
		signalingPresence.IsOnline,
		callRelay.ToIdentity,
		metrics,
		realtime.WithReadyProbe(cfg.CallReadyAttempts, cfg.CallReadyInterval),
	)

	chatHandler := realtime.NewChatHandler(log, chatPresence, chatRelay, msgStore)
	callHandler := realtime.NewCallHandler(log, callPresence, callRelay, coordinator)
	meetingHandler := realtime.NewMeetingHandler(log, rooms, meetingRelay, msgStore, auth.AllowAll{})
	signalingHandler := realtime.NewSignalingHandler(log, signalingPresence, signalingRelay, metrics)
	fileHandler := realtime.NewFileHandler(log, filePresence, fileRelay, metrics)

	gwCfg := func(endpoint string) realtime.GatewayConfig {
		return realtime.GatewayConfig{
			Endpoint:          endpoint,
			OriginRequired:    cfg.WSOriginRequired,
			AllowedOrigins:    cfg.WSAllowedOrigins,
			DevInsecure:       cfg.WSDevInsecure,
			WriteTimeout:      cfg.WSWriteTimeout,
			ReadIdleTimeout:   cfg.WSReadIdleTimeout,
			SendQueueSize:     cfg.WSSendQueue,
			HeartbeatInterval: cfg.WSHeartbeatInterval,
			HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
			RateEvents:        cfg.WSRateEvents,
			RateWindow:        cfg.WSRateWindow,
		}
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  registry,

		chatWS:      realtime.NewGateway(log, authn, chatHandler, metrics, gwCfg("chat")),
		callWS:      realtime.NewGateway(log, authn, callHandler, metrics, gwCfg("call")),
		meetingWS:   realtime.NewGateway(log, authn, meetingHandler, metrics, gwCfg("meeting")),
		signalingWS: realtime.NewGateway(log, authn, signalingHandler, metrics, gwCfg("signaling")),
		fileWS:      realtime.NewGateway(log, authn, fileHandler, metrics, gwCfg("file")),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newAuthenticator selects the handshake verifier. Without a verification
// key the server runs in dev mode and treats tokens as identities.
func newAuthenticator(cfg Config, log Logger) (auth.Authenticator, error) {
	if cfg.AuthPasetoPublicKeyHex == "" {
		log.Warn("auth.dev_mode", "detail", "no PASETO public key configured; tokens are trusted as identities")
		return auth.NewStaticAuthenticator(nil), nil
	}
	return auth.NewPasetoAuthenticator(auth.PasetoConfig{
		PublicKeyHex: cfg.AuthPasetoPublicKeyHex,
		Issuer:       cfg.AuthIssuer,
		ClockSkew:    cfg.AuthClockSkew,
	})
}

// newStore decides between Postgres-backed persistence and in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, realtime.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, realtime.NewInMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore.Close() is a no-op
	msgStore, err := realtime.NewPostgresStore(pool, realtime.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, err
	}

	return dbStore{pool: pool, msgStore: msgStore}, pool, true, msgStore, nil
}

type dbStore struct {
	pool     *pgxpool.Pool
	msgStore realtime.Store
}

func (s dbStore) Close(_ context.Context) error {
	if s.msgStore != nil {
		_ = s.msgStore.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
