// ABOUTME: Gateway orchestrator that coordinates the gRPC and HTTP servers
// ABOUTME: Wires store, notifier, conversation and offer services and manages their lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/tsnet"

	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/config"
	"github.com/voyengo/voyengo/internal/conversation"
	"github.com/voyengo/voyengo/internal/dedupe"
	"github.com/voyengo/voyengo/internal/notify"
	"github.com/voyengo/voyengo/internal/offers"
	"github.com/voyengo/voyengo/internal/store"
)

// Notifier is a notify.Notifier that owns resources.
type Notifier interface {
	notify.Notifier
	Close() error
}

// Gateway orchestrates the voyengo-gateway server components.
type Gateway struct {
	config   *config.Config
	store    store.Store
	notifier Notifier
	verifier *auth.JWTVerifier
	logger   *slog.Logger

	manager     *conversation.Manager
	stream      *conversation.Stream
	inbox       *conversation.Inbox
	directory   *offers.Directory
	offers      *offers.Service
	idempotency *dedupe.Cache

	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	redisClient  *redis.Client

	// baseCtx is the parent of every request context. Canceling it on
	// shutdown ends long-lived SSE streams so HTTP shutdown can finish.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	serverID string
}

// New creates a Gateway with the store and notifier selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	n, redisClient, err := initNotifier(ctx, cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	gw, err := newGateway(cfg, s, n, logger)
	if err != nil {
		_ = n.Close()
		_ = s.Close()
		return nil, err
	}
	gw.redisClient = redisClient
	return gw, nil
}

// initStore opens the configured backend and wraps it with retries.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("VOYENGO_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	var s store.Store
	var err error
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		s, err = store.NewPostgresStore(ctx, cfg.Database.DSN)
	case config.DriverSQLite3:
		s, err = store.NewSQLiteStoreWithDriver(store.DriverMattn, dbPath)
	default:
		s, err = store.NewSQLiteStoreWithDriver(store.DriverModernc, dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	return store.WithRetry(s, store.RetryConfig{
		Attempts:  cfg.Store.RetryAttempts,
		BaseDelay: cfg.Store.RetryBaseDelay,
	}), nil
}

// initNotifier creates the in-memory or Redis-backed notifier.
func initNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Notifier, *redis.Client, error) {
	if cfg.Notify.Backend != config.NotifyRedis {
		return notify.NewBroadcaster(logger), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Notify.RedisAddr,
		Password: cfg.Notify.RedisPassword,
		DB:       cfg.Notify.RedisDB,
	})
	n, err := notify.NewRedisNotifier(ctx, client, cfg.Notify.ChannelPrefix, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("initializing redis notifier: %w", err)
	}
	logger.Info("redis notifier enabled", "addr", cfg.Notify.RedisAddr, "prefix", cfg.Notify.ChannelPrefix)
	return n, client, nil
}

// newGateway wires services around an already opened store and notifier.
func newGateway(cfg *config.Config, s store.Store, n Notifier, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	gw := &Gateway{
		config:   cfg,
		store:    s,
		notifier: n,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),

		manager: conversation.NewManager(s, n, logger),
		stream: conversation.NewStream(s, n, conversation.StreamOptions{
			ResyncInterval: cfg.Live.ResyncInterval,
		}, logger),
		inbox: conversation.NewInbox(s, n, conversation.InboxOptions{
			ResyncInterval: cfg.Live.ResyncInterval,
			Limit:          cfg.Live.InboxLimit,
		}, logger),
		directory:   offers.NewDirectory(s, cfg.Offers.MaxPageSize, logger),
		offers:      offers.NewService(s, logger),
		idempotency: dedupe.New(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries),

		baseCtx:    baseCtx,
		cancelBase: cancelBase,
		serverID:   generateServerID(),
	}

	gw.grpcServer, gw.healthServer = newGRPCServer(verifier, logger)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	return gw, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves gRPC and HTTP until ctx is canceled or a server fails, then
// shuts everything down. It returns nil after a cancel-triggered shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.listen(ctx)
	if err != nil {
		return err
	}

	g.setServing(true)
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		// The run context is gone by now, so shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
		defer cancel()
		return g.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// Shutdown stops both servers, then releases the notifier, Redis client,
// store and idempotency cache. Errors are collected, not short-circuited.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.setServing(false)
	g.cancelBase()

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	g.stopGRPC(ctx)

	closers := []struct {
		name  string
		close func() error
	}{
		{"tailscale", g.closeTailscale},
		{"notifier", g.notifier.Close},
		{"redis", g.closeRedis},
		{"store", g.store.Close},
	}
	for _, c := range closers {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}
	g.idempotency.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// stopGRPC waits for in-flight RPCs unless ctx expires first.
func (g *Gateway) stopGRPC(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

func (g *Gateway) closeRedis() error {
	if g.redisClient == nil {
		return nil
	}
	return g.redisClient.Close()
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("voyengo-gateway-%d", time.Now().UnixNano()%1000000)
}
