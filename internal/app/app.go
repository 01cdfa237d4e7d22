package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/cartsync/internal/config"
	handler "github.com/utafrali/cartsync/internal/handler/http"
	"github.com/utafrali/cartsync/internal/realtime"
	"github.com/utafrali/cartsync/internal/repository/rest"
	"github.com/utafrali/cartsync/internal/service"
	"github.com/utafrali/cartsync/internal/session"
	"github.com/utafrali/cartsync/internal/state"
	"github.com/utafrali/cartsync/pkg/database"
	"github.com/utafrali/cartsync/pkg/health"
	"github.com/utafrali/cartsync/pkg/httpclient"
	"github.com/utafrali/cartsync/pkg/tracing"
)

const serviceName = "cartsync"

// App wires together all dependencies and runs the cartsync daemon.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	cartService    *service.CartService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	var rdb *redis.Client
	if cfg.UsesRedis() {
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPass
		redisCfg.DB = cfg.RedisDB
		rdb, err = database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		healthHandler.Register("redis", database.RedisCheck(rdb))
	}

	sessionStore, err := newSessionStore(cfg, rdb)
	if err != nil {
		closeRedis(rdb, logger)
		return nil, err
	}

	// Backend client: retries for reads, circuit breaker for everything.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = time.Duration(cfg.CartAPITimeoutSeconds) * time.Second
	clientCfg.MaxRetries = cfg.CartAPIMaxRetries
	breaker := httpclient.NewBreakerClient(httpclient.New(clientCfg), httpclient.BreakerConfig{
		Name:             "cart-api",
		HalfOpenRequests: cfg.CBMaxRequests,
		Window:           time.Duration(cfg.CBInterval) * time.Second,
		Cooldown:         time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio:     cfg.CBFailureRatio,
		MinRequests:      cfg.CBMinRequests,
		Fallback:         rest.CircuitOpenFallback,
	}, logger)
	healthHandler.Register("cart-api", breaker.Check)

	store := state.NewStore()
	repo := rest.NewCartRepository(breaker, cfg.CartAPIBaseURL, logger)
	resolver := session.NewResolver(sessionStore, logger)

	var listener service.PushListener
	transport, err := newTransport(cfg, rdb, logger)
	if err != nil {
		closeRedis(rdb, logger)
		return nil, err
	}
	if transport != nil {
		listener = realtime.NewListener(transport, store, logger, realtime.Options{
			MinBackoff: time.Duration(cfg.PushMinBackoffMs) * time.Millisecond,
			MaxBackoff: time.Duration(cfg.PushMaxBackoffSec) * time.Second,
		})
		logger.Info("push channel configured", slog.String("transport", transport.Name()))
	}

	cartService := service.NewCartService(repo, store, resolver, listener, logger, service.Options{
		Debounce: cfg.Debounce(),
	})

	router := handler.NewRouter(cartService, healthHandler, logger, handler.RouterOptions{
		JWTSecret: cfg.ControlJWTSecret,
		RateRPS:   cfg.ControlRateRPS,
		RateBurst: cfg.ControlRateBurst,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		cartService:    cartService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newSessionStore(cfg *config.Config, rdb *redis.Client) (session.Store, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		return session.NewRedisStore(rdb, cfg.RedisSessionPrefix), nil
	case config.SessionStoreMemory:
		return session.NewMemoryStore(), nil
	default:
		fs, err := session.NewFileStore(cfg.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		return fs, nil
	}
}

func newTransport(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (realtime.Transport, error) {
	switch cfg.PushTransport {
	case config.PushWebSocket:
		t, err := realtime.NewWebSocketTransport(cfg.PushWSURL, nil)
		if err != nil {
			return nil, fmt.Errorf("configure websocket push: %w", err)
		}
		return t, nil
	case config.PushRedis:
		return realtime.NewRedisTransport(rdb, cfg.PushRedisPrefix), nil
	case config.PushKafka:
		return realtime.NewKafkaTransport(cfg.KafkaBrokers, logger), nil
	default:
		return nil, nil
	}
}

// Run loads the current cart, starts the HTTP server and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.cartService.Fetch(ctx); err != nil {
		a.logger.Warn("initial cart fetch failed", slog.String("error", err.Error()))
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Cancels pending debounced updates and leaves the push channel.
	a.cartService.Close()

	closeRedis(a.rdb, a.logger)

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func closeRedis(rdb *redis.Client, logger *slog.Logger) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close error", slog.String("error", err.Error()))
	}
}
