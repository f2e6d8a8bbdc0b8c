package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mentorlink/internal/api"
	"mentorlink/internal/auth"
	"mentorlink/internal/chat"
	"mentorlink/internal/collab"
	"mentorlink/internal/config"
	"mentorlink/internal/database"
	"mentorlink/internal/gate"
	"mentorlink/internal/hub"
	"mentorlink/internal/metrics"
	"mentorlink/internal/notify"
	"mentorlink/internal/room"
	"mentorlink/internal/websocket"
	"mentorlink/pkg/interfaces"
)

// Application owns every component and their lifecycle.
type Application struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store    interfaces.DatabaseManager
	registry *websocket.Registry
	rooms    *room.Manager
	limiter  *chat.RateLimiter
	notifier *notify.Router
	hub      *hub.Hub
	sockets  *websocket.Handler

	redisClient *redis.Client
	subscriber  *notify.RedisSubscriber

	httpServer *http.Server
	listener   net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication builds the component graph in dependency order:
// Store → Registry → Rooms → Gate → Pipelines → Notify → Hub → API → HTTP.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := metrics.New()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &Application{
		config:  cfg,
		logger:  logger,
		metrics: m,
		store:   store,
	}

	app.registry = websocket.NewRegistry(logger.Named("registry"), m)
	app.rooms = room.NewManager(logger.Named("rooms"), m)
	g := gate.NewGate(store, app.rooms, logger.Named("gate"))

	app.limiter = chat.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow)
	chatPipeline := chat.NewPipeline(g, app.rooms, store, app.limiter, chat.Config{
		MaxBodyLength: cfg.Chat.MaxBodyLength,
		RateLimit:     cfg.Chat.RateLimit,
	}, logger.Named("chat"))
	collabPipeline := collab.NewPipeline(g, app.rooms, store, logger.Named("collab"))

	app.notifier = notify.NewRouter(app.registry, logger.Named("notify"), m)
	if cfg.Redis.Enabled {
		client, err := notify.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		app.redisClient = client
		app.subscriber = notify.NewRedisSubscriber(client, cfg.Redis.ChannelPrefix, app.notifier, logger.Named("redis"))
	}

	app.hub = hub.NewHub(hub.Config{
		Registry: app.registry,
		Rooms:    app.rooms,
		Gate:     g,
		Chat:     chatPipeline,
		Collab:   collabPipeline,
		Validate: validator.New(),
		Logger:   logger.Named("hub"),
		Metrics:  m,
	})

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	wsHandler := websocket.NewHandler(app.registry, verifier, app.hub, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBuffer:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, logger.Named("websocket"))
	app.sockets = wsHandler

	apiServer := api.NewServer(api.Deps{
		Store:         store,
		Connections:   app.registry,
		Rooms:         app.rooms,
		Notifier:      app.notifier,
		Authenticator: verifier,
		WebSocket:     http.HandlerFunc(wsHandler.HandleWebSocket),
		Metrics:       m,
		Logger:        logger.Named("api"),
	})

	app.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interfaces.DatabaseManager, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, int32(cfg.Database.MaxConnections))
		if err != nil {
			return nil, err
		}
		store := database.NewPostgresManager(pool, logger.Named("postgres"))
		migrateCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
		defer cancel()
		if err := store.Migrate(migrateCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Info("postgres store ready")
		return store, nil

	default:
		if dir := filepath.Dir(cfg.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := database.NewManager(cfg.SQLite())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Info("sqlite store ready", zap.String("path", cfg.Database.Path))
		return store, nil
	}
}

// Start begins serving. Background workers run until Stop or until ctx
// ends.
func (app *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	if err := app.hub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		cancel()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	app.cancel = cancel

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.limiter.Run(runCtx, app.config.Chat.RateWindow)
	}()

	if app.subscriber != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.subscriber.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error("notification subscriber stopped", zap.Error(err))
			}
		}()
	}

	app.logger.Info("mentorlink started", zap.String("addr", app.Addr()))
	return nil
}

// Stop shuts down in reverse order: HTTP, live connections, hub and
// workers, redis, store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	closed, err := app.sockets.Shutdown(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	app.logger.Debug("closed live connections", zap.Int("count", closed))

	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, err)
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	app.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// Addr is the bound listen address once started, else the configured one.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

func (app *Application) Store() interfaces.DatabaseManager {
	return app.store
}

func (app *Application) Metrics() *metrics.Metrics {
	return app.metrics
}
