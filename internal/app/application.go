package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"liveclass/internal/api"
	"liveclass/internal/auth"
	"liveclass/internal/broker"
	"liveclass/internal/chat"
	"liveclass/internal/config"
	"liveclass/internal/notify"
	"liveclass/internal/reaper"
	"liveclass/internal/room"
	"liveclass/internal/signaling"
	"liveclass/internal/store"
	"liveclass/internal/websocket"
	"liveclass/internal/whiteboard"
)

// Application wires every component and owns their lifecycle. Construction
// order follows the dependency graph: store and registry first, then the
// broker and tracker (which reference each other through deferred wiring),
// then the services, the reaper, and finally the HTTP surface.
type Application struct {
	config       *config.Config
	logger       *slog.Logger
	chatStore    *store.SQLiteStore
	registry     *websocket.Registry
	reaper       *reaper.Reaper
	reaperCancel context.CancelFunc
	httpServer   *http.Server
}

// New builds a fully wired application from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	chatStore, err := store.Open(store.DefaultOptions(cfg.Store.Path), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat store: %w", err)
	}

	registry := websocket.NewRegistry(logger)

	msgBroker := broker.New(registry, logger)
	tracker := room.NewTracker(registry, msgBroker, logger)
	msgBroker.SetMembership(tracker)

	chatService := chat.NewService(msgBroker, chatStore, logger)
	boardService := whiteboard.NewService(msgBroker, logger)
	sessionManager := signaling.NewManager(tracker, msgBroker, cfg.Session.DefaultCapacity, logger)
	notifier := notify.NewDispatcher(msgBroker, registry, logger)

	connReaper := reaper.New(registry, tracker, logger)
	msgBroker.SetDisconnector(connReaper)

	resolver := auth.NewResolver(cfg.Auth.Secret, cfg.Auth.Issuer)

	wsHandler := websocket.NewHandler(resolver, registry, tracker, chatService, boardService, sessionManager, connReaper, websocket.Options{
		QueueSize:     cfg.WebSocket.QueueSize,
		WriteTimeout:  cfg.WebSocket.WriteTimeout,
		ReadTimeout:   cfg.WebSocket.ReadTimeout,
		PingInterval:  cfg.WebSocket.PingInterval,
		RatePerMinute: cfg.WebSocket.RatePerMinute,
	}, logger)

	apiServer := api.NewServer(sessionManager, boardService, chatStore, notifier, resolver, registry)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		chatStore:  chatStore,
		registry:   registry,
		reaper:     connReaper,
		httpServer: httpServer,
	}, nil
}

// Start brings the HTTP server up and returns once it is accepting
// connections or has failed to bind.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting", "addr", app.httpServer.Addr)

	reaperCtx, cancel := context.WithCancel(context.Background())
	app.reaperCancel = cancel
	go app.reaper.Run(reaperCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		cancel()
		_ = app.chatStore.Close()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("started")
		return nil
	case <-ctx.Done():
		cancel()
		_ = app.chatStore.Close()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order: stop
// accepting connections, drain live ones through the reaper so every room
// sees its LEAVE, then close the store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("http shutdown error", "error", err)
	}

	for _, connID := range app.registry.ConnIDs() {
		app.reaper.Disconnect(connID)
	}
	if app.reaperCancel != nil {
		app.reaperCancel()
	}

	if err := app.chatStore.Close(); err != nil {
		app.logger.Warn("store shutdown error", "error", err)
	}

	app.logger.Info("shutdown complete")
	return nil
}

// Addr returns the HTTP listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
