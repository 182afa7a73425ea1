package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ccheshirecat/renderd/internal/renderer"
	"github.com/ccheshirecat/renderd/internal/server/config"
	"github.com/ccheshirecat/renderd/internal/server/db"
	"github.com/ccheshirecat/renderd/internal/server/eventbus"
)

// App wires the config, persistence, render engine, and HTTP transports.
type App struct {
	cfg          config.ServerConfig
	logger       *slog.Logger
	store        db.Store
	engine       renderer.Engine
	events       eventbus.Bus
	httpServer   *http.Server
	debugServer  *http.Server
	shutdownWait time.Duration
}

// New constructs the daemon application. The debug handler is optional.
func New(cfg config.ServerConfig, logger *slog.Logger, store db.Store, engine renderer.Engine, events eventbus.Bus, apiHandler, debugHandler http.Handler) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("render engine must not be nil")
	}
	if apiHandler == nil {
		return nil, fmt.Errorf("api handler must not be nil")
	}

	httpServer := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      apiHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // renders block until the page settles
		IdleTimeout:  120 * time.Second,
	}

	var debugServer *http.Server
	if debugHandler != nil && cfg.DebugListenAddr != "" {
		debugServer = &http.Server{
			Addr:    cfg.DebugListenAddr,
			Handler: debugHandler,
		}
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		engine:       engine,
		events:       events,
		httpServer:   httpServer,
		debugServer:  debugServer,
		shutdownWait: 15 * time.Second,
	}, nil
}

// Run starts the render engine and HTTP servers, blocking until context
// cancellation or a server failure.
func (a *App) Run(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start render engine: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("api server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if a.debugServer != nil {
		go func() {
			a.logger.Info("debug server listening", "addr", a.debugServer.Addr)
			if err := a.debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown", "error", err)
		}
		if a.debugServer != nil {
			if err := a.debugServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("debug shutdown", "error", err)
			}
		}
		if err := a.engine.Stop(shutdownCtx); err != nil {
			a.logger.Error("engine stop", "error", err)
		}
		if a.store != nil {
			if err := a.store.Close(shutdownCtx); err != nil {
				a.logger.Error("store close", "error", err)
			}
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
