package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccheshirecat/renderd/internal/browser"
	"github.com/ccheshirecat/renderd/internal/renderer"
	"github.com/ccheshirecat/renderd/internal/server/app"
	"github.com/ccheshirecat/renderd/internal/server/config"
	"github.com/ccheshirecat/renderd/internal/server/db/sqlite"
	"github.com/ccheshirecat/renderd/internal/server/debugapi"
	"github.com/ccheshirecat/renderd/internal/server/eventbus/memory"
	"github.com/ccheshirecat/renderd/internal/server/httpapi"
	"github.com/ccheshirecat/renderd/internal/shared/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("renderd")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}

	chrome, err := browser.New(ctx, logger.With("subsystem", "browser"), browser.Config{
		RemoteDebuggingPort: cfg.RemoteDebuggingPort,
		UserDataDir:         cfg.UserDataDir,
		ExecPath:            cfg.BrowserExecPath,
	})
	if err != nil {
		logger.Error("launch browser", "error", err)
		os.Exit(1)
	}
	defer chrome.Close()

	pool, err := browser.NewPool(logger.With("subsystem", "pool"), chrome.NewTab, cfg.MaxTabs)
	if err != nil {
		logger.Error("build tab pool", "error", err)
		os.Exit(1)
	}

	bus := memory.New()

	engine, err := renderer.New(renderer.Params{
		Logger:        logger.With("subsystem", "renderer"),
		Pool:          pool,
		Store:         store,
		Bus:           bus,
		MaxTabs:       cfg.MaxTabs,
		RenderTimeout: cfg.RenderTimeout,
	})
	if err != nil {
		logger.Error("build render engine", "error", err)
		os.Exit(1)
	}

	apiHandler := httpapi.New(logger.With("subsystem", "httpapi"), engine, bus)
	debugHandler := debugapi.New(logger.With("subsystem", "debugapi"), chrome.DevTools)

	application, err := app.New(cfg, logger, store, engine, bus, apiHandler, debugHandler)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
}
