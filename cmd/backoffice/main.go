// Package main is the entry point for the synthd back-office admin server.
// Runs on its own port and exposes admin-only endpoints protected by RBAC
// and an optional IP allowlist.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/evrimko/synthd/internal/backoffice"
	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting synthd backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Storage ───────────────────────────────────────────────────────────────
	store, accounts, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// ── Collateral registry ───────────────────────────────────────────────────
	registry, err := domain.ParseRegistry(cfg.Risk.CollateralAssets)
	if err != nil {
		logger.Error("collateral registry invalid", "err", err)
		os.Exit(1)
	}

	// ── Services ──────────────────────────────────────────────────────────────
	priceSvc := service.NewPriceService(cfg, store, logger)
	engine := service.NewEngineService(cfg, store, registry, priceSvc, logger)
	authSvc := service.NewAuthService(accounts, cfg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:  authSvc,
		Engine:   engine,
		PriceSvc: priceSvc,
		Accounts: accounts,
		Store:    store,
		Hub:      nil, // backoffice does not directly serve WS
		Cfg:      cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	logger.Info("backoffice server stopped cleanly")
}

// openStores mirrors the main server's driver selection.  The backoffice
// never runs migrations; the API server owns the schema.
func openStores(cfg *config.Config, logger *slog.Logger) (repository.Store, repository.AccountStore, error) {
	switch cfg.DB.Driver {
	case "memory":
		logger.Warn("using in-memory storage, all state is lost on restart")
		return repository.NewMemoryStore(), repository.NewMemoryAccountStore(), nil

	case "postgres":
		store, err := repository.Open(cfg.DB.DSN, cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		store.DB().SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
		logger.Info("database connected")
		return store, repository.NewAccountRepository(store.DB()), nil

	default:
		return nil, nil, fmt.Errorf("unknown DB driver %q", cfg.DB.Driver)
	}
}
