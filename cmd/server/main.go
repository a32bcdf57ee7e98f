// Package main is the entry point for the synthd issuance API server.  It
// wires together the ledgers, the oracle poller, and the issuance engine,
// and starts the HTTP server alongside the WebSocket hub and background
// scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/evrimko/synthd/internal/api"
	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/scheduler"
	"github.com/evrimko/synthd/internal/service"
	"github.com/evrimko/synthd/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting synthd server",
		"env", cfg.Server.Env, "port", cfg.Server.Port, "driver", cfg.DB.Driver)

	// ── 2. Storage ────────────────────────────────────────────────────────────
	store, accounts, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// ── 3. Collateral registry ────────────────────────────────────────────────
	registry, err := domain.ParseRegistry(cfg.Risk.CollateralAssets)
	if err != nil {
		logger.Error("collateral registry invalid", "err", err)
		os.Exit(1)
	}
	logger.Info("collateral registry loaded", "assets", cfg.Risk.CollateralAssets)

	// ── 4. Services (order matters for injection) ─────────────────────────────
	priceSvc := service.NewPriceService(cfg, store, logger)

	engine := service.NewEngineService(cfg, store, registry, priceSvc, logger)

	authSvc := service.NewAuthService(accounts, cfg)

	// ── 5. WebSocket Hub ──────────────────────────────────────────────────────
	jwtSecret := []byte(cfg.JWT.AccessSecret)
	var allowedOrigins []string
	if ori := os.Getenv("WS_ALLOWED_ORIGINS"); ori != "" {
		for _, o := range strings.Split(ori, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(jwtSecret, allowedOrigins)

	// Wire WS broadcaster into the engine
	engine.SetBroadcaster(hub)

	// ── 6. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 7. Start WS Hub ───────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 8. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(engine, priceSvc, hub, cfg, logger)
	sched.Start(ctx)

	// ── 9. HTTP Router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:  authSvc,
		Engine:   engine,
		PriceSvc: priceSvc,
		Hub:      hub,
		Cfg:      cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 10. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 11. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	logger.Info("server stopped cleanly")
}

// openStores builds the ledger store and the account store for the configured
// driver.  The memory driver keeps everything in-process and loses all state
// on restart; Validate() rejects it in production.
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

		if err := runMigrations(store.DB(), "migrations"); err != nil {
			return nil, nil, err
		}
		logger.Info("migrations applied")

		return store, repository.NewAccountRepository(store.DB()), nil

	default:
		return nil, nil, fmt.Errorf("unknown DB driver %q", cfg.DB.Driver)
	}
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
