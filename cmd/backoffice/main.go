// Package main is the entry point for the DPO Global back-office admin
// server.  Runs on port 8081 and exposes admin-only endpoints protected by
// RBAC and an optional IP allowlist.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dpoglobal/issuance/internal/backoffice"
	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
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

	logger.Info("starting issuance backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	investorRepo := repository.NewInvestorRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	offeringRepo := repository.NewOfferingRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	valuationSvc := service.NewValuationService(cfg)
	authSvc := service.NewAuthService(db, userRepo, investorRepo, cfg)
	ledgerSvc := service.NewLedgerService(db, investorRepo, ledgerRepo, offeringRepo, positionRepo, cfg)
	csdSvc := service.NewCSDService(cfg, settlementRepo, offeringRepo)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:        authSvc,
		LedgerSvc:      ledgerSvc,
		ValuationSvc:   valuationSvc,
		CSDSvc:         csdSvc,
		UserRepo:       userRepo,
		InvestorRepo:   investorRepo,
		LedgerRepo:     ledgerRepo,
		OfferingRepo:   offeringRepo,
		SettlementRepo: settlementRepo,
		Hub:            nil, // backoffice does not directly serve WS
		Cfg:            cfg,
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

	db.Close()
	logger.Info("backoffice server stopped cleanly")
}
