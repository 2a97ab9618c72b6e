// Loanscore - Loan affordability and risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/loanscore/internal/api"
	"github.com/opensource-finance/loanscore/internal/bus"
	"github.com/opensource-finance/loanscore/internal/cache"
	"github.com/opensource-finance/loanscore/internal/domain"
	"github.com/opensource-finance/loanscore/internal/repository"
	"github.com/opensource-finance/loanscore/internal/rules"
	"github.com/opensource-finance/loanscore/internal/service"
	"github.com/opensource-finance/loanscore/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting loanscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"policy_file", cfg.PolicyFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	svc, err := service.New(repo, cache.NewStore(cacheImpl, cfg.Cache), busImpl, engine, service.Options{
		Policy:     cfg.Policy,
		PolicyFile: cfg.PolicyFile,
	})
	if err != nil {
		slog.Error("failed to initialize scoring service", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring pipeline initialized", "odds_rules", len(svc.Rules()))

	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("LOANSCORE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, svc)
		tenantIDs := splitList(os.Getenv("LOANSCORE_TENANTS"))
		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Server, svc, Version)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("loanscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("loanscore shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  LOANSCORE - loan affordability & risk scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints (X-Tenant-ID required under /v1):")
	fmt.Println("    PUT  /v1/applicants/{id}      - Store an individual profile")
	fmt.Println("    PUT  /v1/businesses/{id}      - Store a business profile")
	fmt.Println("    GET  /v1/products             - List the loan catalog")
	fmt.Println("    POST /v1/products             - Add or replace a loan product")
	fmt.Println("    POST /v1/individual/evaluate  - Stored individual evaluation")
	fmt.Println("    POST /v1/individual/simulate  - What-if individual evaluation")
	fmt.Println("    POST /v1/business/evaluate    - Stored business evaluation")
	fmt.Println("    POST /v1/business/simulate    - What-if business evaluation")
	fmt.Println("    GET  /v1/evaluations/{id}     - Get a stored evaluation")
	fmt.Println("    POST /v1/amortization         - Repayment schedule")
	fmt.Println("    GET  /v1/rules                - Odds rule table")
	fmt.Println("    POST /v1/rules/reload         - Reload the policy file")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
