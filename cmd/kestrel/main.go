// Kestrel - rule-based credit risk decisions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/opensource-finance/kestrel/internal/activity"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/configstore"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/logger"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("kestrel exited with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *domain.Config, log *zap.Logger) error {
	log.Info("starting kestrel",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_date", BuildDate),
	)
	log.Info("configuration loaded",
		zap.String("tier", string(cfg.Tier)),
		zap.String("repository", cfg.Repository.Driver),
		zap.String("cache", cfg.Cache.Type),
		zap.String("eventbus", cfg.EventBus.Type),
		zap.String("dbr_policy", string(cfg.Decision.DBR)),
		zap.String("offer_policy", string(cfg.Decision.Offer)),
	)

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	log.Info("repository initialized", zap.String("driver", cfg.Repository.Driver))

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	log.Info("cache initialized", zap.String("type", cfg.Cache.Type), zap.Bool("two_phase", cfg.Cache.EnableTwoPhase))

	busImpl, err := bus.New(cfg.EventBus, log)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	log.Info("event bus initialized", zap.String("type", cfg.EventBus.Type))

	store, err := configstore.New(repo, cacheImpl, busImpl, configstore.Options{
		MaxStaleness: cfg.Snapshot.MaxStaleness,
		Policy:       cfg.Decision,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize configuration store: %w", err)
	}
	if cfg.Snapshot.SeedDefaults {
		seeded, err := store.Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed default configuration: %w", err)
		}
		if len(seeded) > 0 {
			log.Info("default configuration seeded", zap.Int("aggregates", len(seeded)))
		}
	}
	watch, err := store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch configuration updates: %w", err)
	}
	defer watch.Unsubscribe()

	if _, err := store.Snapshot(ctx); err != nil {
		// Not fatal: configuration can still be written through the API.
		log.Warn("configuration incomplete, evaluations will fail until it is stored", zap.Error(err))
	}

	engine, err := decision.NewEngine(decision.EngineOptions{Policy: cfg.Decision, Logger: log})
	if err != nil {
		return fmt.Errorf("failed to initialize decision engine: %w", err)
	}
	svc := decision.NewService(repo, store, activity.NewService(repo), engine, busImpl, log)
	log.Info("decision engine initialized", zap.String("engine_version", decision.EngineVersion))

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, svc, log)
		if err := asyncWorker.Start(worker.Config{Queue: cfg.Worker.Queue, Timeout: cfg.Worker.Timeout}); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Store:    store,
		Decision: svc,
		Version:  Version,
		Logger:   log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("kestrel is ready",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		log.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			log.Error("failed to stop async worker", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("kestrel shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - credit risk decision engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Worker:   %v\n", cfg.Worker.Enabled)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                      - Evaluate an applicant")
	fmt.Println("    GET  /evaluations/{id}              - Get evaluation by ID")
	fmt.Println("    GET  /applicants                    - List applicants")
	fmt.Println("    POST /applicants                    - Create an applicant")
	fmt.Println("    POST /applicants/{id}/transactions  - Record account activity")
	fmt.Println("    GET  /config/snapshot               - Current rule configuration")
	fmt.Println("    PUT  /config/{kind}                 - Store a new rule set version")
	fmt.Println("    GET  /metrics                       - Prometheus metrics")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println()
}
