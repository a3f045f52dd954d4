package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"kioskguard/internal/config"
	"kioskguard/internal/infra/db"
	httpinfra "kioskguard/internal/infra/http"
	"kioskguard/internal/infra/memstore"
	"kioskguard/internal/infra/policyopa"
	"kioskguard/internal/logging"
	"kioskguard/internal/metrics"
	"kioskguard/internal/usecase"
	"kioskguard/migrations"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	dbStore, err := db.NewStore(cfg, logger)
	if err != nil {
		return err
	}
	defer dbStore.Close()

	var (
		store  usecase.Store = memstore.New()
		health func(context.Context) error
		mode   = "memory"
	)
	if dbStore.Enabled() {
		if cfg.AutoMigrate {
			applied, err := db.Migrate(ctx, dbStore.DB, migrations.FS)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "files", applied)
		}
		store, health, mode = dbStore, dbStore.Ping, "db"
	}

	policy, err := loadPolicy(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("policy loaded", "policy_hash", policy.PolicyHash())

	m := metrics.New()
	srv := httpinfra.NewServer(cfg, store, policy, httpinfra.ServerDeps{
		Metrics: m,
		Logger:  logger,
		Health:  health,
		Mode:    mode,
	})

	if cfg.SuperAdminEmail != "" {
		admins := usecase.NewAdminService(store, usecase.NewPermissionGate(policy), nil)
		admins.Logger = logger
		if _, _, err := admins.BootstrapSuperAdmin(ctx, cfg.SuperAdminEmail, cfg.SuperAdminPassword); err != nil {
			return err
		}
	}
	return srv.Run(ctx)
}

func loadPolicy(ctx context.Context, cfg config.Config) (*policyopa.Engine, error) {
	if cfg.PolicyDir != "" {
		return policyopa.NewEngineFromPath(ctx, cfg.PolicyDir)
	}
	return policyopa.NewEngine(ctx)
}
