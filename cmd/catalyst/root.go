package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TradingApplication/catalyst-trading-system/internal/cache"
	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence/postgres"
)

// Execute runs the catalyst CLI. Each subcommand starts one of the three
// core services and blocks until the context is cancelled.
func Execute(ctx context.Context) error {
	var configPath string

	root := &cobra.Command{
		Use:   "catalyst",
		Short: "Catalyst trading system control plane",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file")

	root.AddCommand(
		coordinatorCmd(ctx, &configPath),
		newsCmd(ctx, &configPath),
		scannerCmd(ctx, &configPath),
		sweepCmd(ctx, &configPath),
	)
	return root.ExecuteContext(ctx)
}

// backend holds the shared infrastructure every service boots on.
type backend struct {
	cfg   config.Config
	store persistence.Store
	db    *postgres.DB
	redis *cache.Redis
}

func connect(ctx context.Context, configPath string) (*backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConnections, cfg.Postgres.OperationTimout)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &backend{
		cfg:   cfg,
		store: postgres.NewStore(db),
		db:    db,
		redis: cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
	}, nil
}

func (b *backend) close() {
	if err := b.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close postgres pool")
	}
}
