package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/coordinator"
	"github.com/TradingApplication/catalyst-trading-system/internal/httpapi"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/scanner"
)

func coordinatorCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "coordinator",
		Short: "Run the cycle coordinator service",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := connect(ctx, *configPath)
			if err != nil {
				return err
			}
			defer b.close()

			loc, err := b.cfg.Location()
			if err != nil {
				return err
			}
			runtime := config.NewRuntimeStore(b.store.Config, b.redis)
			sched, err := coordinator.NewSchedule(b.cfg.Schedule, loc, runtime)
			if err != nil {
				return err
			}

			// Collection and scan clients get headroom over the longest
			// wall-clock budget their collaborator may legitimately use.
			timeout := runtime.APITimeout(ctx, b.cfg.APITimeout)
			newsClient := coordinator.NewNewsClient(b.cfg.Collaborators.News, news.MaxCollectionBudget()+timeout)
			scanClient := coordinator.NewScannerClient(b.cfg.Collaborators.Scanner, scanner.ScanBudget+timeout)
			pattern := coordinator.NewPatternClient(b.cfg.Collaborators.Pattern, timeout)
			technical := coordinator.NewTechnicalClient(b.cfg.Collaborators.Technical, timeout)
			trading := coordinator.NewTradingClient(b.cfg.Collaborators.Trading, timeout)

			coord := coordinator.New(b.store, runtime, sched, coordinator.Deps{
				News:      newsClient,
				Scanner:   scanClient,
				Pattern:   pattern,
				Technical: technical,
				Trading:   trading,
				Probes: []coordinator.HealthProbe{
					newsClient, scanClient, pattern, technical, trading,
				},
				Pingers: map[string]func(context.Context) error{
					"postgres": b.db.Ping,
					"redis":    b.redis.Ping,
				},
			})

			sweeps := coord.StartSweeps(ctx, b.cfg.Schedule.OutcomeSweepInterval)
			go func() {
				if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("Scheduler stopped")
				}
			}()

			server := httpapi.NewCoordinatorServer(coord, b.cfg.HTTP.CoordinatorPort, timeout)
			go func() {
				<-ctx.Done()
				sweeps.Stop()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Server shutdown failed")
				}
			}()
			return server.Start()
		},
	}
}
