package main

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/httpapi"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/news/sources"
	"github.com/TradingApplication/catalyst-trading-system/internal/symbols"
)

func newsCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "news",
		Short: "Run the news collection service",
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
			norm, err := news.NewNormalizer(b.cfg.Collector, b.cfg.Schedule, symbols.NewSet(nil), loc)
			if err != nil {
				return err
			}
			runtime := config.NewRuntimeStore(b.store.Config, b.redis)
			timeout := runtime.APITimeout(ctx, b.cfg.APITimeout)
			srcs, err := sources.Build(b.cfg.Collector.Sources, &http.Client{Timeout: timeout})
			if err != nil {
				return err
			}

			collector := news.NewCollector(b.store, b.redis, norm, srcs, b.cfg.Collector.WorkerPool)
			if err := collector.SeedSources(ctx); err != nil {
				return err
			}

			sweeps := cron.New()
			if _, err := sweeps.AddFunc(b.cfg.Schedule.NarrativeSweepSchedule, func() {
				detected, err := collector.SweepNarratives(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Narrative sweep failed")
					return
				}
				if detected > 0 {
					log.Info().Int("detected", detected).Msg("Narrative sweep completed")
				}
			}); err != nil {
				return err
			}
			sweeps.Start()

			// The handler window covers the slowest collection mode.
			server := httpapi.NewNewsServer(collector, b.cfg.HTTP.NewsPort, news.MaxCollectionBudget()+timeout)
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
