package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/coordinator"
	"github.com/TradingApplication/catalyst-trading-system/internal/news"
	"github.com/TradingApplication/catalyst-trading-system/internal/symbols"
)

// sweepCmd runs the periodic sweeps once and exits, for operators catching
// up after downtime without waiting for the next cron tick.
func sweepCmd(ctx context.Context, configPath *string) *cobra.Command {
	var (
		outcomes   bool
		narratives bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the outcome and narrative sweeps once",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := connect(ctx, *configPath)
			if err != nil {
				return err
			}
			defer b.close()

			if !outcomes && !narratives {
				outcomes, narratives = true, true
			}

			if outcomes {
				loc, err := b.cfg.Location()
				if err != nil {
					return err
				}
				runtime := config.NewRuntimeStore(b.store.Config, b.redis)
				sched, err := coordinator.NewSchedule(b.cfg.Schedule, loc, runtime)
				if err != nil {
					return err
				}
				coord := coordinator.New(b.store, runtime, sched, coordinator.Deps{})
				applied, err := coord.SweepOutcomes(ctx)
				if err != nil {
					return err
				}
				log.Info().Int("applied", applied).Msg("Outcome sweep completed")
			}

			if narratives {
				loc, err := b.cfg.Location()
				if err != nil {
					return err
				}
				norm, err := news.NewNormalizer(b.cfg.Collector, b.cfg.Schedule, symbols.NewSet(nil), loc)
				if err != nil {
					return err
				}
				collector := news.NewCollector(b.store, b.redis, norm, nil, 1)
				detected, err := collector.SweepNarratives(ctx)
				if err != nil {
					return err
				}
				log.Info().Int("detected", detected).Msg("Narrative sweep completed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&outcomes, "outcomes", false, "apply closed-trade outcomes only")
	cmd.Flags().BoolVar(&narratives, "narratives", false, "detect coordinated narratives only")
	return cmd
}
