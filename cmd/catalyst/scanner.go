package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TradingApplication/catalyst-trading-system/internal/config"
	"github.com/TradingApplication/catalyst-trading-system/internal/httpapi"
	"github.com/TradingApplication/catalyst-trading-system/internal/marketdata"
	"github.com/TradingApplication/catalyst-trading-system/internal/scanner"
)

func scannerCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scanner",
		Short: "Run the catalyst scanner service",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := connect(ctx, *configPath)
			if err != nil {
				return err
			}
			defer b.close()

			runtime := config.NewRuntimeStore(b.store.Config, b.redis)
			timeout := runtime.APITimeout(ctx, b.cfg.APITimeout)
			market := marketdata.NewClient(b.cfg.Collaborators.MarketData, timeout)
			sc := scanner.New(b.store, b.redis, market, runtime, b.cfg.Scanner)

			// The handler window covers the scan's full wall-clock contract.
			server := httpapi.NewScannerServer(sc, b.cfg.HTTP.ScannerPort, scanner.ScanBudget+timeout)
			go func() {
				<-ctx.Done()
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
