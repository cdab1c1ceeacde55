package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/metrics"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

// watermarkKey persists how far the feedback sweep has read the closed-trade
// stream. Internal, never operator-set.
const watermarkKey = "outcome_sweep_watermark"

const sweepBatchLimit = 500

// SweepOutcomes feeds closed trades back into the news layer: the
// originating article gets its realized outcome, and the source's
// reliability counters move. Each trade is applied exactly once; the
// watermark only advances past trades that were processed.
func (c *Coordinator) SweepOutcomes(ctx context.Context) (int, error) {
	since := c.watermark(ctx)

	trades, err := c.store.Trades.ClosedSince(ctx, since, sweepBatchLimit)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, trade := range trades {
		outcome := models.NewsOutcome{
			PriceMove1h:      trade.PriceMove1h,
			PriceMove24h:     trade.PriceMove24h,
			VolumeSurgeRatio: trade.VolumeSurgeRatio,
			WasAccurate:      trade.PnL > 0,
		}
		delta := models.SourceMetricsDelta{
			Source:      trade.Source,
			Confirmed:   1,
			Beneficiary: trade.Symbol,
		}
		if trade.PnL > 0 {
			delta.Accurate = 1
		} else {
			delta.False = 1
		}
		if lead := c.confirmationLead(ctx, trade.NewsFingerprint); lead != nil {
			delta.EarlyMinutes = lead
		}

		if err := c.store.Trades.ApplyOutcome(ctx, trade, outcome, delta); err != nil {
			// Stop at the first failure so the watermark never skips a trade.
			c.saveWatermark(ctx, since)
			return applied, err
		}
		applied++
		since = trade.ClosedAt
		metrics.OutcomesApplied.Inc()
	}

	c.saveWatermark(ctx, since)
	return applied, nil
}

// confirmationLead returns how many minutes the originating source led its
// tier-1/2 confirmation, when the article was confirmed at all.
func (c *Coordinator) confirmationLead(ctx context.Context, fingerprint string) *float64 {
	item, err := c.store.News.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to read news item for feedback")
		}
		return nil
	}
	if item.ConfirmationDelay == nil {
		return nil
	}
	lead := float64(*item.ConfirmationDelay)
	return &lead
}

func (c *Coordinator) watermark(ctx context.Context) time.Time {
	raw, err := c.store.Config.Get(ctx, watermarkKey)
	if err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			return t
		}
		log.Warn().Str("value", raw).Msg("Malformed sweep watermark, rescanning last day")
	}
	return c.clock().Add(-24 * time.Hour)
}

func (c *Coordinator) saveWatermark(ctx context.Context, t time.Time) {
	if err := c.store.Config.Set(ctx, watermarkKey, t.Format(time.RFC3339Nano), "coordinator"); err != nil {
		log.Warn().Err(err).Msg("Failed to persist sweep watermark")
	}
}
