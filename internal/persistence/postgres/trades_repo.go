package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

type tradesRepo struct {
	db *DB
}

// ClosedSince returns closed trades past the watermark whose outcome has not
// yet been fed back, oldest first.
func (r *tradesRepo) ClosedSince(ctx context.Context, since time.Time, limit int) ([]models.TradeRecord, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	var rows []struct {
		TradeID          string       `db:"trade_id"`
		CycleID          string       `db:"cycle_id"`
		Symbol           string       `db:"symbol"`
		NewsFingerprint  string       `db:"news_fingerprint"`
		Source           string       `db:"source"`
		OpenedAt         sql.NullTime `db:"opened_at"`
		ClosedAt         sql.NullTime `db:"closed_at"`
		PnL              float64      `db:"pnl"`
		PriceMove1h      float64      `db:"price_move_1h"`
		PriceMove24h     float64      `db:"price_move_24h"`
		VolumeSurgeRatio float64      `db:"volume_surge_ratio"`
	}
	err := r.db.conn.SelectContext(ctx, &rows, `
		SELECT trade_id, cycle_id, symbol, news_fingerprint, source, opened_at, closed_at,
			pnl, price_move_1h, price_move_24h, volume_surge_ratio
		FROM trade_records
		WHERE closed_at IS NOT NULL AND closed_at > $1 AND NOT feedback_applied
		ORDER BY closed_at
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read closed trades: %w", err)
	}

	trades := make([]models.TradeRecord, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, models.TradeRecord{
			TradeID:          row.TradeID,
			CycleID:          row.CycleID,
			Symbol:           row.Symbol,
			NewsFingerprint:  row.NewsFingerprint,
			Source:           row.Source,
			OpenedAt:         row.OpenedAt.Time,
			ClosedAt:         row.ClosedAt.Time,
			PnL:              row.PnL,
			PriceMove1h:      row.PriceMove1h,
			PriceMove24h:     row.PriceMove24h,
			VolumeSurgeRatio: row.VolumeSurgeRatio,
		})
	}
	return trades, nil
}

// ApplyOutcome backfills the originating news item and bumps the source's
// counters in one transaction. The feedback_applied flag makes re-applying
// the same trade a no-op.
func (r *tradesRepo) ApplyOutcome(ctx context.Context, trade models.TradeRecord, outcome models.NewsOutcome, delta models.SourceMetricsDelta) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	tx, err := r.db.conn.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE trade_records SET feedback_applied = TRUE
		WHERE trade_id = $1 AND NOT feedback_applied`, trade.TradeID)
	if err != nil {
		return fmt.Errorf("failed to claim trade feedback: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already applied; idempotent no-op.
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE news_raw SET
			price_move_1h = COALESCE(price_move_1h, $2),
			price_move_24h = COALESCE(price_move_24h, $3),
			volume_surge_ratio = COALESCE(volume_surge_ratio, $4),
			was_accurate = COALESCE(was_accurate, $5)
		WHERE fingerprint = $1`,
		trade.NewsFingerprint, outcome.PriceMove1h, outcome.PriceMove24h,
		outcome.VolumeSurgeRatio, outcome.WasAccurate)
	if err != nil {
		return fmt.Errorf("failed to backfill news outcome: %w", err)
	}

	var earlyMinutes interface{}
	if delta.EarlyMinutes != nil {
		earlyMinutes = *delta.EarlyMinutes
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE source_metrics SET
			confirmed_articles = confirmed_articles + $2,
			accurate_articles = accurate_articles + $3,
			false_articles = false_articles + $4,
			accuracy_rate = CASE
				WHEN confirmed_articles + $2 > 0
				THEN (accurate_articles + $3)::float / (confirmed_articles + $2)::float
				ELSE 0 END,
			avg_early_minutes = CASE
				WHEN $5::float IS NULL THEN avg_early_minutes
				ELSE (avg_early_minutes * early_samples + $5::float) / (early_samples + 1)
				END,
			early_samples = early_samples + CASE WHEN $5::float IS NULL THEN 0 ELSE 1 END,
			beneficiaries = CASE
				WHEN $6 = '' THEN beneficiaries
				ELSE (
					SELECT COALESCE(jsonb_agg(DISTINCT e), '[]'::jsonb)
					FROM jsonb_array_elements(beneficiaries || to_jsonb(ARRAY[$6])) AS t(e)
				) END,
			updated_at = now()
		WHERE source = $1`,
		delta.Source, delta.Confirmed, delta.Accurate, delta.False, earlyMinutes, delta.Beneficiary)
	if err != nil {
		return fmt.Errorf("failed to update source metrics: %w", err)
	}

	return tx.Commit()
}
