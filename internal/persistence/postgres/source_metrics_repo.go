package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

type sourceMetricsRepo struct {
	db *DB
}

// Seed creates the metrics row for a source at its tier. The tier is
// immutable after seeding, so conflicts leave the row untouched.
func (r *sourceMetricsRepo) Seed(ctx context.Context, source string, tier int) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO source_metrics (source, tier)
		VALUES ($1, $2)
		ON CONFLICT (source) DO NOTHING`, source, tier)
	if err != nil {
		return fmt.Errorf("failed to seed source metrics: %w", err)
	}
	return nil
}

// Increment applies one delta atomically. The accuracy rate and the running
// average of early minutes are recomputed in the same statement so readers
// never observe a torn update.
func (r *sourceMetricsRepo) Increment(ctx context.Context, delta models.SourceMetricsDelta) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	tx, err := r.db.conn.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var earlyMinutes interface{}
	if delta.EarlyMinutes != nil {
		earlyMinutes = *delta.EarlyMinutes
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE source_metrics SET
			total_articles = total_articles + $2,
			confirmed_articles = confirmed_articles + $3,
			accurate_articles = accurate_articles + $4,
			false_articles = false_articles + $5,
			accuracy_rate = CASE
				WHEN confirmed_articles + $3 > 0
				THEN (accurate_articles + $4)::float / (confirmed_articles + $3)::float
				ELSE 0 END,
			avg_early_minutes = CASE
				WHEN $6::float IS NULL THEN avg_early_minutes
				ELSE (avg_early_minutes * early_samples + $6::float) / (early_samples + 1)
				END,
			early_samples = early_samples + CASE WHEN $6::float IS NULL THEN 0 ELSE 1 END,
			beneficiaries = CASE
				WHEN $7 = '' THEN beneficiaries
				ELSE (
					SELECT COALESCE(jsonb_agg(DISTINCT e), '[]'::jsonb)
					FROM jsonb_array_elements(beneficiaries || to_jsonb(ARRAY[$7])) AS t(e)
				) END,
			updated_at = now()
		WHERE source = $1`,
		delta.Source, delta.Articles, delta.Confirmed, delta.Accurate, delta.False,
		earlyMinutes, delta.Beneficiary)
	if err != nil {
		return fmt.Errorf("failed to increment source metrics: %w", err)
	}

	return tx.Commit()
}

func (r *sourceMetricsRepo) List(ctx context.Context) ([]models.SourceMetrics, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var rows []struct {
		Source          string       `db:"source"`
		Tier            int          `db:"tier"`
		TotalArticles   int64        `db:"total_articles"`
		Confirmed       int64        `db:"confirmed_articles"`
		Accurate        int64        `db:"accurate_articles"`
		False           int64        `db:"false_articles"`
		AccuracyRate    float64      `db:"accuracy_rate"`
		AvgEarlyMinutes float64      `db:"avg_early_minutes"`
		Beneficiaries   []byte       `db:"beneficiaries"`
		UpdatedAt       sql.NullTime `db:"updated_at"`
	}
	err := r.db.conn.SelectContext(ctx, &rows, `
		SELECT source, tier, total_articles, confirmed_articles, accurate_articles,
			false_articles, accuracy_rate, avg_early_minutes, beneficiaries, updated_at
		FROM source_metrics ORDER BY tier, source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source metrics: %w", err)
	}

	metrics := make([]models.SourceMetrics, 0, len(rows))
	for _, row := range rows {
		metrics = append(metrics, models.SourceMetrics{
			Source:          row.Source,
			Tier:            row.Tier,
			TotalArticles:   row.TotalArticles,
			Confirmed:       row.Confirmed,
			Accurate:        row.Accurate,
			False:           row.False,
			AccuracyRate:    row.AccuracyRate,
			AvgEarlyMinutes: row.AvgEarlyMinutes,
			Beneficiaries:   unmarshalStrings(row.Beneficiaries),
			UpdatedAt:       row.UpdatedAt.Time,
		})
	}
	return metrics, nil
}
