package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

type candidatesRepo struct {
	db *DB
}

type candidateRow struct {
	ScanID             string       `db:"scan_id"`
	Symbol             string       `db:"symbol"`
	SelectedAt         sql.NullTime `db:"selected_at"`
	CatalystScore      float64      `db:"catalyst_score"`
	NewsCount          int          `db:"news_count"`
	PrimaryCatalyst    string       `db:"primary_catalyst"`
	CatalystKeywords   []byte       `db:"catalyst_keywords"`
	Price              float64      `db:"price"`
	Volume             int64        `db:"volume"`
	RelativeVolume     float64      `db:"relative_volume"`
	PriceChangePct     float64      `db:"price_change_pct"`
	PreMarketVolume    int64        `db:"pre_market_volume"`
	PreMarketChange    float64      `db:"pre_market_change"`
	TechnicalScore     float64      `db:"technical_score"`
	CombinedScore      float64      `db:"combined_score"`
	SelectionRank      int          `db:"selection_rank"`
	HasPreMarketNews   bool         `db:"has_pre_market_news"`
	BestSourceTier     int          `db:"best_source_tier"`
	TechnicalValidated bool         `db:"technical_validated"`
	Status             string       `db:"status"`
}

// InsertScan stores the scan header and its candidates in one transaction,
// so a scan_id is either fully present or absent.
func (r *candidatesRepo) InsertScan(ctx context.Context, result models.ScanResult) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	tx, err := r.db.conn.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (scan_id, mode, started_at, universe_size, catalyst_filtered,
			technical_validated, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ScanID, result.Mode, result.StartedAt, result.UniverseSize,
		result.CatalystFiltered, result.TechnicalValidated, result.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trading_candidates (scan_id, symbol, selected_at, catalyst_score,
			news_count, primary_catalyst, catalyst_keywords, price, volume,
			relative_volume, price_change_pct, pre_market_volume, pre_market_change,
			technical_score, combined_score, selection_rank, has_pre_market_news,
			best_source_tier, technical_validated, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range result.Candidates {
		keywordsJSON, err := marshalJSON(c.CatalystKeywords)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, c.ScanID, c.Symbol, c.SelectedAt, c.CatalystScore,
			c.NewsCount, c.PrimaryCatalyst, keywordsJSON, c.Price, c.Volume,
			c.RelativeVolume, c.PriceChangePct, c.PreMarketVolume, c.PreMarketChange,
			c.TechnicalScore, c.CombinedScore, c.SelectionRank, c.HasPreMarketNews,
			c.BestSourceTier, c.TechnicalValidated, c.Status)
		if err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.Symbol, err)
		}
	}

	return tx.Commit()
}

func (r *candidatesRepo) GetScan(ctx context.Context, scanID string) (*models.ScanResult, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var header struct {
		ScanID             string       `db:"scan_id"`
		Mode               string       `db:"mode"`
		StartedAt          sql.NullTime `db:"started_at"`
		UniverseSize       int          `db:"universe_size"`
		CatalystFiltered   int          `db:"catalyst_filtered"`
		TechnicalValidated bool         `db:"technical_validated"`
		DurationMS         int64        `db:"duration_ms"`
	}
	err := r.db.conn.GetContext(ctx, &header, `
		SELECT scan_id, mode, started_at, universe_size, catalyst_filtered,
			technical_validated, duration_ms
		FROM scans WHERE scan_id = $1`, scanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("scan %s", scanID)
		}
		return nil, fmt.Errorf("failed to read scan: %w", err)
	}

	var rows []candidateRow
	err = r.db.conn.SelectContext(ctx, &rows, `
		SELECT scan_id, symbol, selected_at, catalyst_score, news_count,
			primary_catalyst, catalyst_keywords, price, volume, relative_volume,
			price_change_pct, pre_market_volume, pre_market_change, technical_score,
			combined_score, selection_rank, has_pre_market_news, best_source_tier,
			technical_validated, status
		FROM trading_candidates WHERE scan_id = $1 ORDER BY selection_rank`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}

	result := &models.ScanResult{
		ScanID:             header.ScanID,
		Mode:               header.Mode,
		StartedAt:          header.StartedAt.Time,
		UniverseSize:       header.UniverseSize,
		CatalystFiltered:   header.CatalystFiltered,
		TechnicalValidated: header.TechnicalValidated,
		DurationMS:         header.DurationMS,
		Candidates:         make([]models.TradingCandidate, 0, len(rows)),
	}
	for _, row := range rows {
		result.Candidates = append(result.Candidates, models.TradingCandidate{
			ScanID:             row.ScanID,
			Symbol:             row.Symbol,
			SelectedAt:         row.SelectedAt.Time,
			CatalystScore:      row.CatalystScore,
			NewsCount:          row.NewsCount,
			PrimaryCatalyst:    row.PrimaryCatalyst,
			CatalystKeywords:   unmarshalStrings(row.CatalystKeywords),
			Price:              row.Price,
			Volume:             row.Volume,
			RelativeVolume:     row.RelativeVolume,
			PriceChangePct:     row.PriceChangePct,
			PreMarketVolume:    row.PreMarketVolume,
			PreMarketChange:    row.PreMarketChange,
			TechnicalScore:     row.TechnicalScore,
			CombinedScore:      row.CombinedScore,
			SelectionRank:      row.SelectionRank,
			HasPreMarketNews:   row.HasPreMarketNews,
			BestSourceTier:     row.BestSourceTier,
			TechnicalValidated: row.TechnicalValidated,
			Status:             row.Status,
		})
	}
	return result, nil
}

func (r *candidatesRepo) MarkStatus(ctx context.Context, scanID string, symbols []string, status string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE trading_candidates SET status = $3
		WHERE scan_id = $1 AND symbol = ANY($2)`,
		scanID, pq.Array(symbols), status)
	if err != nil {
		return fmt.Errorf("failed to mark candidate status: %w", err)
	}
	return nil
}
