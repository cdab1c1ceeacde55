package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

type cyclesRepo struct {
	db *DB
}

func (r *cyclesRepo) Insert(ctx context.Context, cycle models.TradingCycle) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO trading_cycles (cycle_id, mode, status, stage, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cycle.CycleID, string(cycle.Mode), string(cycle.Status), string(cycle.Stage), cycle.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	return nil
}

func (r *cyclesRepo) UpdateStage(ctx context.Context, cycleID string, stage models.Stage, counters models.CycleCounters) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE trading_cycles SET
			stage = $2,
			news_collected = $3,
			candidates_selected = $4,
			patterns_analyzed = $5,
			signals_generated = $6,
			trades_executed = $7
		WHERE cycle_id = $1 AND status = 'running'`,
		cycleID, string(stage), counters.NewsCollected, counters.CandidatesSelected,
		counters.PatternsAnalyzed, counters.SignalsGenerated, counters.TradesExecuted)
	if err != nil {
		return fmt.Errorf("failed to update cycle stage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFoundf("running cycle %s", cycleID)
	}
	return nil
}

// Finalize transitions a running cycle to its terminal status. The status
// guard makes the transition happen at most once.
func (r *cyclesRepo) Finalize(ctx context.Context, cycleID string, status models.CycleStatus, reason string, pnl float64, counters models.CycleCounters) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	successRate := 0.0
	if counters.CandidatesSelected > 0 {
		successRate = float64(counters.TradesExecuted) / float64(counters.CandidatesSelected)
	}

	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE trading_cycles SET
			status = $2,
			completed_at = now(),
			fail_reason = $3,
			cycle_pnl = $4,
			success_rate = $5,
			news_collected = $6,
			candidates_selected = $7,
			patterns_analyzed = $8,
			signals_generated = $9,
			trades_executed = $10
		WHERE cycle_id = $1 AND status = 'running'`,
		cycleID, string(status), reason, pnl, successRate,
		counters.NewsCollected, counters.CandidatesSelected,
		counters.PatternsAnalyzed, counters.SignalsGenerated, counters.TradesExecuted)
	if err != nil {
		return fmt.Errorf("failed to finalize cycle: %w", err)
	}
	return nil
}

func (r *cyclesRepo) Get(ctx context.Context, cycleID string) (*models.TradingCycle, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var row struct {
		CycleID            string         `db:"cycle_id"`
		Mode               string         `db:"mode"`
		Status             string         `db:"status"`
		Stage              string         `db:"stage"`
		StartedAt          sql.NullTime   `db:"started_at"`
		CompletedAt        sql.NullTime   `db:"completed_at"`
		NewsCollected      int            `db:"news_collected"`
		CandidatesSelected int            `db:"candidates_selected"`
		PatternsAnalyzed   int            `db:"patterns_analyzed"`
		SignalsGenerated   int            `db:"signals_generated"`
		TradesExecuted     int            `db:"trades_executed"`
		CyclePnL           float64        `db:"cycle_pnl"`
		SuccessRate        float64        `db:"success_rate"`
		FailReason         sql.NullString `db:"fail_reason"`
	}
	err := r.db.conn.GetContext(ctx, &row, `
		SELECT cycle_id, mode, status, stage, started_at, completed_at,
			news_collected, candidates_selected, patterns_analyzed,
			signals_generated, trades_executed, cycle_pnl, success_rate, fail_reason
		FROM trading_cycles WHERE cycle_id = $1`, cycleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("cycle %s", cycleID)
		}
		return nil, fmt.Errorf("failed to read cycle: %w", err)
	}

	cycle := &models.TradingCycle{
		CycleID:   row.CycleID,
		Mode:      models.CycleMode(row.Mode),
		Status:    models.CycleStatus(row.Status),
		Stage:     models.Stage(row.Stage),
		StartedAt: row.StartedAt.Time,
		Counters: models.CycleCounters{
			NewsCollected:      row.NewsCollected,
			CandidatesSelected: row.CandidatesSelected,
			PatternsAnalyzed:   row.PatternsAnalyzed,
			SignalsGenerated:   row.SignalsGenerated,
			TradesExecuted:     row.TradesExecuted,
		},
		CyclePnL:    row.CyclePnL,
		SuccessRate: row.SuccessRate,
		FailReason:  row.FailReason.String,
	}
	if row.CompletedAt.Valid {
		cycle.CompletedAt = &row.CompletedAt.Time
	}
	return cycle, nil
}

func (r *cyclesRepo) AppendLog(ctx context.Context, entry models.WorkflowLogEntry) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO workflow_log (cycle_id, stage, status, records, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.CycleID, string(entry.Stage), entry.Status, entry.Records, entry.Detail, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to append workflow log: %w", err)
	}
	return nil
}
