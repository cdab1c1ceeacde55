// Package persistence defines the port the core components use to reach the
// OLTP store. Implementations must provide read-committed transactions for
// multi-row writes and idempotent upserts where noted.
package persistence

import (
	"context"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

// TimeRange bounds a time-window query.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewsFilter narrows a news range read.
type NewsFilter struct {
	Symbol       string
	MinTier      int // 0 = any; otherwise tier <= MinTier
	Categories   []string
	BreakingOnly bool
	Unconfirmed  bool
	Limit        int // default 1000, newest first
}

// UpsertResult reports how a news upsert resolved.
type UpsertResult struct {
	Created     bool
	UpdateCount int
}

// NewsRepo persists normalized news records keyed by content fingerprint.
type NewsRepo interface {
	// Upsert inserts the item or, on fingerprint conflict, bumps
	// update_count, refreshes last_seen, and unions the ticker and keyword
	// sets. Original fields are never overwritten. Idempotent.
	Upsert(ctx context.Context, item models.NewsItem) (UpsertResult, error)

	// GetByFingerprint returns the stored record or errs.ErrNotFound.
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.NewsItem, error)

	// Range returns items within tr matching the filter, newest first.
	Range(ctx context.Context, tr TimeRange, filter NewsFilter) ([]models.NewsItem, error)

	// UpdateOutcome appends the outcome fields for one item. Idempotent;
	// outcome fields are never rewritten once set.
	UpdateOutcome(ctx context.Context, fingerprint string, outcome models.NewsOutcome) error

	// MarkConfirmed marks a lower-tier item as confirmed by a tier-1/2
	// source, recording the confirming source and the delay in minutes.
	MarkConfirmed(ctx context.Context, fingerprint, confirmedBy string, delayMinutes int) error
}

// CandidatesRepo persists scan output.
type CandidatesRepo interface {
	// InsertScan stores the scan header and its candidates atomically.
	InsertScan(ctx context.Context, result models.ScanResult) error

	// GetScan returns a previously stored scan or errs.ErrNotFound.
	GetScan(ctx context.Context, scanID string) (*models.ScanResult, error)

	// MarkStatus advances candidates of a scan to analyzed or traded.
	MarkStatus(ctx context.Context, scanID string, symbols []string, status string) error
}

// CyclesRepo persists coordinator runs and their workflow log.
type CyclesRepo interface {
	Insert(ctx context.Context, cycle models.TradingCycle) error

	// UpdateStage records the active stage and current counters.
	UpdateStage(ctx context.Context, cycleID string, stage models.Stage, counters models.CycleCounters) error

	// Finalize transitions the cycle to completed or failed exactly once.
	Finalize(ctx context.Context, cycleID string, status models.CycleStatus, reason string, pnl float64, counters models.CycleCounters) error

	Get(ctx context.Context, cycleID string) (*models.TradingCycle, error)

	// AppendLog records one workflow_log row per stage transition.
	AppendLog(ctx context.Context, entry models.WorkflowLogEntry) error
}

// SourceMetricsRepo tracks per-source reliability counters.
type SourceMetricsRepo interface {
	// Seed creates the row for a source at its immutable tier, if absent.
	Seed(ctx context.Context, source string, tier int) error

	// Increment applies one delta transactionally.
	Increment(ctx context.Context, delta models.SourceMetricsDelta) error

	List(ctx context.Context) ([]models.SourceMetrics, error)
}

// ConfigRepo stores the operator-tunable runtime configuration entries.
type ConfigRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, modifier string) error
}

// NarrativesRepo stores coordinated-narrative detections.
type NarrativesRepo interface {
	Insert(ctx context.Context, cluster models.NarrativeCluster) error
	ListSince(ctx context.Context, since time.Time) ([]models.NarrativeCluster, error)
}

// TradesRepo reads closed paper trades for the outcome-feedback sweep. The
// rows are written by the trading collaborator; the core only reads them and
// applies the resulting news/source updates in one transaction.
type TradesRepo interface {
	// ClosedSince returns trades closed after the watermark, oldest first.
	ClosedSince(ctx context.Context, since time.Time, limit int) ([]models.TradeRecord, error)

	// ApplyOutcome updates the originating NewsItem and the source's
	// metrics counters in a single transaction. Idempotent per trade.
	ApplyOutcome(ctx context.Context, trade models.TradeRecord, outcome models.NewsOutcome, delta models.SourceMetricsDelta) error
}

// Store aggregates the persistence port.
type Store struct {
	News          NewsRepo
	Candidates    CandidatesRepo
	Cycles        CyclesRepo
	SourceMetrics SourceMetricsRepo
	Config        ConfigRepo
	Narratives    NarrativesRepo
	Trades        TradesRepo
}

// Pinger reports store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
