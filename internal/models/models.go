package models

import (
	"time"
)

// MarketState classifies when an article was published relative to the
// configured trading session windows.
type MarketState string

const (
	MarketPreMarket  MarketState = "pre-market"
	MarketRegular    MarketState = "regular"
	MarketAfterHours MarketState = "after-hours"
	MarketWeekend    MarketState = "weekend"
)

// ConfirmationStatus tracks whether a low-tier article was later confirmed
// by a tier-1/2 source.
type ConfirmationStatus string

const (
	ConfirmationUnconfirmed ConfirmationStatus = "unconfirmed"
	ConfirmationConfirmed   ConfirmationStatus = "confirmed"
)

// RawArticle is an article as returned by a news source, before
// normalization. Unknown upstream fields are preserved in Metadata.
type RawArticle struct {
	Symbol      string                 `json:"symbol,omitempty"`
	Headline    string                 `json:"headline"`
	Source      string                 `json:"source"`
	URL         string                 `json:"url"`
	PublishedAt time.Time              `json:"published_at"`
	Snippet     string                 `json:"snippet,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewsItem is the normalized, deduplicated news record. Immutable after
// insertion except for the outcome fields, which are appended once by the
// post-trade feedback sweep.
type NewsItem struct {
	Fingerprint string      `json:"fingerprint" db:"fingerprint"`
	Symbol      *string     `json:"symbol,omitempty" db:"symbol"`
	Headline    string      `json:"headline" db:"headline"`
	Source      string      `json:"source" db:"source"`
	SourceURL   string      `json:"source_url" db:"source_url"`
	PublishedAt time.Time   `json:"published_at" db:"published_at"`
	CollectedAt time.Time   `json:"collected_at" db:"collected_at"`
	Snippet     string      `json:"snippet,omitempty" db:"snippet"`
	Keywords    []string    `json:"keywords" db:"keywords"`
	Tickers     []string    `json:"mentioned_tickers" db:"mentioned_tickers"`
	MarketState MarketState `json:"market_state" db:"market_state"`
	Breaking    bool        `json:"is_breaking_news" db:"is_breaking_news"`
	SourceTier  int         `json:"source_tier" db:"source_tier"`
	ClusterID   *string     `json:"cluster_id,omitempty" db:"cluster_id"`
	Sentiment   []string    `json:"sentiment_keywords" db:"sentiment_keywords"`

	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	UpdateCount int                    `json:"update_count" db:"update_count"`
	LastSeen    time.Time              `json:"last_seen" db:"last_seen"`

	// Outcome fields, set once after the originating trade closes.
	PriceMove1h       *float64           `json:"price_move_1h,omitempty" db:"price_move_1h"`
	PriceMove24h      *float64           `json:"price_move_24h,omitempty" db:"price_move_24h"`
	VolumeSurgeRatio  *float64           `json:"volume_surge_ratio,omitempty" db:"volume_surge_ratio"`
	WasAccurate       *bool              `json:"was_accurate,omitempty" db:"was_accurate"`
	Confirmation      ConfirmationStatus `json:"confirmation_status" db:"confirmation_status"`
	ConfirmedBy       *string            `json:"confirmed_by,omitempty" db:"confirmed_by"`
	ConfirmationDelay *int               `json:"confirmation_delay_minutes,omitempty" db:"confirmation_delay_minutes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AgeAt returns how old the article is relative to now.
func (n *NewsItem) AgeAt(now time.Time) time.Duration {
	return now.Sub(n.PublishedAt)
}

// NewsOutcome carries the realized market reaction for a NewsItem.
type NewsOutcome struct {
	PriceMove1h      float64 `json:"price_move_1h"`
	PriceMove24h     float64 `json:"price_move_24h"`
	VolumeSurgeRatio float64 `json:"volume_surge_ratio"`
	WasAccurate      bool    `json:"was_accurate"`
}

// SourceMetrics aggregates reliability statistics for one news source.
type SourceMetrics struct {
	Source          string    `json:"source" db:"source"`
	Tier            int       `json:"tier" db:"tier"`
	TotalArticles   int64     `json:"total_articles" db:"total_articles"`
	Confirmed       int64     `json:"confirmed_articles" db:"confirmed_articles"`
	Accurate        int64     `json:"accurate_articles" db:"accurate_articles"`
	False           int64     `json:"false_articles" db:"false_articles"`
	AccuracyRate    float64   `json:"accuracy_rate" db:"accuracy_rate"`
	AvgEarlyMinutes float64   `json:"avg_early_minutes" db:"avg_early_minutes"`
	Beneficiaries   []string  `json:"frequent_beneficiaries" db:"frequent_beneficiaries"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// SourceMetricsDelta is one transactional increment applied when a trade
// originating from this source closes.
type SourceMetricsDelta struct {
	Source       string
	Articles     int64
	Confirmed    int64
	Accurate     int64
	False        int64
	EarlyMinutes *float64 // lead time over the confirming source, when known
	Beneficiary  string   // symbol that benefited, when known
}

// TradingCandidate is one symbol selected by a scan.
type TradingCandidate struct {
	ScanID           string    `json:"scan_id" db:"scan_id"`
	Symbol           string    `json:"symbol" db:"symbol"`
	SelectedAt       time.Time `json:"selected_at" db:"selected_at"`
	CatalystScore    float64   `json:"catalyst_score" db:"catalyst_score"`
	NewsCount        int       `json:"news_count" db:"news_count"`
	PrimaryCatalyst  string    `json:"primary_catalyst" db:"primary_catalyst"`
	CatalystKeywords []string  `json:"catalyst_keywords" db:"catalyst_keywords"`

	Price           float64 `json:"price" db:"price"`
	Volume          int64   `json:"volume" db:"volume"`
	RelativeVolume  float64 `json:"relative_volume" db:"relative_volume"`
	PriceChangePct  float64 `json:"price_change_pct" db:"price_change_pct"`
	PreMarketVolume int64   `json:"pre_market_volume" db:"pre_market_volume"`
	PreMarketChange float64 `json:"pre_market_change" db:"pre_market_change"`

	TechnicalScore     float64 `json:"technical_score" db:"technical_score"`
	CombinedScore      float64 `json:"combined_score" db:"combined_score"`
	SelectionRank      int     `json:"selection_rank" db:"selection_rank"`
	HasPreMarketNews   bool    `json:"has_pre_market_news" db:"has_pre_market_news"`
	BestSourceTier     int     `json:"best_source_tier" db:"best_source_tier"`
	TechnicalValidated bool    `json:"technical_validated" db:"technical_validated"`
	Status             string  `json:"status" db:"status"` // selected, analyzed, traded
}

// ScanResult is the output of one scanner invocation.
type ScanResult struct {
	ScanID             string             `json:"scan_id"`
	Mode               string             `json:"mode"`
	StartedAt          time.Time          `json:"started_at"`
	Candidates         []TradingCandidate `json:"candidates"`
	UniverseSize       int                `json:"universe_size"`
	CatalystFiltered   int                `json:"catalyst_filtered"`
	TechnicalValidated bool               `json:"technical_validated"`
	DurationMS         int64              `json:"duration_ms"`
}

// CycleMode selects how aggressively a trading cycle behaves.
type CycleMode string

const (
	ModeAggressive CycleMode = "aggressive"
	ModeNormal     CycleMode = "normal"
	ModeLight      CycleMode = "light"
	ModeMinimal    CycleMode = "minimal"
)

// Valid reports whether m is a recognized mode.
func (m CycleMode) Valid() bool {
	switch m {
	case ModeAggressive, ModeNormal, ModeLight, ModeMinimal:
		return true
	}
	return false
}

// CycleStatus is the lifecycle status of a trading cycle.
type CycleStatus string

const (
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

// Stage names one step of the cycle workflow, executed strictly in order.
type Stage string

const (
	StageCollect  Stage = "collect"
	StageScan     Stage = "scan"
	StageAnalyze  Stage = "analyze"
	StageSignal   Stage = "signal"
	StageExecute  Stage = "execute"
	StageFinalize Stage = "finalize"
)

// Stages lists the workflow stages in execution order.
func Stages() []Stage {
	return []Stage{StageCollect, StageScan, StageAnalyze, StageSignal, StageExecute, StageFinalize}
}

// CycleCounters holds the per-stage record counts of one cycle.
type CycleCounters struct {
	NewsCollected      int `json:"news_collected" db:"news_collected"`
	CandidatesSelected int `json:"candidates_selected" db:"candidates_selected"`
	PatternsAnalyzed   int `json:"patterns_analyzed" db:"patterns_analyzed"`
	SignalsGenerated   int `json:"signals_generated" db:"signals_generated"`
	TradesExecuted     int `json:"trades_executed" db:"trades_executed"`
}

// TradingCycle is one coordinator run.
type TradingCycle struct {
	CycleID     string      `json:"cycle_id" db:"cycle_id"`
	Mode        CycleMode   `json:"mode" db:"mode"`
	Status      CycleStatus `json:"status" db:"status"`
	Stage       Stage       `json:"stage" db:"stage"`
	StartedAt   time.Time   `json:"started_at" db:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	Counters    CycleCounters
	CyclePnL    float64 `json:"cycle_pnl" db:"cycle_pnl"`
	SuccessRate float64 `json:"success_rate" db:"success_rate"`
	FailReason  string  `json:"fail_reason,omitempty" db:"fail_reason"`
}

// CycleView is the operator-facing projection of the live cycle.
type CycleView struct {
	CycleID   string        `json:"cycle_id"`
	Mode      CycleMode     `json:"mode"`
	Stage     Stage         `json:"stage"`
	Status    CycleStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Counters  CycleCounters `json:"counters"`
}

// WorkflowLogEntry records one stage transition of a cycle.
type WorkflowLogEntry struct {
	CycleID    string    `json:"cycle_id" db:"cycle_id"`
	Stage      Stage     `json:"stage" db:"stage"`
	Status     string    `json:"status" db:"status"` // started, completed, partial, failed
	Records    int       `json:"records" db:"records"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// CollectionReport summarizes one collection cycle.
type CollectionReport struct {
	Mode            CycleMode      `json:"mode"`
	Articles        int            `json:"articles"`
	New             int            `json:"new"`
	Duplicate       int            `json:"duplicate"`
	PerSourceCounts map[string]int `json:"per_source_counts"`
	Errors          []string       `json:"errors,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	DurationMS      int64          `json:"duration_ms"`
}

// NarrativeCluster is a group of articles sharing symbol, date, and keyword
// categories, surfaced for coordinated-messaging reporting.
type NarrativeCluster struct {
	ClusterID         string    `json:"cluster_id" db:"cluster_id"`
	Symbol            string    `json:"symbol" db:"symbol"`
	Date              string    `json:"date" db:"date"`
	Keywords          []string  `json:"keywords" db:"keywords"`
	Articles          int       `json:"articles" db:"articles"`
	DistinctSources   int       `json:"distinct_sources" db:"distinct_sources"`
	SpreadHours       float64   `json:"spread_hours" db:"spread_hours"`
	CoordinationScore float64   `json:"coordination_score" db:"coordination_score"`
	FirstSeen         time.Time `json:"first_seen" db:"first_seen"`
	LastSeen          time.Time `json:"last_seen" db:"last_seen"`
	DetectedAt        time.Time `json:"detected_at" db:"detected_at"`
}

// MarketSnapshot is the current market-data view of one symbol.
type MarketSnapshot struct {
	Symbol             string  `json:"symbol"`
	Price              float64 `json:"price"`
	Volume             int64   `json:"volume"`
	RelativeVolume     float64 `json:"relative_volume"`
	PriceChangePct     float64 `json:"price_change_pct"`
	PreMarketVolume    int64   `json:"pre_market_volume"`
	PreMarketChangePct float64 `json:"pre_market_change_pct"`
}

// TradeRecord is a closed paper trade read back from the trading
// collaborator's table for outcome feedback.
type TradeRecord struct {
	TradeID         string    `json:"trade_id" db:"trade_id"`
	CycleID         string    `json:"cycle_id" db:"cycle_id"`
	Symbol          string    `json:"symbol" db:"symbol"`
	NewsFingerprint string    `json:"news_fingerprint" db:"news_fingerprint"`
	Source          string    `json:"source" db:"source"`
	OpenedAt        time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt        time.Time `json:"closed_at" db:"closed_at"`
	PnL             float64   `json:"pnl" db:"pnl"`

	// Realized market reaction recorded at close, fed back into the
	// originating news item.
	PriceMove1h      float64 `json:"price_move_1h" db:"price_move_1h"`
	PriceMove24h     float64 `json:"price_move_24h" db:"price_move_24h"`
	VolumeSurgeRatio float64 `json:"volume_surge_ratio" db:"volume_surge_ratio"`
}
