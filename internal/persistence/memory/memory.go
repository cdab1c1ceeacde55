// Package memory implements the persistence port on in-process maps. It
// backs unit tests and the local development mode; semantics mirror the
// postgres implementation, including upsert set-unions and idempotent
// outcome writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
)

// Store is the in-memory persistence port.
type Store struct {
	mu sync.RWMutex

	news       map[string]models.NewsItem
	scans      map[string]models.ScanResult
	cycles     map[string]models.TradingCycle
	logs       []models.WorkflowLogEntry
	sources    map[string]*sourceRow
	config     map[string]string
	narratives []models.NarrativeCluster
	trades     map[string]tradeRow
}

type sourceRow struct {
	metrics      models.SourceMetrics
	earlySamples int64
}

type tradeRow struct {
	record  models.TradeRecord
	applied bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		news:    make(map[string]models.NewsItem),
		scans:   make(map[string]models.ScanResult),
		cycles:  make(map[string]models.TradingCycle),
		sources: make(map[string]*sourceRow),
		config:  make(map[string]string),
		trades:  make(map[string]tradeRow),
	}
}

// Port exposes the store through the persistence port.
func (s *Store) Port() persistence.Store {
	return persistence.Store{
		News:          s,
		Candidates:    s,
		Cycles:        s,
		SourceMetrics: s,
		Config:        configRepo{s},
		Narratives:    narrativesRepo{s},
		Trades:        s,
	}
}

// configRepo and narrativesRepo rename-adapt the store methods whose
// interface names collide with CyclesRepo on the shared receiver.
type configRepo struct{ s *Store }

func (r configRepo) Get(ctx context.Context, key string) (string, error) {
	return r.s.GetConfig(ctx, key)
}

func (r configRepo) Set(ctx context.Context, key, value, modifier string) error {
	return r.s.SetConfig(ctx, key, value, modifier)
}

type narrativesRepo struct{ s *Store }

func (r narrativesRepo) Insert(ctx context.Context, cluster models.NarrativeCluster) error {
	return r.s.InsertNarrative(ctx, cluster)
}

func (r narrativesRepo) ListSince(ctx context.Context, since time.Time) ([]models.NarrativeCluster, error) {
	return r.s.ListNarrativesSince(ctx, since)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Upsert implements persistence.NewsRepo.
func (s *Store) Upsert(_ context.Context, item models.NewsItem) (persistence.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.news[item.Fingerprint]
	if !ok {
		item.CreatedAt = item.CollectedAt
		s.news[item.Fingerprint] = item
		return persistence.UpsertResult{Created: true}, nil
	}

	existing.UpdateCount++
	existing.LastSeen = item.LastSeen
	existing.Tickers = unionStrings(existing.Tickers, item.Tickers)
	existing.Keywords = unionStrings(existing.Keywords, item.Keywords)
	s.news[item.Fingerprint] = existing
	return persistence.UpsertResult{Created: false, UpdateCount: existing.UpdateCount}, nil
}

// GetByFingerprint implements persistence.NewsRepo.
func (s *Store) GetByFingerprint(_ context.Context, fingerprint string) (*models.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.news[fingerprint]
	if !ok {
		return nil, errs.NotFoundf("news %s", fingerprint)
	}
	return &item, nil
}

// Range implements persistence.NewsRepo.
func (s *Store) Range(_ context.Context, tr persistence.TimeRange, filter persistence.NewsFilter) ([]models.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.NewsItem
	for _, item := range s.news {
		if item.PublishedAt.Before(tr.From) || item.PublishedAt.After(tr.To) {
			continue
		}
		if filter.Symbol != "" && (item.Symbol == nil || *item.Symbol != filter.Symbol) {
			continue
		}
		if filter.MinTier > 0 && item.SourceTier > filter.MinTier {
			continue
		}
		if filter.BreakingOnly && !item.Breaking {
			continue
		}
		if filter.Unconfirmed && item.Confirmation != models.ConfirmationUnconfirmed {
			continue
		}
		if len(filter.Categories) > 0 && !hasAny(item.Keywords, filter.Categories) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateOutcome implements persistence.NewsRepo. Fields set earlier win.
func (s *Store) UpdateOutcome(_ context.Context, fingerprint string, outcome models.NewsOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.news[fingerprint]
	if !ok {
		return errs.NotFoundf("news %s", fingerprint)
	}
	if item.PriceMove1h == nil {
		v := outcome.PriceMove1h
		item.PriceMove1h = &v
	}
	if item.PriceMove24h == nil {
		v := outcome.PriceMove24h
		item.PriceMove24h = &v
	}
	if item.VolumeSurgeRatio == nil {
		v := outcome.VolumeSurgeRatio
		item.VolumeSurgeRatio = &v
	}
	if item.WasAccurate == nil {
		v := outcome.WasAccurate
		item.WasAccurate = &v
	}
	s.news[fingerprint] = item
	return nil
}

// MarkConfirmed implements persistence.NewsRepo. Only the first confirmation
// sticks.
func (s *Store) MarkConfirmed(_ context.Context, fingerprint, confirmedBy string, delayMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.news[fingerprint]
	if !ok {
		return errs.NotFoundf("news %s", fingerprint)
	}
	if item.Confirmation != models.ConfirmationUnconfirmed {
		return nil
	}
	item.Confirmation = models.ConfirmationConfirmed
	item.ConfirmedBy = &confirmedBy
	item.ConfirmationDelay = &delayMinutes
	s.news[fingerprint] = item
	return nil
}

// InsertScan implements persistence.CandidatesRepo.
func (s *Store) InsertScan(_ context.Context, result models.ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[result.ScanID] = result
	return nil
}

// GetScan implements persistence.CandidatesRepo.
func (s *Store) GetScan(_ context.Context, scanID string) (*models.ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.scans[scanID]
	if !ok {
		return nil, errs.NotFoundf("scan %s", scanID)
	}
	return &result, nil
}

// MarkStatus implements persistence.CandidatesRepo.
func (s *Store) MarkStatus(_ context.Context, scanID string, symbols []string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.scans[scanID]
	if !ok {
		return errs.NotFoundf("scan %s", scanID)
	}
	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		wanted[sym] = true
	}
	for i := range result.Candidates {
		if wanted[result.Candidates[i].Symbol] {
			result.Candidates[i].Status = status
		}
	}
	s.scans[scanID] = result
	return nil
}

// Insert implements persistence.CyclesRepo.
func (s *Store) Insert(_ context.Context, cycle models.TradingCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles[cycle.CycleID] = cycle
	return nil
}

// UpdateStage implements persistence.CyclesRepo.
func (s *Store) UpdateStage(_ context.Context, cycleID string, stage models.Stage, counters models.CycleCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cycle, ok := s.cycles[cycleID]
	if !ok {
		return errs.NotFoundf("cycle %s", cycleID)
	}
	if cycle.Status != models.CycleRunning {
		return nil
	}
	cycle.Stage = stage
	cycle.Counters = counters
	s.cycles[cycleID] = cycle
	return nil
}

// Finalize implements persistence.CyclesRepo. Only the first terminal
// transition sticks.
func (s *Store) Finalize(_ context.Context, cycleID string, status models.CycleStatus, reason string, pnl float64, counters models.CycleCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cycle, ok := s.cycles[cycleID]
	if !ok {
		return errs.NotFoundf("cycle %s", cycleID)
	}
	if cycle.Status != models.CycleRunning {
		return nil
	}
	now := time.Now()
	cycle.Status = status
	cycle.FailReason = reason
	cycle.CyclePnL = pnl
	cycle.Counters = counters
	cycle.CompletedAt = &now
	if counters.CandidatesSelected > 0 {
		cycle.SuccessRate = float64(counters.TradesExecuted) / float64(counters.CandidatesSelected)
	}
	s.cycles[cycleID] = cycle
	return nil
}

// Get implements persistence.CyclesRepo.
func (s *Store) Get(_ context.Context, cycleID string) (*models.TradingCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cycle, ok := s.cycles[cycleID]
	if !ok {
		return nil, errs.NotFoundf("cycle %s", cycleID)
	}
	return &cycle, nil
}

// AppendLog implements persistence.CyclesRepo.
func (s *Store) AppendLog(_ context.Context, entry models.WorkflowLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

// Log returns a copy of the workflow log, oldest first.
func (s *Store) Log() []models.WorkflowLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.WorkflowLogEntry(nil), s.logs...)
}

// Seed implements persistence.SourceMetricsRepo.
func (s *Store) Seed(_ context.Context, source string, tier int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[source]; ok {
		return nil
	}
	s.sources[source] = &sourceRow{metrics: models.SourceMetrics{
		Source: source, Tier: tier, Beneficiaries: []string{},
	}}
	return nil
}

// Increment implements persistence.SourceMetricsRepo.
func (s *Store) Increment(_ context.Context, delta models.SourceMetricsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sources[delta.Source]
	if !ok {
		return errs.NotFoundf("source %s", delta.Source)
	}
	s.applyDelta(row, delta)
	return nil
}

func (s *Store) applyDelta(row *sourceRow, delta models.SourceMetricsDelta) {
	m := &row.metrics
	m.TotalArticles += delta.Articles
	m.Confirmed += delta.Confirmed
	m.Accurate += delta.Accurate
	m.False += delta.False
	if m.Confirmed > 0 {
		m.AccuracyRate = float64(m.Accurate) / float64(m.Confirmed)
	}
	if delta.EarlyMinutes != nil {
		m.AvgEarlyMinutes = (m.AvgEarlyMinutes*float64(row.earlySamples) + *delta.EarlyMinutes) /
			float64(row.earlySamples+1)
		row.earlySamples++
	}
	if delta.Beneficiary != "" && !contains(m.Beneficiaries, delta.Beneficiary) {
		m.Beneficiaries = append(m.Beneficiaries, delta.Beneficiary)
	}
	m.UpdatedAt = time.Now()
}

// List implements persistence.SourceMetricsRepo.
func (s *Store) List(context.Context) ([]models.SourceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SourceMetrics, 0, len(s.sources))
	for _, row := range s.sources {
		out = append(out, row.metrics)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

// GetConfig is the ConfigRepo Get; named methods avoid clashing with
// CyclesRepo.Get on the same receiver.
func (s *Store) GetConfig(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.config[key]
	if !ok {
		return "", errs.NotFoundf("config %s", key)
	}
	return value, nil
}

// SetConfig is the ConfigRepo Set.
func (s *Store) SetConfig(_ context.Context, key, value, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

// InsertNarrative implements persistence.NarrativesRepo.Insert semantics.
func (s *Store) InsertNarrative(_ context.Context, cluster models.NarrativeCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.narratives {
		if existing.ClusterID == cluster.ClusterID && existing.DetectedAt.Equal(cluster.DetectedAt) {
			return nil
		}
	}
	s.narratives = append(s.narratives, cluster)
	return nil
}

// ListNarrativesSince returns the latest detection per cluster since the
// watermark.
func (s *Store) ListNarrativesSince(_ context.Context, since time.Time) ([]models.NarrativeCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]models.NarrativeCluster)
	for _, cluster := range s.narratives {
		if cluster.DetectedAt.Before(since) {
			continue
		}
		if prev, ok := latest[cluster.ClusterID]; !ok || cluster.DetectedAt.After(prev.DetectedAt) {
			latest[cluster.ClusterID] = cluster
		}
	}
	out := make([]models.NarrativeCluster, 0, len(latest))
	for _, cluster := range latest {
		out = append(out, cluster)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CoordinationScore > out[j].CoordinationScore
	})
	return out, nil
}

// AddTrade stages a closed trade for the feedback sweep (test/dev helper).
func (s *Store) AddTrade(record models.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[record.TradeID] = tradeRow{record: record}
}

// ClosedSince implements persistence.TradesRepo.
func (s *Store) ClosedSince(_ context.Context, since time.Time, limit int) ([]models.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}
	var out []models.TradeRecord
	for _, row := range s.trades {
		if row.applied || !row.record.ClosedAt.After(since) {
			continue
		}
		out = append(out, row.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyOutcome implements persistence.TradesRepo. Idempotent per trade.
func (s *Store) ApplyOutcome(ctx context.Context, trade models.TradeRecord, outcome models.NewsOutcome, delta models.SourceMetricsDelta) error {
	s.mu.Lock()
	row, ok := s.trades[trade.TradeID]
	if !ok || row.applied {
		s.mu.Unlock()
		return nil
	}
	row.applied = true
	s.trades[trade.TradeID] = row
	s.mu.Unlock()

	if err := s.UpdateOutcome(ctx, trade.NewsFingerprint, outcome); err != nil {
		return err
	}
	return s.Increment(ctx, delta)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func hasAny(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, v := range have {
		set[v] = true
	}
	for _, v := range want {
		if set[v] {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
