// Package metrics registers the prometheus instruments exported by the core
// services on their /metrics endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts coordinator cycles by terminal status.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "coordinator",
		Name:      "cycles_total",
		Help:      "Trading cycles by terminal status",
	}, []string{"status", "mode"})

	// StageDuration observes per-stage wall time.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalyst",
		Subsystem: "coordinator",
		Name:      "stage_duration_seconds",
		Help:      "Cycle stage duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	// StagePartial counts stages that exhausted retries and degraded.
	StagePartial = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "coordinator",
		Name:      "stage_partial_total",
		Help:      "Stages marked partial after retry exhaustion",
	}, []string{"stage"})

	// ArticlesCollected counts normalized articles per source and outcome.
	ArticlesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "news",
		Name:      "articles_total",
		Help:      "Articles processed per source",
	}, []string{"source", "result"}) // result: new, duplicate, error

	// SourceErrors counts fetch failures per source.
	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "news",
		Name:      "source_errors_total",
		Help:      "Source fetch failures",
	}, []string{"source", "kind"}) // kind: transient, rate_limited, dropped

	// CollectionDuration observes whole collection cycles.
	CollectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalyst",
		Subsystem: "news",
		Name:      "collection_duration_seconds",
		Help:      "Collection cycle duration",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"mode"})

	// ConfirmationsTotal counts low-tier articles confirmed by tier-1/2 sources.
	ConfirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "news",
		Name:      "confirmations_total",
		Help:      "Articles confirmed by a higher-tier source",
	})

	// NarrativeClusters counts coordinated narratives surfaced per sweep.
	NarrativeClusters = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "news",
		Name:      "narrative_clusters_total",
		Help:      "Coordinated narrative clusters detected",
	})

	// ScanDuration observes scanner wall time per mode.
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalyst",
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Scan duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"mode"})

	// CandidatesSelected observes how many candidates each scan produced.
	CandidatesSelected = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "catalyst",
		Subsystem: "scanner",
		Name:      "candidates_selected",
		Help:      "Candidates selected per scan",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})

	// MarketDataFailures counts snapshot fetch failures during validation.
	MarketDataFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "scanner",
		Name:      "market_data_failures_total",
		Help:      "Market data snapshot failures during technical validation",
	})

	// OutcomesApplied counts closed trades fed back into source metrics.
	OutcomesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "catalyst",
		Subsystem: "coordinator",
		Name:      "outcomes_applied_total",
		Help:      "Closed-trade outcomes fed back into news and source metrics",
	})
)
