package postgres

import (
	"context"
	"fmt"
)

// schema is the relational layout consumed by the core. Identifiers are
// case-sensitive lowercase; set-valued attributes use JSONB columns.
const schema = `
CREATE TABLE IF NOT EXISTS news_raw (
	fingerprint                CHAR(64) PRIMARY KEY,
	symbol                     VARCHAR(10),
	headline                   TEXT NOT NULL,
	source                     VARCHAR(100) NOT NULL,
	source_url                 TEXT,
	published_at               TIMESTAMPTZ NOT NULL,
	collected_at               TIMESTAMPTZ NOT NULL,
	snippet                    VARCHAR(500),
	keywords                   JSONB NOT NULL DEFAULT '[]',
	mentioned_tickers          JSONB NOT NULL DEFAULT '[]',
	market_state               VARCHAR(12) NOT NULL,
	is_breaking_news           BOOLEAN NOT NULL DEFAULT FALSE,
	source_tier                SMALLINT NOT NULL DEFAULT 5,
	cluster_id                 CHAR(40),
	sentiment_keywords         JSONB NOT NULL DEFAULT '[]',
	metadata                   JSONB NOT NULL DEFAULT '{}',
	update_count               INTEGER NOT NULL DEFAULT 0,
	last_seen                  TIMESTAMPTZ NOT NULL,
	price_move_1h              DOUBLE PRECISION,
	price_move_24h             DOUBLE PRECISION,
	volume_surge_ratio         DOUBLE PRECISION,
	was_accurate               BOOLEAN,
	confirmation_status        VARCHAR(12) NOT NULL DEFAULT 'unconfirmed',
	confirmed_by               VARCHAR(100),
	confirmation_delay_minutes INTEGER,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_news_raw_published ON news_raw (published_at DESC);
CREATE INDEX IF NOT EXISTS idx_news_raw_symbol ON news_raw (symbol, published_at DESC);
CREATE INDEX IF NOT EXISTS idx_news_raw_cluster ON news_raw (cluster_id) WHERE cluster_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS source_metrics (
	source             VARCHAR(100) PRIMARY KEY,
	tier               SMALLINT NOT NULL,
	total_articles     BIGINT NOT NULL DEFAULT 0,
	confirmed_articles BIGINT NOT NULL DEFAULT 0,
	accurate_articles  BIGINT NOT NULL DEFAULT 0,
	false_articles     BIGINT NOT NULL DEFAULT 0,
	accuracy_rate      DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_early_minutes  DOUBLE PRECISION NOT NULL DEFAULT 0,
	early_samples      BIGINT NOT NULL DEFAULT 0,
	beneficiaries      JSONB NOT NULL DEFAULT '[]',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scans (
	scan_id             UUID PRIMARY KEY,
	mode                VARCHAR(12) NOT NULL,
	started_at          TIMESTAMPTZ NOT NULL,
	universe_size       INTEGER NOT NULL,
	catalyst_filtered   INTEGER NOT NULL,
	technical_validated BOOLEAN NOT NULL DEFAULT TRUE,
	duration_ms         BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS trading_candidates (
	scan_id             UUID NOT NULL REFERENCES scans(scan_id),
	symbol              VARCHAR(10) NOT NULL,
	selected_at         TIMESTAMPTZ NOT NULL,
	catalyst_score      DOUBLE PRECISION NOT NULL,
	news_count          INTEGER NOT NULL,
	primary_catalyst    VARCHAR(20) NOT NULL,
	catalyst_keywords   JSONB NOT NULL DEFAULT '[]',
	price               DOUBLE PRECISION NOT NULL,
	volume              BIGINT NOT NULL,
	relative_volume     DOUBLE PRECISION NOT NULL,
	price_change_pct    DOUBLE PRECISION NOT NULL,
	pre_market_volume   BIGINT NOT NULL DEFAULT 0,
	pre_market_change   DOUBLE PRECISION NOT NULL DEFAULT 0,
	technical_score     DOUBLE PRECISION NOT NULL,
	combined_score      DOUBLE PRECISION NOT NULL,
	selection_rank      INTEGER NOT NULL,
	has_pre_market_news BOOLEAN NOT NULL DEFAULT FALSE,
	best_source_tier    SMALLINT NOT NULL DEFAULT 5,
	technical_validated BOOLEAN NOT NULL DEFAULT TRUE,
	status              VARCHAR(10) NOT NULL DEFAULT 'selected',
	PRIMARY KEY (scan_id, symbol),
	UNIQUE (scan_id, selection_rank)
);

CREATE TABLE IF NOT EXISTS trading_cycles (
	cycle_id            UUID PRIMARY KEY,
	mode                VARCHAR(12) NOT NULL,
	status              VARCHAR(10) NOT NULL,
	stage               VARCHAR(10) NOT NULL,
	started_at          TIMESTAMPTZ NOT NULL,
	completed_at        TIMESTAMPTZ,
	news_collected      INTEGER NOT NULL DEFAULT 0,
	candidates_selected INTEGER NOT NULL DEFAULT 0,
	patterns_analyzed   INTEGER NOT NULL DEFAULT 0,
	signals_generated   INTEGER NOT NULL DEFAULT 0,
	trades_executed     INTEGER NOT NULL DEFAULT 0,
	cycle_pnl           DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	fail_reason         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS workflow_log (
	id          BIGSERIAL PRIMARY KEY,
	cycle_id    UUID NOT NULL REFERENCES trading_cycles(cycle_id),
	stage       VARCHAR(10) NOT NULL,
	status      VARCHAR(10) NOT NULL,
	records     INTEGER NOT NULL DEFAULT 0,
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_workflow_log_cycle ON workflow_log (cycle_id, recorded_at);

CREATE TABLE IF NOT EXISTS configuration (
	key         VARCHAR(64) PRIMARY KEY,
	value       TEXT NOT NULL,
	modified_by VARCHAR(100) NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS narrative_clusters (
	cluster_id         CHAR(40) NOT NULL,
	detected_at        TIMESTAMPTZ NOT NULL,
	symbol             VARCHAR(10) NOT NULL,
	date               CHAR(10) NOT NULL,
	keywords           JSONB NOT NULL DEFAULT '[]',
	articles           INTEGER NOT NULL,
	distinct_sources   INTEGER NOT NULL,
	spread_hours       DOUBLE PRECISION NOT NULL,
	coordination_score DOUBLE PRECISION NOT NULL,
	first_seen         TIMESTAMPTZ NOT NULL,
	last_seen          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cluster_id, detected_at)
);

CREATE TABLE IF NOT EXISTS trade_records (
	trade_id         UUID PRIMARY KEY,
	cycle_id         UUID NOT NULL,
	symbol           VARCHAR(10) NOT NULL,
	news_fingerprint CHAR(64) NOT NULL,
	source           VARCHAR(100) NOT NULL,
	opened_at        TIMESTAMPTZ NOT NULL,
	closed_at        TIMESTAMPTZ,
	pnl              DOUBLE PRECISION,
	price_move_1h      DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_move_24h     DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_surge_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	feedback_applied BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_trade_records_closed ON trade_records (closed_at) WHERE closed_at IS NOT NULL;
`

// Migrate applies the schema. Safe to run at every boot.
func (d *DB) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*d.timeout)
	defer cancel()
	if _, err := d.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
