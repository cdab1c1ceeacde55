package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
	"github.com/TradingApplication/catalyst-trading-system/internal/models"
	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
)

type newsRepo struct {
	db *DB
}

type newsRow struct {
	Fingerprint       string          `db:"fingerprint"`
	Symbol            sql.NullString  `db:"symbol"`
	Headline          string          `db:"headline"`
	Source            string          `db:"source"`
	SourceURL         sql.NullString  `db:"source_url"`
	PublishedAt       sql.NullTime    `db:"published_at"`
	CollectedAt       sql.NullTime    `db:"collected_at"`
	Snippet           sql.NullString  `db:"snippet"`
	Keywords          []byte          `db:"keywords"`
	Tickers           []byte          `db:"mentioned_tickers"`
	MarketState       string          `db:"market_state"`
	Breaking          bool            `db:"is_breaking_news"`
	SourceTier        int             `db:"source_tier"`
	ClusterID         sql.NullString  `db:"cluster_id"`
	Sentiment         []byte          `db:"sentiment_keywords"`
	Metadata          []byte          `db:"metadata"`
	UpdateCount       int             `db:"update_count"`
	LastSeen          sql.NullTime    `db:"last_seen"`
	PriceMove1h       sql.NullFloat64 `db:"price_move_1h"`
	PriceMove24h      sql.NullFloat64 `db:"price_move_24h"`
	VolumeSurgeRatio  sql.NullFloat64 `db:"volume_surge_ratio"`
	WasAccurate       sql.NullBool    `db:"was_accurate"`
	Confirmation      string          `db:"confirmation_status"`
	ConfirmedBy       sql.NullString  `db:"confirmed_by"`
	ConfirmationDelay sql.NullInt64   `db:"confirmation_delay_minutes"`
	CreatedAt         sql.NullTime    `db:"created_at"`
}

const newsColumns = `fingerprint, symbol, headline, source, source_url, published_at,
	collected_at, snippet, keywords, mentioned_tickers, market_state,
	is_breaking_news, source_tier, cluster_id, sentiment_keywords, metadata,
	update_count, last_seen, price_move_1h, price_move_24h, volume_surge_ratio,
	was_accurate, confirmation_status, confirmed_by, confirmation_delay_minutes,
	created_at`

func (r *newsRepo) Upsert(ctx context.Context, item models.NewsItem) (persistence.UpsertResult, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	keywordsJSON, err := marshalJSON(item.Keywords)
	if err != nil {
		return persistence.UpsertResult{}, err
	}
	tickersJSON, err := marshalJSON(item.Tickers)
	if err != nil {
		return persistence.UpsertResult{}, err
	}
	sentimentJSON, err := marshalJSON(item.Sentiment)
	if err != nil {
		return persistence.UpsertResult{}, err
	}
	metadataJSON, err := marshalJSON(item.Metadata)
	if err != nil {
		return persistence.UpsertResult{}, err
	}
	if string(metadataJSON) == "[]" {
		metadataJSON = []byte("{}")
	}

	// On conflict the original fields stay untouched: only update_count,
	// last_seen, and the unioned ticker/keyword sets change. The set union
	// is computed in SQL so concurrent upserts stay linearizable per
	// fingerprint.
	query := `
		INSERT INTO news_raw (fingerprint, symbol, headline, source, source_url,
			published_at, collected_at, snippet, keywords, mentioned_tickers,
			market_state, is_breaking_news, source_tier, cluster_id,
			sentiment_keywords, metadata, update_count, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 0, $17)
		ON CONFLICT (fingerprint) DO UPDATE SET
			update_count = news_raw.update_count + 1,
			last_seen = EXCLUDED.last_seen,
			mentioned_tickers = (
				SELECT COALESCE(jsonb_agg(DISTINCT e), '[]'::jsonb)
				FROM jsonb_array_elements(news_raw.mentioned_tickers || EXCLUDED.mentioned_tickers) AS t(e)
			),
			keywords = (
				SELECT COALESCE(jsonb_agg(DISTINCT e), '[]'::jsonb)
				FROM jsonb_array_elements(news_raw.keywords || EXCLUDED.keywords) AS t(e)
			)
		RETURNING (xmax = 0) AS created, update_count`

	var (
		created     bool
		updateCount int
	)
	err = r.db.conn.QueryRowxContext(ctx, query,
		item.Fingerprint, item.Symbol, item.Headline, item.Source, item.SourceURL,
		item.PublishedAt, item.CollectedAt, item.Snippet, keywordsJSON, tickersJSON,
		string(item.MarketState), item.Breaking, item.SourceTier, item.ClusterID,
		sentimentJSON, metadataJSON, item.LastSeen).
		Scan(&created, &updateCount)
	if err != nil {
		return persistence.UpsertResult{}, fmt.Errorf("failed to upsert news item: %w", err)
	}
	return persistence.UpsertResult{Created: created, UpdateCount: updateCount}, nil
}

func (r *newsRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*models.NewsItem, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var row newsRow
	query := fmt.Sprintf(`SELECT %s FROM news_raw WHERE fingerprint = $1`, newsColumns)
	if err := r.db.conn.GetContext(ctx, &row, query, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("news item %s", fingerprint)
		}
		return nil, fmt.Errorf("failed to read news item: %w", err)
	}
	item := row.toModel()
	return &item, nil
}

func (r *newsRepo) Range(ctx context.Context, tr persistence.TimeRange, filter persistence.NewsFilter) ([]models.NewsItem, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var (
		conds = []string{"published_at >= $1", "published_at <= $2"}
		args  = []interface{}{tr.From, tr.To}
	)
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		conds = append(conds, fmt.Sprintf("(symbol = $%d OR mentioned_tickers ? $%d)", len(args), len(args)))
	}
	if filter.MinTier > 0 {
		args = append(args, filter.MinTier)
		conds = append(conds, fmt.Sprintf("source_tier <= $%d", len(args)))
	}
	for _, cat := range filter.Categories {
		args = append(args, cat)
		conds = append(conds, fmt.Sprintf("keywords ? $%d", len(args)))
	}
	if filter.BreakingOnly {
		conds = append(conds, "is_breaking_news")
	}
	if filter.Unconfirmed {
		conds = append(conds, "confirmation_status = 'unconfirmed'")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM news_raw WHERE %s ORDER BY published_at DESC LIMIT $%d`,
		newsColumns, strings.Join(conds, " AND "), len(args))

	var rows []newsRow
	if err := r.db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read news range: %w", err)
	}

	items := make([]models.NewsItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toModel())
	}
	return items, nil
}

func (r *newsRepo) UpdateOutcome(ctx context.Context, fingerprint string, outcome models.NewsOutcome) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	// COALESCE keeps previously set outcome fields untouched, which makes
	// the update idempotent and append-only.
	query := `
		UPDATE news_raw SET
			price_move_1h = COALESCE(price_move_1h, $2),
			price_move_24h = COALESCE(price_move_24h, $3),
			volume_surge_ratio = COALESCE(volume_surge_ratio, $4),
			was_accurate = COALESCE(was_accurate, $5)
		WHERE fingerprint = $1`

	res, err := r.db.conn.ExecContext(ctx, query, fingerprint,
		outcome.PriceMove1h, outcome.PriceMove24h, outcome.VolumeSurgeRatio, outcome.WasAccurate)
	if err != nil {
		return fmt.Errorf("failed to update news outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.NotFoundf("news item %s", fingerprint)
	}
	return nil
}

func (r *newsRepo) MarkConfirmed(ctx context.Context, fingerprint, confirmedBy string, delayMinutes int) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	query := `
		UPDATE news_raw SET
			confirmation_status = 'confirmed',
			confirmed_by = $2,
			confirmation_delay_minutes = $3
		WHERE fingerprint = $1 AND confirmation_status = 'unconfirmed'`

	if _, err := r.db.conn.ExecContext(ctx, query, fingerprint, confirmedBy, delayMinutes); err != nil {
		return fmt.Errorf("failed to mark news confirmed: %w", err)
	}
	return nil
}

func (row newsRow) toModel() models.NewsItem {
	item := models.NewsItem{
		Fingerprint:  row.Fingerprint,
		Headline:     row.Headline,
		Source:       row.Source,
		SourceURL:    row.SourceURL.String,
		PublishedAt:  row.PublishedAt.Time,
		CollectedAt:  row.CollectedAt.Time,
		Snippet:      row.Snippet.String,
		Keywords:     unmarshalStrings(row.Keywords),
		Tickers:      unmarshalStrings(row.Tickers),
		MarketState:  models.MarketState(row.MarketState),
		Breaking:     row.Breaking,
		SourceTier:   row.SourceTier,
		Sentiment:    unmarshalStrings(row.Sentiment),
		Metadata:     unmarshalMap(row.Metadata),
		UpdateCount:  row.UpdateCount,
		LastSeen:     row.LastSeen.Time,
		Confirmation: models.ConfirmationStatus(row.Confirmation),
		CreatedAt:    row.CreatedAt.Time,
	}
	if row.Symbol.Valid {
		item.Symbol = &row.Symbol.String
	}
	if row.ClusterID.Valid {
		item.ClusterID = &row.ClusterID.String
	}
	if row.PriceMove1h.Valid {
		item.PriceMove1h = &row.PriceMove1h.Float64
	}
	if row.PriceMove24h.Valid {
		item.PriceMove24h = &row.PriceMove24h.Float64
	}
	if row.VolumeSurgeRatio.Valid {
		item.VolumeSurgeRatio = &row.VolumeSurgeRatio.Float64
	}
	if row.WasAccurate.Valid {
		item.WasAccurate = &row.WasAccurate.Bool
	}
	if row.ConfirmedBy.Valid {
		item.ConfirmedBy = &row.ConfirmedBy.String
	}
	if row.ConfirmationDelay.Valid {
		delay := int(row.ConfirmationDelay.Int64)
		item.ConfirmationDelay = &delay
	}
	return item
}
