package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/TradingApplication/catalyst-trading-system/internal/models"
)

type narrativesRepo struct {
	db *DB
}

func (r *narrativesRepo) Insert(ctx context.Context, cluster models.NarrativeCluster) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	keywordsJSON, err := marshalJSON(cluster.Keywords)
	if err != nil {
		return err
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO narrative_clusters (cluster_id, detected_at, symbol, date, keywords,
			articles, distinct_sources, spread_hours, coordination_score, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cluster_id, detected_at) DO NOTHING`,
		cluster.ClusterID, cluster.DetectedAt, cluster.Symbol, cluster.Date, keywordsJSON,
		cluster.Articles, cluster.DistinctSources, cluster.SpreadHours,
		cluster.CoordinationScore, cluster.FirstSeen, cluster.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to insert narrative cluster: %w", err)
	}
	return nil
}

func (r *narrativesRepo) ListSince(ctx context.Context, since time.Time) ([]models.NarrativeCluster, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var rows []struct {
		ClusterID         string       `db:"cluster_id"`
		DetectedAt        sql.NullTime `db:"detected_at"`
		Symbol            string       `db:"symbol"`
		Date              string       `db:"date"`
		Keywords          []byte       `db:"keywords"`
		Articles          int          `db:"articles"`
		DistinctSources   int          `db:"distinct_sources"`
		SpreadHours       float64      `db:"spread_hours"`
		CoordinationScore float64      `db:"coordination_score"`
		FirstSeen         sql.NullTime `db:"first_seen"`
		LastSeen          sql.NullTime `db:"last_seen"`
	}
	err := r.db.conn.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (cluster_id) cluster_id, detected_at, symbol, date, keywords,
			articles, distinct_sources, spread_hours, coordination_score, first_seen, last_seen
		FROM narrative_clusters
		WHERE detected_at >= $1
		ORDER BY cluster_id, detected_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list narrative clusters: %w", err)
	}

	clusters := make([]models.NarrativeCluster, 0, len(rows))
	for _, row := range rows {
		clusters = append(clusters, models.NarrativeCluster{
			ClusterID:         row.ClusterID,
			DetectedAt:        row.DetectedAt.Time,
			Symbol:            row.Symbol,
			Date:              row.Date,
			Keywords:          unmarshalStrings(row.Keywords),
			Articles:          row.Articles,
			DistinctSources:   row.DistinctSources,
			SpreadHours:       row.SpreadHours,
			CoordinationScore: row.CoordinationScore,
			FirstSeen:         row.FirstSeen.Time,
			LastSeen:          row.LastSeen.Time,
		})
	}
	return clusters, nil
}
