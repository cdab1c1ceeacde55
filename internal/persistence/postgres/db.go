// Package postgres implements the persistence port on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/TradingApplication/catalyst-trading-system/internal/persistence"
)

// DB wraps the connection pool shared by the repositories.
type DB struct {
	conn    *sqlx.DB
	timeout time.Duration
}

// Connect opens a bounded connection pool against the DSN and verifies
// connectivity.
func Connect(ctx context.Context, dsn string, maxConns int, timeout time.Duration) (*DB, error) {
	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns / 2)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	log.Info().Int("max_conns", maxConns).Msg("Postgres connection pool ready")
	return &DB{conn: conn, timeout: timeout}, nil
}

// NewStore builds the persistence port over the pool.
func NewStore(db *DB) persistence.Store {
	return persistence.Store{
		News:          &newsRepo{db: db},
		Candidates:    &candidatesRepo{db: db},
		Cycles:        &cyclesRepo{db: db},
		SourceMetrics: &sourceMetricsRepo{db: db},
		Config:        &configRepo{db: db},
		Narratives:    &narrativesRepo{db: db},
		Trades:        &tradesRepo{db: db},
	}
}

// Ping reports store reachability.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.conn.PingContext(ctx)
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// marshalJSON encodes a set-valued attribute for a JSONB column. Nil slices
// are stored as empty arrays so set unions in SQL stay well-typed.
func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

func unmarshalStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func unmarshalMap(data []byte) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
