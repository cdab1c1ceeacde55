package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TradingApplication/catalyst-trading-system/internal/errs"
)

type configRepo struct {
	db *DB
}

func (r *configRepo) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	var value string
	err := r.db.conn.GetContext(ctx, &value, `SELECT value FROM configuration WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.NotFoundf("config key %s", key)
		}
		return "", fmt.Errorf("failed to read config key: %w", err)
	}
	return value, nil
}

func (r *configRepo) Set(ctx context.Context, key, value, modifier string) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO configuration (key, value, modified_by, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			modified_by = EXCLUDED.modified_by,
			updated_at = now()`,
		key, value, modifier)
	if err != nil {
		return fmt.Errorf("failed to write config key: %w", err)
	}
	return nil
}
