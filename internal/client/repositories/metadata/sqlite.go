// Package metadata stores client-side sync state (watermarks and other
// small key-value items) in SQLite.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okarpov/lingohist/internal/dbx"
)

const watermarkKeyPrefix = "watermark:"

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) GetWatermark(ctx context.Context, user string) (time.Time, error) {
	value, err := r.Get(ctx, watermarkKeyPrefix+user)
	if err != nil {
		return time.Time{}, err
	}
	if value == nil {
		return time.Time{}, nil
	}
	ns, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid watermark for %s: %w", user, err)
	}
	return time.Unix(0, ns).UTC(), nil
}

func (r *SQLiteRepository) SetWatermark(ctx context.Context, user string, watermark time.Time) error {
	return r.Set(ctx, watermarkKeyPrefix+user, []byte(strconv.FormatInt(watermark.UnixNano(), 10)))
}
