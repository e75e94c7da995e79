package metadata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)

	return db
}

func TestGetSetDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	got, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got, "missing key returns nil, not an error")

	require.NoError(t, r.Set(ctx, "k", []byte("v1")))
	require.NoError(t, r.Set(ctx, "k", []byte("v2")))

	got, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, r.Delete(ctx, "k"))
	got, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWatermark_RoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	wm, err := r.GetWatermark(ctx, "u@example.com")
	require.NoError(t, err)
	assert.True(t, wm.IsZero(), "never-pulled user has a zero watermark")

	ts := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, r.SetWatermark(ctx, "u@example.com", ts))

	wm, err = r.GetWatermark(ctx, "u@example.com")
	require.NoError(t, err)
	assert.True(t, ts.Equal(wm))

	// watermarks are scoped per user
	wm, err = r.GetWatermark(ctx, "other@example.com")
	require.NoError(t, err)
	assert.True(t, wm.IsZero())
}
