package metadata

import (
	"context"
	"time"
)

// Repository is a small key-value store for client-side sync state, most
// importantly the per-user pull watermark: the highest remote modification
// timestamp already merged into the local cache.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// GetWatermark returns the stored pull watermark for user, or the zero
	// time when the user has never pulled.
	GetWatermark(ctx context.Context, user string) (time.Time, error)
	SetWatermark(ctx context.Context, user string, watermark time.Time) error
}
