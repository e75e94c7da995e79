// Package remote defines the client's view of the cloud history store and
// provides an HTTP implementation plus an in-memory one for tests.
package remote

import (
	"context"
	"time"

	"github.com/okarpov/lingohist/internal/client/models"
)

// Document is a history record together with its server revision stamp.
// The stamp is assigned by the store on every successful write and is used
// as an optimistic-concurrency precondition; clients treat it as opaque.
type Document struct {
	Record    models.HistoryRecord `json:"record"`
	Timestamp int64                `json:"timestamp"`
}

// Store is the remote document collection, scoped to the authenticated
// account. Every call may fail with common.ErrUnauthenticated when no
// account is signed in.
type Store interface {
	// Upsert writes the record. A non-zero expectedTimestamp makes the write
	// conditional: if the stored revision differs, the call fails with
	// common.ErrPreconditionFailed and nothing is written. The new revision
	// stamp is returned on success.
	Upsert(ctx context.Context, record models.HistoryRecord, expectedTimestamp int64) (int64, error)

	// Query returns the account's documents modified after the given
	// watermark. A zero time returns everything.
	Query(ctx context.Context, modifiedAfter time.Time) ([]Document, error)

	// Get returns a single document or common.ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// Delete removes a document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, id string) error

	// Ping probes store reachability; used by the connectivity watcher.
	Ping(ctx context.Context) error
}
