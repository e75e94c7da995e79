// Package history persists the per-user history documents and enforces the
// optimistic-concurrency protocol on writes.
package history

import (
	"context"

	"github.com/okarpov/lingohist/internal/server/models"
)

type Repository interface {
	// Upsert writes the document and returns its new revision stamp.
	// expectedTimestamp 0 requires the document to not exist yet; any other
	// value requires the stored stamp to match. On mismatch nothing is
	// written and common.ErrPreconditionFailed is returned.
	Upsert(ctx context.Context, doc *models.HistoryDocument, expectedTimestamp int64) (int64, error)

	// Get returns the document or common.ErrNotFound.
	Get(ctx context.Context, userID, id string) (*models.HistoryDocument, error)

	// SelectUpdated returns the user's documents with a revision stamp
	// strictly greater than after, oldest first.
	SelectUpdated(ctx context.Context, userID string, after int64) ([]models.HistoryDocument, error)

	// Delete removes the document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, userID, id string) error
}
