package records

import (
	"context"

	"github.com/okarpov/lingohist/internal/client/models"
)

// Repository is the durable local cache of history records. Both direct user
// actions and the sync engine mutate records through the same Upsert, so the
// cache stays the single point of truth for current record state.
type Repository interface {
	// Upsert inserts or fully replaces the record identified by (id, user).
	Upsert(ctx context.Context, record *models.HistoryRecord) error

	// GetByID returns the record or common.ErrNotFound.
	GetByID(ctx context.Context, user, id string) (*models.HistoryRecord, error)

	// DeleteByID removes the record. Deleting a missing record is a no-op.
	DeleteByID(ctx context.Context, user, id string) error

	// Query returns a filtered, sorted page of the user's records together
	// with the total count of records matching the filter.
	Query(ctx context.Context, user string, filter models.Filter, sort models.SortColumn, order models.SortOrder, page models.Page) ([]models.HistoryRecord, int, error)

	// ListByUser returns all records owned by user, unordered.
	ListByUser(ctx context.Context, user string) ([]models.HistoryRecord, error)
}
