package services

import (
	"context"
	"database/sql"

	"github.com/okarpov/lingohist/internal/server/models"
	"github.com/okarpov/lingohist/internal/server/repositories/repomanager"
)

// HistoryService exposes the per-user document store. Concurrency control
// lives in the repository; this layer only scopes calls to the
// authenticated user.
type HistoryService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

func NewHistoryService(db *sql.DB, m repomanager.RepositoryManager) *HistoryService {
	return &HistoryService{db: db, repos: m}
}

// Upsert writes a document conditionally and returns its new revision
// stamp. See history.Repository.Upsert for the precondition semantics.
func (s *HistoryService) Upsert(ctx context.Context, userID, id string, record []byte, expectedTimestamp int64) (int64, error) {
	doc := &models.HistoryDocument{ID: id, UserID: userID, Record: record}
	return s.repos.History(s.db).Upsert(ctx, doc, expectedTimestamp)
}

// Get returns one document or common.ErrNotFound.
func (s *HistoryService) Get(ctx context.Context, userID, id string) (*models.HistoryDocument, error) {
	return s.repos.History(s.db).Get(ctx, userID, id)
}

// SelectUpdated returns the user's documents modified after the given
// revision stamp, oldest first.
func (s *HistoryService) SelectUpdated(ctx context.Context, userID string, after int64) ([]models.HistoryDocument, error) {
	return s.repos.History(s.db).SelectUpdated(ctx, userID, after)
}

// Delete removes a document; deleting a missing one is a no-op.
func (s *HistoryService) Delete(ctx context.Context, userID, id string) error {
	return s.repos.History(s.db).Delete(ctx, userID, id)
}
