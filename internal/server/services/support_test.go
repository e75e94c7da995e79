package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/dbx"
	"github.com/okarpov/lingohist/internal/server/config"
	"github.com/okarpov/lingohist/internal/server/models"
	"github.com/okarpov/lingohist/internal/server/repositories/history"
	"github.com/okarpov/lingohist/internal/server/repositories/users"
)

func testServerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

// fakeUsers is an in-memory users.Repository.
type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]models.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[user.Email]; ok {
		return nil, common.ErrEmailAlreadyExists
	}
	user.CreatedAt = time.Now()
	f.byEmail[user.Email] = *user
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &user, nil
}

// fakeHistory is an in-memory history.Repository with the same conditional
// write semantics as the Postgres one.
type fakeHistory struct {
	mu   sync.Mutex
	docs map[string]map[string]models.HistoryDocument
	rev  int64
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{docs: make(map[string]map[string]models.HistoryDocument)}
}

func (f *fakeHistory) Upsert(_ context.Context, doc *models.HistoryDocument, expectedTimestamp int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID, ok := f.docs[doc.UserID]
	if !ok {
		byID = make(map[string]models.HistoryDocument)
		f.docs[doc.UserID] = byID
	}
	existing, exists := byID[doc.ID]
	if exists && existing.ServerTimestamp != expectedTimestamp {
		return 0, common.ErrPreconditionFailed
	}
	if !exists && expectedTimestamp != 0 {
		return 0, common.ErrPreconditionFailed
	}
	f.rev++
	doc.ServerTimestamp = f.rev
	byID[doc.ID] = *doc
	return f.rev, nil
}

func (f *fakeHistory) Get(_ context.Context, userID, id string) (*models.HistoryDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[userID][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeHistory) SelectUpdated(_ context.Context, userID string, after int64) ([]models.HistoryDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []models.HistoryDocument
	for _, doc := range f.docs[userID] {
		if doc.ServerTimestamp > after {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (f *fakeHistory) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs[userID], id)
	return nil
}

// fakeManager hands out the in-memory repositories regardless of the
// database handle.
type fakeManager struct {
	users   *fakeUsers
	history *fakeHistory
}

func newFakeManager() *fakeManager {
	return &fakeManager{users: newFakeUsers(), history: newFakeHistory()}
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *fakeManager) Users(dbx.DBTX) users.Repository     { return m.users }
func (m *fakeManager) History(dbx.DBTX) history.Repository { return m.history }
