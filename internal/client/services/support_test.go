package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okarpov/lingohist/internal/client/auth"
	"github.com/okarpov/lingohist/internal/client/config"
	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/client/remote"
	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

// fakeRecords is an in-memory records.Repository.
type fakeRecords struct {
	mu      sync.Mutex
	docs    map[string]map[string]models.HistoryRecord
	upserts int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{docs: make(map[string]map[string]models.HistoryRecord)}
}

func (f *fakeRecords) Upsert(_ context.Context, record *models.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID, ok := f.docs[record.User]
	if !ok {
		byID = make(map[string]models.HistoryRecord)
		f.docs[record.User] = byID
	}
	byID[record.ID] = *record.Clone()
	f.upserts++
	return nil
}

func (f *fakeRecords) GetByID(_ context.Context, user, id string) (*models.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.docs[user][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return record.Clone(), nil
}

func (f *fakeRecords) DeleteByID(_ context.Context, user, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs[user], id)
	return nil
}

func (f *fakeRecords) ListByUser(_ context.Context, user string) ([]models.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.HistoryRecord
	for _, record := range f.docs[user] {
		result = append(result, *record.Clone())
	}
	return result, nil
}

func (f *fakeRecords) Query(ctx context.Context, user string, filter models.Filter, column models.SortColumn, order models.SortOrder, page models.Page) ([]models.HistoryRecord, int, error) {
	all, _ := f.ListByUser(ctx, user)

	var filtered []models.HistoryRecord
	for _, record := range all {
		if filter.StarredOnly && !record.IsStarred {
			continue
		}
		if !filter.IncludeArchived && record.IsArchived {
			continue
		}
		if filter.SearchText != "" && !strings.Contains(record.Sentence, filter.SearchText) {
			continue
		}
		filtered = append(filtered, record)
	}

	sort.Slice(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		var less bool
		switch column {
		case models.SortCreatedDate:
			less = a.CreatedDate.Before(b.CreatedDate)
		case models.SortUpdatedDate:
			less = a.UpdatedDate.Before(b.UpdatedDate)
		case models.SortTranslationsNumber:
			less = a.TranslationsNumber < b.TranslationsNumber
		case models.SortSentence:
			less = a.Sentence < b.Sentence
		default:
			less = a.LastTranslatedDate.Before(b.LastTranslatedDate)
		}
		if order == models.SortDesc {
			return !less && !equalByColumn(a, b, column)
		}
		return less
	})

	total := len(filtered)
	if page.Offset > len(filtered) {
		return nil, total, nil
	}
	filtered = filtered[page.Offset:]
	if page.Limit > 0 && page.Limit < len(filtered) {
		filtered = filtered[:page.Limit]
	}
	return filtered, total, nil
}

func equalByColumn(a, b models.HistoryRecord, column models.SortColumn) bool {
	switch column {
	case models.SortCreatedDate:
		return a.CreatedDate.Equal(b.CreatedDate)
	case models.SortUpdatedDate:
		return a.UpdatedDate.Equal(b.UpdatedDate)
	case models.SortTranslationsNumber:
		return a.TranslationsNumber == b.TranslationsNumber
	case models.SortSentence:
		return a.Sentence == b.Sentence
	default:
		return a.LastTranslatedDate.Equal(b.LastTranslatedDate)
	}
}

// fakeMeta is an in-memory metadata.Repository.
type fakeMeta struct {
	mu     sync.Mutex
	values map[string][]byte
	marks  map[string]time.Time
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{values: make(map[string][]byte), marks: make(map[string]time.Time)}
}

func (f *fakeMeta) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return value, nil
}

func (f *fakeMeta) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeMeta) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeMeta) GetWatermark(_ context.Context, user string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[user], nil
}

func (f *fakeMeta) SetWatermark(_ context.Context, user string, watermark time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[user] = watermark
	return nil
}

// testEnv wires a complete client stack over in-memory implementations.
type testEnv struct {
	cfg     *config.Config
	records *fakeRecords
	meta    *fakeMeta
	store   *remote.InMemoryStore
	auth    *auth.StaticProvider
	history *HistoryService
	engine  *SyncEngine
	merger  *Merger
}

const testUser = "user@example.com"

func newTestEnv() *testEnv {
	env := &testEnv{
		cfg:     testConfig(),
		records: newFakeRecords(),
		meta:    newFakeMeta(),
		store:   remote.NewInMemoryStore(),
		auth:    auth.NewStaticProvider(testUser, "token"),
	}
	log := testLogger()
	env.history = NewHistoryService(env.records, env.store, env.auth, log)
	env.engine = NewSyncEngine(env.cfg, env.records, env.meta, env.store, env.auth, env.history, log)
	env.history.BindSyncer(env.engine)
	env.merger = NewMerger(env.cfg, env.history, log)
	return env
}

func historyRecord(sentence string, at time.Time) *models.HistoryRecord {
	key := models.TranslationKey{Sentence: sentence, SourceLanguage: "en", TargetLanguage: "de"}
	return &models.HistoryRecord{
		ID:                 key.RecordID(),
		TranslationKey:     key,
		User:               testUser,
		TranslateResult:    models.TranslateResult{Translation: "übersetzung"},
		TranslationsNumber: 1,
		CreatedDate:        at,
		UpdatedDate:        at,
		LastTranslatedDate: at,
		LastModifiedDate:   at,
	}
}
