package remote

import (
	"context"
	"sync"
	"time"

	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/common"
)

// InMemoryStore is a Store kept entirely in memory. It implements the same
// conditional-write semantics as the backend and is used by tests and by
// tooling that runs without a server.
type InMemoryStore struct {
	mu   sync.Mutex
	docs map[string]Document
	rev  int64

	// Err, when set, is returned by every operation. Tests use it to
	// simulate an unreachable store.
	Err error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]Document)}
}

func (s *InMemoryStore) Upsert(_ context.Context, record models.HistoryRecord, expectedTimestamp int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	existing, ok := s.docs[record.ID]
	if ok && existing.Timestamp != expectedTimestamp {
		return 0, common.ErrPreconditionFailed
	}
	if !ok && expectedTimestamp != 0 {
		return 0, common.ErrPreconditionFailed
	}

	s.rev++
	stored := *record.Clone()
	stored.SyncData = nil // sync metadata never leaves the device
	s.docs[record.ID] = Document{Record: stored, Timestamp: s.rev}
	return s.rev, nil
}

func (s *InMemoryStore) Query(_ context.Context, modifiedAfter time.Time) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var after int64
	if !modifiedAfter.IsZero() {
		after = modifiedAfter.UnixNano()
	}

	var result []Document
	for _, doc := range s.docs {
		if doc.Timestamp > after {
			doc.Record = *doc.Record.Clone()
			result = append(result, doc)
		}
	}
	return result, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	doc, ok := s.docs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	doc.Record = *doc.Record.Clone()
	return &doc, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.docs, id)
	return nil
}

func (s *InMemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}

// Seed stores a document directly with the next revision stamp, bypassing
// precondition checks. Returns the assigned stamp.
func (s *InMemoryStore) Seed(record models.HistoryRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	stored := *record.Clone()
	stored.SyncData = nil
	s.docs[record.ID] = Document{Record: stored, Timestamp: s.rev}
	return s.rev
}

// Len reports the number of stored documents.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
