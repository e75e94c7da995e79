// Package services contains the client-side application services: the
// history facade, the sync engine and the record merger.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okarpov/lingohist/internal/client/auth"
	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/client/remote"
	"github.com/okarpov/lingohist/internal/client/repositories/records"
	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/logging"
)

// EventType classifies a history change notification.
type EventType string

const (
	RecordUpserted EventType = "upserted"
	RecordDeleted  EventType = "deleted"
)

// Event is delivered to subscribers after every committed history change.
type Event struct {
	Type   EventType
	Record models.HistoryRecord
}

// subscriberBuffer bounds each subscriber channel; a subscriber that stops
// draining loses events rather than blocking writers.
const subscriberBuffer = 16

// Syncer is the part of the sync engine the history facade needs for
// user-initiated refreshes.
type Syncer interface {
	SyncOnce(ctx context.Context, forcedFullPull bool) error
}

// HistoryService is the caller-facing facade over the local history cache.
// Every user-driven mutation goes through UpsertRecord, which stamps
// LastModifiedDate and notifies subscribers, so the sync engine can react
// to changes immediately.
type HistoryService struct {
	records records.Repository
	remote  remote.Store
	auth    auth.Provider
	log     logging.Logger
	now     func() time.Time

	syncerMu sync.RWMutex
	syncer   Syncer

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewHistoryService constructs the facade. BindSyncer must be called before
// RefreshRecords is used.
func NewHistoryService(repo records.Repository, store remote.Store, provider auth.Provider, log logging.Logger) *HistoryService {
	return &HistoryService{
		records: repo,
		remote:  store,
		auth:    provider,
		log:     log,
		now:     time.Now,
		subs:    make(map[int]chan Event),
	}
}

// BindSyncer attaches the sync engine; done after construction because the
// engine itself subscribes to this service.
func (s *HistoryService) BindSyncer(syncer Syncer) {
	s.syncerMu.Lock()
	defer s.syncerMu.Unlock()
	s.syncer = syncer
}

// Subscribe registers a change listener. The returned cancel func must be
// called when the subscriber goes away.
func (s *HistoryService) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch
	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *HistoryService) publish(ctx context.Context, event Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.log.Warn(ctx, "history subscriber is not draining, event dropped",
				"type", event.Type, "id", event.Record.ID)
		}
	}
}

func (s *HistoryService) currentUser(ctx context.Context) (string, error) {
	account, err := s.auth.CurrentAccount(ctx)
	if err != nil {
		return "", err
	}
	return account.Email, nil
}

// QueryRecords returns a filtered, sorted page of the signed-in user's
// history together with the total match count.
func (s *HistoryService) QueryRecords(ctx context.Context, filter models.Filter, sort models.SortColumn, order models.SortOrder, page models.Page) ([]models.HistoryRecord, int, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.records.Query(ctx, user, filter, sort, order, page)
}

// GetRecord returns a single record or common.ErrNotFound.
func (s *HistoryService) GetRecord(ctx context.Context, id string) (*models.HistoryRecord, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.records.GetByID(ctx, user, id)
}

// RecordTranslation registers one translation event: it creates the record
// on first sight of the phrase, or bumps the counters and refreshes the
// payload of the existing one. An Instance is appended either way.
func (s *HistoryService) RecordTranslation(ctx context.Context, key models.TranslationKey, result models.TranslateResult, tags []string) (*models.HistoryRecord, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := key.RecordID()
	record, err := s.records.GetByID(ctx, user, id)
	switch {
	case errors.Is(err, common.ErrNotFound):
		record = &models.HistoryRecord{
			ID:             id,
			TranslationKey: key,
			User:           user,
			CreatedDate:    now,
		}
	case err != nil:
		return nil, fmt.Errorf("loading record: %w", err)
	}

	record.TranslateResult = result
	record.TranslationsNumber++
	record.LastTranslatedDate = now
	record.UpdatedDate = now
	record.Tags = models.UniqueTags(record.Tags, tags)
	record.Instances = append(record.Instances, models.TranslationInstance{
		TranslationDate: now,
		Tags:            models.UniqueTags(tags),
	})

	if err := s.UpsertRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// UpsertRecord is the single write path for user-driven changes: it stamps
// LastModifiedDate, persists the record and notifies subscribers. Sync
// merge results bypass it on purpose so remote state does not look like a
// fresh local edit.
func (s *HistoryService) UpsertRecord(ctx context.Context, record *models.HistoryRecord) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	if record.User == "" {
		record.User = user
	}
	record.LastModifiedDate = s.now()

	if err := s.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	s.publish(ctx, Event{Type: RecordUpserted, Record: *record.Clone()})
	return nil
}

// SetStarredStatus toggles the starred flag.
func (s *HistoryService) SetStarredStatus(ctx context.Context, id string, starred bool) error {
	return s.mutate(ctx, id, func(record *models.HistoryRecord) {
		record.IsStarred = starred
	})
}

// SetArchivedStatus toggles the archived flag.
func (s *HistoryService) SetArchivedStatus(ctx context.Context, id string, archived bool) error {
	return s.mutate(ctx, id, func(record *models.HistoryRecord) {
		record.IsArchived = archived
	})
}

// UpdateTags replaces the record's tag set.
func (s *HistoryService) UpdateTags(ctx context.Context, id string, tags []string) error {
	return s.mutate(ctx, id, func(record *models.HistoryRecord) {
		record.Tags = models.UniqueTags(tags)
	})
}

func (s *HistoryService) mutate(ctx context.Context, id string, fn func(*models.HistoryRecord)) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	record, err := s.records.GetByID(ctx, user, id)
	if err != nil {
		return err
	}
	fn(record)
	return s.UpsertRecord(ctx, record)
}

// HardDelete removes the record from the local cache and from the remote
// store. The remote delete is best effort: when the store is unreachable or
// the user is signed out, the local delete still happens and the failure is
// logged.
func (s *HistoryService) HardDelete(ctx context.Context, id string) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	record, err := s.records.GetByID(ctx, user, id)
	if err != nil {
		return err
	}
	if err := s.records.DeleteByID(ctx, user, id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if err := s.remote.Delete(ctx, id); err != nil && !errors.Is(err, common.ErrNotFound) {
		s.log.Warn(ctx, "remote delete failed, record removed locally only",
			"id", id, "error", err)
	}
	s.publish(ctx, Event{Type: RecordDeleted, Record: *record})
	return nil
}

// RefreshRecords runs a forced full pull so the caller sees the latest
// remote state.
func (s *HistoryService) RefreshRecords(ctx context.Context) error {
	s.syncerMu.RLock()
	syncer := s.syncer
	s.syncerMu.RUnlock()
	if syncer == nil {
		return errors.New("sync engine is not attached")
	}
	return syncer.SyncOnce(ctx, true)
}
