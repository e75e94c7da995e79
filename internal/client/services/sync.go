package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okarpov/lingohist/internal/client/auth"
	"github.com/okarpov/lingohist/internal/client/config"
	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/client/remote"
	"github.com/okarpov/lingohist/internal/client/repositories/metadata"
	"github.com/okarpov/lingohist/internal/client/repositories/records"
	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/logging"
)

// SyncEngine keeps the local history cache and the remote store converged.
// It runs a periodic pull-then-push cycle, reacts to local edits with an
// immediate push, and gates everything on connectivity. At most one cycle
// runs at a time; concurrent callers of SyncOnce queue on the sync mutex.
type SyncEngine struct {
	cfg     *config.Config
	records records.Repository
	meta    metadata.Repository
	remote  remote.Store
	auth    auth.Provider
	history *HistoryService
	log     logging.Logger
	now     func() time.Time

	// syncMu is the single sync slot.
	syncMu         sync.Mutex
	fullSyncNeeded atomic.Bool
	online         atomic.Bool

	runMu sync.Mutex
	stop  context.CancelFunc
	done  chan struct{}
}

// NewSyncEngine wires the engine. Call history.BindSyncer(engine) afterwards
// so user-initiated refreshes reach it.
func NewSyncEngine(cfg *config.Config, repo records.Repository, meta metadata.Repository, store remote.Store, provider auth.Provider, history *HistoryService, log logging.Logger) *SyncEngine {
	e := &SyncEngine{
		cfg:     cfg,
		records: repo,
		meta:    meta,
		remote:  store,
		auth:    provider,
		history: history,
		log:     log,
		now:     time.Now,
	}
	// A fresh sign-in may land on a watermark left by an earlier session, so
	// the first cycle after it reconciles the whole collection.
	provider.OnAccountChanged(func(account *auth.Account) {
		if account != nil {
			e.fullSyncNeeded.Store(true)
		}
	})
	return e
}

// StartContinuousSync launches the background loops: the periodic sync
// timer, the connectivity poller and the local-change listener. Calling it
// while already running is a no-op.
func (e *SyncEngine) StartContinuousSync() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stop != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.stop = cancel
	done := make(chan struct{})
	e.done = done

	events, unsubscribe := e.history.Subscribe()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.syncLoop(ctx) }()
	go func() { defer wg.Done(); e.onlineLoop(ctx) }()
	go func() { defer wg.Done(); e.eventLoop(ctx, events) }()
	go func() {
		wg.Wait()
		unsubscribe()
		close(done)
	}()

	e.log.Info(ctx, "continuous sync started", "interval", e.cfg.SyncInterval)
}

// StopContinuousSync cancels the timers and waits for the loops to exit. An
// in-flight sync cycle is allowed to finish. Calling it while stopped is a
// no-op.
func (e *SyncEngine) StopContinuousSync() {
	e.runMu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.runMu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
	e.log.Info(context.Background(), "continuous sync stopped")
}

// syncLoop drives the periodic cycle. A tick arriving far later than
// scheduled means the machine was suspended; in that case the loop waits out
// the resume grace period and schedules a full sync, since the watermark may
// be arbitrarily stale.
func (e *SyncEngine) syncLoop(ctx context.Context) {
	interval := e.cfg.SyncInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := e.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.now()
			gap := now.Sub(last)
			last = now
			if gap >= interval+e.cfg.ResumeGracePeriod {
				e.log.Info(ctx, "resume from suspend detected, delaying sync",
					"gap", gap, "grace", e.cfg.ResumeGracePeriod)
				e.fullSyncNeeded.Store(true)
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.cfg.ResumeGracePeriod):
				}
			}
			if !e.online.Load() {
				continue
			}
			e.syncSafe(ctx)
		}
	}
}

// onlineLoop probes the remote store and flips the online flag. A transition
// back online triggers a catch-up cycle immediately instead of waiting for
// the next timer tick.
func (e *SyncEngine) onlineLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.OnlineCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, e.cfg.OnlineCheckInterval)
			err := e.remote.Ping(pingCtx)
			cancel()
			online := err == nil
			if was := e.online.Swap(online); was != online {
				if online {
					e.log.Info(ctx, "remote store reachable, resuming sync")
					e.syncSafe(ctx)
				} else {
					e.log.Info(ctx, "remote store unreachable, sync paused", "error", err)
				}
			}
		}
	}
}

// eventLoop pushes local edits as they happen instead of waiting for the
// next timer tick.
func (e *SyncEngine) eventLoop(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type != RecordUpserted {
				continue
			}
			e.onRecordChanged(ctx, event.Record.ID)
		}
	}
}

// onRecordChanged is the fast path: a single conditional push of the changed
// record. A precondition failure means the remote copy moved underneath us,
// so the fast path degrades to a full corrective cycle.
func (e *SyncEngine) onRecordChanged(ctx context.Context, id string) {
	if !e.online.Load() {
		return
	}

	err := func() error {
		e.syncMu.Lock()
		defer e.syncMu.Unlock()

		account, err := e.auth.CurrentAccount(ctx)
		if err != nil {
			return err
		}
		record, err := e.records.GetByID(ctx, account.Email, id)
		if err != nil {
			return err
		}
		sd := record.UserSyncData(account.Email)
		if sd != nil && record.LastModifiedDate.Equal(sd.LastModifiedDate) {
			return nil
		}
		return e.pushRecord(ctx, account.Email, record)
	}()

	switch {
	case err == nil:
	case errors.Is(err, common.ErrPreconditionFailed):
		e.log.Info(ctx, "fast push lost against a concurrent writer, running full sync", "id", id)
		if err := e.SyncOnce(ctx, true); err != nil {
			e.log.Error(ctx, "corrective sync failed", "error", err)
		}
	case errors.Is(err, common.ErrUnauthenticated):
		e.log.Debug(ctx, "fast push skipped, signed out", "id", id)
	default:
		e.log.Warn(ctx, "fast push failed, record stays queued for the next cycle",
			"id", id, "error", err)
	}
}

func (e *SyncEngine) syncSafe(ctx context.Context) {
	err := e.SyncOnce(ctx, false)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrUnauthenticated):
		e.log.Debug(ctx, "sync skipped, signed out")
	default:
		e.log.Error(ctx, "sync cycle failed", "error", err)
	}
}

// SyncOnce runs one pull-then-push cycle. With forcedFullPull the watermark
// is ignored and the whole remote collection is reconciled; the engine also
// promotes the cycle to a full one when a previous push hit a precondition
// failure. The account is read fresh at the start of every cycle.
func (e *SyncEngine) SyncOnce(ctx context.Context, forcedFullPull bool) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	account, err := e.auth.CurrentAccount(ctx)
	if err != nil {
		return err
	}
	user := account.Email

	full := forcedFullPull || e.fullSyncNeeded.Swap(false)
	var since time.Time
	if !full {
		since, err = e.meta.GetWatermark(ctx, user)
		if err != nil {
			return fmt.Errorf("reading watermark: %w", err)
		}
	}

	if err := e.pull(ctx, user, since); err != nil {
		if full {
			e.fullSyncNeeded.Store(true)
		}
		return fmt.Errorf("pull: %w", err)
	}
	if err := e.push(ctx, user); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// pull merges every remote document modified after since into the local
// cache. The watermark advances only after the whole batch is merged, so a
// failed batch is re-pulled in full on the next cycle.
func (e *SyncEngine) pull(ctx context.Context, user string, since time.Time) error {
	docs, err := e.remote.Query(ctx, since)
	if err != nil {
		return fmt.Errorf("querying remote store: %w", err)
	}

	var maxTimestamp int64
	if !since.IsZero() {
		maxTimestamp = since.UnixNano()
	}
	merged := 0
	for _, doc := range docs {
		local, err := e.records.GetByID(ctx, user, doc.Record.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("loading local record %s: %w", doc.Record.ID, err)
		}
		result := mergeRemoteDocument(local, doc, user)
		if result != nil {
			if err := e.records.Upsert(ctx, result); err != nil {
				return fmt.Errorf("storing merged record %s: %w", result.ID, err)
			}
			merged++
		}
		if doc.Timestamp > maxTimestamp {
			maxTimestamp = doc.Timestamp
		}
	}

	if maxTimestamp > 0 {
		if err := e.meta.SetWatermark(ctx, user, time.Unix(0, maxTimestamp)); err != nil {
			return fmt.Errorf("advancing watermark: %w", err)
		}
	}
	if len(docs) > 0 {
		e.log.Debug(ctx, "pull finished", "documents", len(docs), "merged", merged)
	}
	return nil
}

// push uploads every record whose local modification time differs from the
// last acknowledged one. A precondition failure on one record schedules a
// corrective full cycle and moves on; other errors abort the cycle.
func (e *SyncEngine) push(ctx context.Context, user string) error {
	all, err := e.records.ListByUser(ctx, user)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	pushed := 0
	for i := range all {
		record := &all[i]
		sd := record.UserSyncData(user)
		if sd != nil && record.LastModifiedDate.Equal(sd.LastModifiedDate) {
			continue
		}
		if err := e.pushRecord(ctx, user, record); err != nil {
			if errors.Is(err, common.ErrPreconditionFailed) {
				e.log.Info(ctx, "push lost against a concurrent writer, full sync scheduled",
					"id", record.ID)
				e.fullSyncNeeded.Store(true)
				continue
			}
			return fmt.Errorf("pushing record %s: %w", record.ID, err)
		}
		pushed++
	}
	if pushed > 0 {
		e.log.Debug(ctx, "push finished", "records", pushed)
	}
	return nil
}

// pushRecord performs one conditional remote upsert and, on success, records
// the acknowledged server state on the record. Transient transport failures
// are retried with bounded exponential backoff before giving up on the
// cycle. Sync metadata never leaves the device.
func (e *SyncEngine) pushRecord(ctx context.Context, user string, record *models.HistoryRecord) error {
	var expected int64
	if sd := record.UserSyncData(user); sd != nil {
		expected = sd.ServerTimestamp
	}

	payload := record.Clone()
	payload.SyncData = nil

	var timestamp int64
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		timestamp, err = e.remote.Upsert(ctx, *payload, expected)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrPreconditionFailed) || errors.Is(err, common.ErrUnauthenticated) {
			return err
		}
		return retry.RetryableError(err)
	})
	if errors.Is(err, common.ErrPreconditionFailed) && expected != 0 {
		// A conditional update against a missing row fails the same way as a
		// concurrent write, but no pull can ever bring the document back.
		// Re-create it instead of conflicting forever.
		if _, getErr := e.remote.Get(ctx, payload.ID); errors.Is(getErr, common.ErrNotFound) {
			e.log.Info(ctx, "record deleted remotely, re-creating", "id", record.ID)
			timestamp, err = e.remote.Upsert(ctx, *payload, 0)
		}
	}
	if err != nil {
		return err
	}

	record.SetUserSyncData(models.SyncData{
		UserEmail:                user,
		ServerTimestamp:          timestamp,
		LastModifiedDate:         record.LastModifiedDate,
		ServerTranslationsNumber: record.TranslationsNumber,
		ServerTags:               models.UniqueTags(record.Tags),
	})
	if err := e.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("storing acknowledgement: %w", err)
	}
	return nil
}

// mergeRemoteDocument reconciles a pulled document with the local copy and
// returns the record to store, or nil when the document carries nothing new.
// The merge is field-wise and symmetric, so both replicas converge to the
// same state regardless of merge order:
//
//   - user flags follow the side modified most recently;
//   - the translation payload follows the side with the newer UpdatedDate;
//   - the translation counter becomes the remote total plus the local delta
//     accumulated since the last acknowledgement;
//   - tags are resolved three-way against the last acknowledged server set,
//     so an addition on one side survives a removal of a different tag on
//     the other;
//   - merge blacklists and instance logs are unioned.
func mergeRemoteDocument(local *models.HistoryRecord, doc remote.Document, user string) *models.HistoryRecord {
	remoteRecord := doc.Record.Clone()

	if local == nil {
		merged := remoteRecord
		merged.User = user
		merged.SyncData = nil
		merged.Tags = models.UniqueTags(merged.Tags)
		merged.SetUserSyncData(acknowledgement(user, doc))
		return merged
	}

	sd := local.UserSyncData(user)
	if sd != nil && sd.ServerTimestamp == doc.Timestamp {
		// Already reconciled against this revision.
		return nil
	}

	merged := local.Clone()

	flagSource := remoteRecord
	if local.LastModifiedDate.After(remoteRecord.LastModifiedDate) {
		flagSource = local
	}
	merged.IsStarred = flagSource.IsStarred
	merged.IsArchived = flagSource.IsArchived

	if remoteRecord.UpdatedDate.After(local.UpdatedDate) {
		merged.TranslateResult = remoteRecord.TranslateResult
		merged.UpdatedDate = remoteRecord.UpdatedDate
	}

	acknowledged := 0
	if sd != nil {
		acknowledged = sd.ServerTranslationsNumber
	}
	merged.TranslationsNumber = remoteRecord.TranslationsNumber + (local.TranslationsNumber - acknowledged)

	var base []string
	if sd != nil {
		base = sd.ServerTags
	}
	merged.Tags = resolveTags(base, local.Tags, remoteRecord.Tags)

	merged.BlacklistedMergeRecords = models.UniqueTags(local.BlacklistedMergeRecords, remoteRecord.BlacklistedMergeRecords)
	merged.Instances = mergeInstances(local.Instances, remoteRecord.Instances)

	if remoteRecord.LastTranslatedDate.After(merged.LastTranslatedDate) {
		merged.LastTranslatedDate = remoteRecord.LastTranslatedDate
	}
	if !remoteRecord.CreatedDate.IsZero() &&
		(merged.CreatedDate.IsZero() || remoteRecord.CreatedDate.Before(merged.CreatedDate)) {
		merged.CreatedDate = remoteRecord.CreatedDate
	}
	if remoteRecord.LastModifiedDate.After(merged.LastModifiedDate) {
		merged.LastModifiedDate = remoteRecord.LastModifiedDate
	}

	merged.SetUserSyncData(acknowledgement(user, doc))
	return merged
}

func acknowledgement(user string, doc remote.Document) models.SyncData {
	return models.SyncData{
		UserEmail:                user,
		ServerTimestamp:          doc.Timestamp,
		LastModifiedDate:         doc.Record.LastModifiedDate,
		ServerTranslationsNumber: doc.Record.TranslationsNumber,
		ServerTags:               models.UniqueTags(doc.Record.Tags),
	}
}

// resolveTags merges two tag sets against their common ancestor: a tag
// survives when both sides have it, or when the side carrying it added it
// after the ancestor. A tag present in the ancestor but missing on one side
// was deleted there and stays deleted.
func resolveTags(base, local, remote []string) []string {
	inBase := toSet(base)
	inLocal := toSet(local)
	inRemote := toSet(remote)

	var result []string
	for tag := range mergeSets(inLocal, inRemote) {
		switch {
		case inLocal[tag] && inRemote[tag]:
			result = append(result, tag)
		case inLocal[tag] && !inBase[tag]:
			result = append(result, tag)
		case inRemote[tag] && !inBase[tag]:
			result = append(result, tag)
		}
	}
	return models.UniqueTags(result)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func mergeSets(sets ...map[string]bool) map[string]bool {
	union := make(map[string]bool)
	for _, set := range sets {
		for item := range set {
			union[item] = true
		}
	}
	return union
}

// mergeInstances unions two translation-event logs. Events are identified by
// their timestamp together with their tag snapshot, so distinct events that
// share a coarse clock reading both survive; the result is sorted most
// recent first.
func mergeInstances(first, second []models.TranslationInstance) []models.TranslationInstance {
	seen := make(map[string]bool, len(first)+len(second))
	var result []models.TranslationInstance
	for _, set := range [][]models.TranslationInstance{first, second} {
		for _, instance := range set {
			key := fmt.Sprintf("%d\x00%s", instance.TranslationDate.UnixNano(), strings.Join(instance.Tags, "\x00"))
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, instance)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TranslationDate.After(result[j].TranslationDate)
	})
	return result
}
