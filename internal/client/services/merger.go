package services

import (
	"context"
	"fmt"

	"github.com/okarpov/lingohist/internal/client/config"
	"github.com/okarpov/lingohist/internal/client/merging"
	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/logging"
)

// CandidatesResult is the outcome of one candidate scan.
type CandidatesResult struct {
	Candidates []models.MergeCandidate
	Err        error
}

// Merger finds probable duplicate records and executes user-confirmed
// merges. All writes go through the history facade so the sync engine picks
// them up.
type Merger struct {
	cfg     *config.Config
	history *HistoryService
	log     logging.Logger
}

func NewMerger(cfg *config.Config, history *HistoryService, log logging.Logger) *Merger {
	return &Merger{cfg: cfg, history: history, log: log}
}

// GetMergeCandidates scans the most recently used records for duplicates.
// The scan is quadratic, so it runs on its own goroutine and delivers the
// result over the returned channel; the channel is closed after one result.
// Blacklisted pairs are filtered out of the groups.
func (m *Merger) GetMergeCandidates(ctx context.Context) <-chan CandidatesResult {
	out := make(chan CandidatesResult, 1)
	go func() {
		defer close(out)

		recs, _, err := m.history.QueryRecords(ctx, models.Filter{},
			models.SortLastTranslatedDate, models.SortDesc,
			models.Page{Limit: m.cfg.RecordsToScanForMerge})
		if err != nil {
			out <- CandidatesResult{Err: fmt.Errorf("loading records to scan: %w", err)}
			return
		}

		candidates := merging.FindCandidates(recs, m.cfg.MaxLevenshteinDistance)
		candidates = merging.FilterBlacklisted(candidates)
		m.log.Debug(ctx, "merge candidate scan finished",
			"scanned", len(recs), "groups", len(candidates))
		out <- CandidatesResult{Candidates: candidates}
	}()
	return out
}

// MergeRecords folds the source record into the target: the target absorbs
// the source's translation count, tags and instance log; the source is
// archived and tagged so it drops out of the default views but stays
// auditable. Both records are written through the history facade, so the
// merge propagates to other devices like any other edit.
func (m *Merger) MergeRecords(ctx context.Context, sourceID, targetID string) error {
	source, err := m.history.GetRecord(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("loading source record: %w", err)
	}
	target, err := m.history.GetRecord(ctx, targetID)
	if err != nil {
		return fmt.Errorf("loading target record: %w", err)
	}

	target.TranslationsNumber += source.TranslationsNumber
	target.Tags = models.UniqueTags(target.Tags, source.Tags)
	target.Instances = mergeInstances(target.Instances, source.Instances)
	if source.LastTranslatedDate.After(target.LastTranslatedDate) {
		target.LastTranslatedDate = source.LastTranslatedDate
	}

	source.IsArchived = true
	source.Tags = models.UniqueTags(source.Tags, []string{common.MergedTag})

	if err := m.history.UpsertRecord(ctx, target); err != nil {
		return fmt.Errorf("storing target record: %w", err)
	}
	if err := m.history.UpsertRecord(ctx, source); err != nil {
		return fmt.Errorf("storing source record: %w", err)
	}
	m.log.Info(ctx, "records merged", "source", sourceID, "target", targetID)
	return nil
}

// BlacklistRecords marks the pair as not-a-duplicate so the finder never
// proposes it again. The mark is stored on the source record; the check is
// symmetric, so one edge is enough.
func (m *Merger) BlacklistRecords(ctx context.Context, sourceID, targetID string) error {
	source, err := m.history.GetRecord(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("loading source record: %w", err)
	}
	if source.IsBlacklistedMerge(targetID) {
		return nil
	}
	source.BlacklistedMergeRecords = append(source.BlacklistedMergeRecords, targetID)
	if err := m.history.UpsertRecord(ctx, source); err != nil {
		return fmt.Errorf("storing source record: %w", err)
	}
	return nil
}
