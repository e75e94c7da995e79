package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/common"
)

func TestMerger_GetMergeCandidates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, env.history.UpsertRecord(ctx, historyRecord("hello", now)))
	require.NoError(t, env.history.UpsertRecord(ctx, historyRecord("Hello", now.Add(-time.Hour))))
	require.NoError(t, env.history.UpsertRecord(ctx, historyRecord("unrelated", now.Add(-2*time.Hour))))

	result := <-env.merger.GetMergeCandidates(ctx)
	require.NoError(t, result.Err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "hello", result.Candidates[0].Record.Sentence)
	require.Len(t, result.Candidates[0].MergeRecords, 1)
	assert.Equal(t, "Hello", result.Candidates[0].MergeRecords[0].Sentence)
}

func TestMerger_GetMergeCandidates_HonorsBlacklist(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	now := time.Now()
	root := historyRecord("hello", now)
	child := historyRecord("Hello", now.Add(-time.Hour))
	require.NoError(t, env.history.UpsertRecord(ctx, root))
	require.NoError(t, env.history.UpsertRecord(ctx, child))

	require.NoError(t, env.merger.BlacklistRecords(ctx, child.ID, root.ID))

	result := <-env.merger.GetMergeCandidates(ctx)
	require.NoError(t, result.Err)
	assert.Empty(t, result.Candidates)
}

func TestMerger_MergeRecords(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now()

	source := historyRecord("helo", now)
	source.TranslationsNumber = 2
	source.Tags = []string{"slang"}
	source.Instances = []models.TranslationInstance{{TranslationDate: now}}
	require.NoError(t, env.history.UpsertRecord(ctx, source))

	target := historyRecord("hello", now.Add(-time.Hour))
	target.TranslationsNumber = 3
	target.Tags = []string{"greetings"}
	target.Instances = []models.TranslationInstance{{TranslationDate: now.Add(-time.Hour)}}
	require.NoError(t, env.history.UpsertRecord(ctx, target))

	require.NoError(t, env.merger.MergeRecords(ctx, source.ID, target.ID))

	mergedTarget, err := env.records.GetByID(ctx, testUser, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, mergedTarget.TranslationsNumber)
	assert.Equal(t, []string{"greetings", "slang"}, mergedTarget.Tags)
	require.Len(t, mergedTarget.Instances, 2)
	assert.Equal(t, now.Unix(), mergedTarget.LastTranslatedDate.Unix())

	mergedSource, err := env.records.GetByID(ctx, testUser, source.ID)
	require.NoError(t, err)
	assert.True(t, mergedSource.IsArchived)
	assert.Contains(t, mergedSource.Tags, common.MergedTag)
}

func TestMerger_MergeRecords_MissingRecord(t *testing.T) {
	env := newTestEnv()

	err := env.merger.MergeRecords(context.Background(), "missing", "also-missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMerger_BlacklistRecords_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	source := historyRecord("hello", time.Now())
	require.NoError(t, env.history.UpsertRecord(ctx, source))

	require.NoError(t, env.merger.BlacklistRecords(ctx, source.ID, "other"))
	require.NoError(t, env.merger.BlacklistRecords(ctx, source.ID, "other"))

	stored, err := env.records.GetByID(ctx, testUser, source.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, stored.BlacklistedMergeRecords)
}
