package merging

import (
	"github.com/okarpov/lingohist/internal/client/models"
)

// IsBlacklistedPair reports whether the user has rejected merging the two
// records. The relation is symmetric: a mark on either side suppresses the
// pair.
func IsBlacklistedPair(first, second *models.HistoryRecord) bool {
	return first.IsBlacklistedMerge(second.ID) || second.IsBlacklistedMerge(first.ID)
}

// FilterBlacklisted drops group members the user has rejected against the
// group root. Groups with no members left are removed entirely.
func FilterBlacklisted(candidates []models.MergeCandidate) []models.MergeCandidate {
	result := make([]models.MergeCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		filtered := models.MergeCandidate{Record: candidate.Record}
		for _, child := range candidate.MergeRecords {
			child := child
			if IsBlacklistedPair(&candidate.Record, &child) {
				continue
			}
			filtered.MergeRecords = append(filtered.MergeRecords, child)
		}
		if len(filtered.MergeRecords) > 0 {
			result = append(result, filtered)
		}
	}
	return result
}
