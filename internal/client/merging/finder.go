// Package merging implements duplicate detection over history records:
// grouping of probable duplicates, promotion of the best group root, and
// symmetric blacklist filtering of rejected pairs.
package merging

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/okarpov/lingohist/internal/client/models"
)

// FindCandidates proposes groups of records that likely represent the same
// phrase. The scan is O(n²) over the input, so callers run it off the main
// execution path (see services.Merger) and cap the input size.
//
// The result is deterministic for a fixed input set and threshold: records
// are visited most-recently-translated first (ties broken by id), and each
// record is consumed by the first group that matches it.
func FindCandidates(records []models.HistoryRecord, maxDistance int) []models.MergeCandidate {
	views := make([]*mergeView, len(records))
	for i := range records {
		views[i] = &mergeView{record: records[i]}
	}
	sort.Slice(views, func(i, j int) bool {
		a, b := views[i].record, views[j].record
		if !a.LastTranslatedDate.Equal(b.LastTranslatedDate) {
			return a.LastTranslatedDate.After(b.LastTranslatedDate)
		}
		return a.ID < b.ID
	})

	var result []models.MergeCandidate
	for i := range views {
		if views[i] == nil {
			continue
		}

		var group []*mergeView
		for j := i + 1; j < len(views); j++ {
			other := views[j]
			if other == nil {
				continue
			}
			if views[i].record.SourceLanguage != other.record.SourceLanguage ||
				views[i].record.TargetLanguage != other.record.TargetLanguage {
				continue
			}
			if isMergeCandidate(views[i], other, maxDistance) {
				group = append(group, other)
				views[j] = nil
			}
		}

		if len(group) > 0 {
			result = append(result, promote(views[i], group))
		}
	}

	return result
}

// mergeView caches the candidate-matching projection of a record.
type mergeView struct {
	record models.HistoryRecord
}

func (v *mergeView) sentence() string       { return v.record.Sentence }
func (v *mergeView) suggestion() string     { return v.record.TranslateResult.Suggestion }
func (v *mergeView) baseForms() []string    { return v.record.TranslateResult.BaseForms }
func (v *mergeView) similarWords() []string { return v.record.TranslateResult.SimilarWords }

// richness is a proxy for how complete an entry is: the combined number of
// translation categories and definitions.
func (v *mergeView) richness() int {
	return v.record.TranslateResult.CategoriesNumber + v.record.TranslateResult.DefinitionsNumber
}

func isMergeCandidate(target, source *mergeView, maxDistance int) bool {
	if equalsIgnoreCase(target.sentence(), source.sentence()) {
		return true
	}

	if equalsIgnoreCase(target.suggestion(), source.suggestion()) ||
		equalsIgnoreCase(source.suggestion(), target.sentence()) ||
		equalsIgnoreCase(target.suggestion(), source.sentence()) {
		return true
	}

	if containsIgnoreCase(target.sentence(), source.baseForms()) ||
		containsIgnoreCase(source.sentence(), target.baseForms()) {
		return true
	}

	if containsIgnoreCase(target.sentence(), source.similarWords()) ||
		containsIgnoreCase(source.sentence(), target.similarWords()) {
		return true
	}

	return levenshtein.ComputeDistance(target.sentence(), source.sentence()) <= maxDistance
}

// promote re-selects which record of a group should be its canonical root.
// Priority: a child matching the root's spell-correction suggestion, then a
// child matching one of the root's base forms, then one matching a similar
// word, then whichever member has the richest translation payload. Promotion
// reassigns root and children but never changes group membership.
func promote(root *mergeView, children []*mergeView) models.MergeCandidate {
	if root.suggestion() != "" {
		for _, child := range children {
			if equalsIgnoreCase(child.sentence(), root.suggestion()) {
				return swapRoot(root, children, child)
			}
		}
	}

	for _, child := range children {
		if containsIgnoreCase(child.sentence(), root.baseForms()) {
			return swapRoot(root, children, child)
		}
	}

	for _, child := range children {
		if containsIgnoreCase(child.sentence(), root.similarWords()) {
			return swapRoot(root, children, child)
		}
	}

	richest := root
	for _, child := range children {
		if child.richness() > richest.richness() {
			richest = child
		}
	}
	if richest != root {
		return swapRoot(root, children, richest)
	}

	return makeCandidate(root, children)
}

func swapRoot(oldRoot *mergeView, children []*mergeView, newRoot *mergeView) models.MergeCandidate {
	rest := make([]*mergeView, 0, len(children))
	for _, child := range children {
		if child != newRoot {
			rest = append(rest, child)
		}
	}
	rest = append(rest, oldRoot)
	return makeCandidate(newRoot, rest)
}

func makeCandidate(root *mergeView, children []*mergeView) models.MergeCandidate {
	candidate := models.MergeCandidate{Record: root.record}
	for _, child := range children {
		candidate.MergeRecords = append(candidate.MergeRecords, child.record)
	}
	return candidate
}

func equalsIgnoreCase(first, second string) bool {
	if first == "" || second == "" {
		return false
	}
	return strings.EqualFold(first, second)
}

func containsIgnoreCase(text string, items []string) bool {
	for _, item := range items {
		if equalsIgnoreCase(item, text) {
			return true
		}
	}
	return false
}
