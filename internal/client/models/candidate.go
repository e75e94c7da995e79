package models

// MergeCandidate is a proposed grouping of records believed to represent the
// same translated phrase, pending user confirmation. Candidates are computed
// on demand and never persisted.
type MergeCandidate struct {
	// Record is the proposed canonical entry of the group.
	Record HistoryRecord
	// MergeRecords are the entries proposed to fold into Record.
	MergeRecords []HistoryRecord
}
