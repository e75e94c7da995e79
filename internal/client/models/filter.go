package models

// Filter narrows history queries.
type Filter struct {
	StarredOnly     bool
	IncludeArchived bool
	// SearchText, when non-empty, matches sentences by substring.
	SearchText string
}

// SortColumn names a sortable record attribute.
type SortColumn string

const (
	SortLastTranslatedDate SortColumn = "lastTranslatedDate"
	SortCreatedDate        SortColumn = "createdDate"
	SortUpdatedDate        SortColumn = "updatedDate"
	SortTranslationsNumber SortColumn = "translationsNumber"
	SortSentence           SortColumn = "sentence"
)

// SortOrder is the direction of a sorted query.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page is offset/limit pagination. A zero Limit means "no limit".
type Page struct {
	Offset int
	Limit  int
}
