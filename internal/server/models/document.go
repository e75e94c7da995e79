package models

// HistoryDocument is one stored history record, keyed by (UserID, ID). The
// record body is opaque JSON; the server only manages the revision stamp.
// ServerTimestamp is assigned on every write and doubles as the
// optimistic-concurrency token and the incremental-query watermark.
type HistoryDocument struct {
	ID              string
	UserID          string
	Record          []byte
	ServerTimestamp int64
}
