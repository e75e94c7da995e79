// Package records provides the SQLite-backed local history cache.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okarpov/lingohist/internal/client/models"
	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). The full record is stored as a JSON document; the columns used
// for filtering and sorting are extracted on every write.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, record *models.HistoryRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `INSERT INTO history_records
			(id, user, sentence, is_starred, is_archived, translations_number,
			 created_at, updated_at, last_translated_at, last_modified_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, user) DO UPDATE SET
			sentence = excluded.sentence,
			is_starred = excluded.is_starred,
			is_archived = excluded.is_archived,
			translations_number = excluded.translations_number,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_translated_at = excluded.last_translated_at,
			last_modified_at = excluded.last_modified_at,
			doc = excluded.doc
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.User, record.Sentence,
		boolToInt(record.IsStarred), boolToInt(record.IsArchived), record.TranslationsNumber,
		record.CreatedDate.UnixMilli(), record.UpdatedDate.UnixMilli(),
		record.LastTranslatedDate.UnixMilli(), record.LastModifiedDate.UnixMilli(),
		doc)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, user, id string) (*models.HistoryRecord, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT doc FROM history_records WHERE id = ? AND user = ?`, id, user).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record: %w", err)
	}
	return unmarshalRecord(doc)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, user, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM history_records WHERE id = ? AND user = ?`, id, user)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Query(ctx context.Context, user string, filter models.Filter, sort models.SortColumn, order models.SortOrder, page models.Page) ([]models.HistoryRecord, int, error) {
	where, args := buildWhere(user, filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM history_records ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := `SELECT doc FROM history_records ` + where +
		` ORDER BY ` + sortColumnSQL(sort) + ` ` + sortOrderSQL(order) + `, id`
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset)
	} else if page.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", page.Offset)
	}

	result, err := r.selectRecords(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, user string) ([]models.HistoryRecord, error) {
	return r.selectRecords(ctx, `SELECT doc FROM history_records WHERE user = ?`, user)
}

func (r *SQLiteRepository) selectRecords(ctx context.Context, query string, args ...any) ([]models.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.HistoryRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		record, err := unmarshalRecord(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func buildWhere(user string, filter models.Filter) (string, []any) {
	conditions := []string{"user = ?"}
	args := []any{user}

	if filter.StarredOnly {
		conditions = append(conditions, "is_starred = 1")
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "is_archived = 0")
	}
	if filter.SearchText != "" {
		conditions = append(conditions, "sentence LIKE ?")
		args = append(args, "%"+filter.SearchText+"%")
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// sortColumnSQL maps a sort column to its SQL name; unknown values fall back
// to last_translated_at. Columns are mapped through a fixed table, never
// interpolated from caller input.
func sortColumnSQL(c models.SortColumn) string {
	switch c {
	case models.SortCreatedDate:
		return "created_at"
	case models.SortUpdatedDate:
		return "updated_at"
	case models.SortTranslationsNumber:
		return "translations_number"
	case models.SortSentence:
		return "sentence"
	default:
		return "last_translated_at"
	}
}

func sortOrderSQL(o models.SortOrder) string {
	if o == models.SortAsc {
		return "ASC"
	}
	return "DESC"
}

func unmarshalRecord(doc []byte) (*models.HistoryRecord, error) {
	var record models.HistoryRecord
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
