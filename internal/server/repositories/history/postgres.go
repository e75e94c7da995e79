package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/dbx"
	"github.com/okarpov/lingohist/internal/server/models"
)

type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) Upsert(ctx context.Context, doc *models.HistoryDocument, expectedTimestamp int64) (int64, error) {
	stamp := r.now().UnixNano()

	var (
		result sql.Result
		err    error
	)
	if expectedTimestamp == 0 {
		query := `INSERT INTO history_documents (id, user_id, record, server_timestamp)
		          VALUES ($1, $2, $3, $4)
		          ON CONFLICT (user_id, id) DO NOTHING`
		result, err = r.db.ExecContext(ctx, query, doc.ID, doc.UserID, doc.Record, stamp)
	} else {
		query := `UPDATE history_documents
		          SET record = $3, server_timestamp = $4
		          WHERE user_id = $2 AND id = $1 AND server_timestamp = $5`
		result, err = r.db.ExecContext(ctx, query, doc.ID, doc.UserID, doc.Record, stamp, expectedTimestamp)
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		// The stored revision is not the one the caller saw last.
		return 0, common.ErrPreconditionFailed
	}

	doc.ServerTimestamp = stamp
	return stamp, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.HistoryDocument, error) {
	query := `SELECT id, user_id, record, server_timestamp FROM history_documents
	          WHERE user_id = $1 AND id = $2`

	doc := &models.HistoryDocument{}
	err := r.db.QueryRowContext(ctx, query, userID, id).Scan(
		&doc.ID, &doc.UserID, &doc.Record, &doc.ServerTimestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return doc, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, after int64) ([]models.HistoryDocument, error) {
	query := `SELECT id, user_id, record, server_timestamp FROM history_documents
	          WHERE user_id = $1 AND server_timestamp > $2
	          ORDER BY server_timestamp`

	rows, err := r.db.QueryContext(ctx, query, userID, after)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var docs []models.HistoryDocument
	for rows.Next() {
		var doc models.HistoryDocument
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Record, &doc.ServerTimestamp); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return docs, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM history_documents WHERE user_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
