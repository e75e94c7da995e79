// Package storage opens the client-side SQLite database and applies the
// embedded schema migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/okarpov/lingohist/internal/client/migrations"
	"github.com/okarpov/lingohist/internal/client/repositories/metadata"
	"github.com/okarpov/lingohist/internal/client/repositories/records"
)

// Repositories bundles the repositories backed by one database handle.
type Repositories struct {
	Records  records.Repository
	Metadata metadata.Repository
	DB       *sql.DB
}

// RunMigrations brings the schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the history database at dsn,
// migrates it and returns ready-to-use repositories.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Repositories{
		Records:  records.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}
