// Package repomanager constructs repositories over a shared database handle
// and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/okarpov/lingohist/internal/dbx"
	"github.com/okarpov/lingohist/internal/server/repositories/history"
	"github.com/okarpov/lingohist/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	History(db dbx.DBTX) history.Repository
}
