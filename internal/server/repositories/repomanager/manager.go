package repomanager

import (
	"context"
	"database/sql"

	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/server/repositories/credentials"
	"github.com/cloudpad/tenantvault/internal/server/repositories/files"
	"github.com/cloudpad/tenantvault/internal/server/repositories/projects"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// them against a plain connection or inside a transaction interchangeably.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Credentials(db dbx.DBTX) credentials.Repository
	Files(db dbx.DBTX) files.Repository
	Projects(db dbx.DBTX) projects.Repository
}
