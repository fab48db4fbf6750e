// Package mirror writes file metadata into the tenant-owned mirror table.
//
// The mirror is a read-side convenience copy only. Every failure in here is
// downgraded to a warning by the sync engine; the platform never creates
// the table itself and instead reports the exact setup statement the tenant
// must run.
package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
	"github.com/cloudpad/tenantvault/internal/vault"
)

// Writer mirrors metadata into the tenant's own relational store.
type Writer interface {
	// Upsert writes one mirror document. Returns ErrMirrorNotConfigured
	// when the tenant has no mirror DSN and ErrMirrorTableMissing when the
	// table has not been provisioned on the tenant side.
	Upsert(ctx context.Context, tenantID string, doc *models.MirrorDocument) error
}

// openMirrorDB is a seam for tests; mirror connections are opened per call
// and closed before returning, no pool is shared across requests.
var openMirrorDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// PostgresWriter resolves the tenant's sealed mirror DSN and upserts over a
// short-lived pgx connection.
type PostgresWriter struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	vault  *vault.Vault
	logger logging.Logger
}

func NewPostgresWriter(db *sql.DB, repos repomanager.RepositoryManager, v *vault.Vault, logger logging.Logger) *PostgresWriter {
	return &PostgresWriter{
		db:     db,
		repos:  repos,
		vault:  v,
		logger: logger.With("module", "mirror"),
	}
}

func (w *PostgresWriter) Upsert(ctx context.Context, tenantID string, doc *models.MirrorDocument) error {
	credRepo := w.repos.Credentials(w.db)

	cred, err := credRepo.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("mirror credential lookup: %w", err)
	}
	if cred.MirrorDSN == nil {
		return common.ErrMirrorNotConfigured
	}

	dsn, err := w.vault.Decrypt(cred.MirrorDSN)
	if err != nil {
		return fmt.Errorf("mirror dsn: %w", err)
	}

	mdb, err := openMirrorDB(dsn)
	if err != nil {
		return fmt.Errorf("mirror connect: %w", err)
	}
	defer mdb.Close()

	query := `
		INSERT INTO documents_mirror (id, title, url, "schema", category, sub_category, project_id, sub_project_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			"schema" = EXCLUDED."schema",
			category = EXCLUDED.category,
			sub_category = EXCLUDED.sub_category,
			project_id = EXCLUDED.project_id,
			sub_project_id = EXCLUDED.sub_project_id,
			source = EXCLUDED.source;
	`
	_, err = mdb.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.URL, doc.Schema, doc.Category,
		doc.SubCategory, doc.ProjectID, doc.SubProjectID, doc.Source,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return common.ErrMirrorTableMissing
		}
		return fmt.Errorf("mirror upsert: %w", err)
	}

	// first successful write proves the tenant has provisioned the table
	if !cred.MirrorProvisioned {
		if err := credRepo.SetMirrorProvisioned(ctx, tenantID, true); err != nil {
			w.logger.Warn(ctx, "could not record mirror provisioning", "tenant_id", tenantID, "error", err.Error())
		}
	}

	return nil
}

// isUndefinedTable matches PostgreSQL error 42P01 (undefined_table).
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
