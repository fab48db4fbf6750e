package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/server/models"
)

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.StoredFile, error) {
	query := `
		SELECT id, sub_project_id, name, file_type, storage_path, size_bytes, created_at, updated_at
		FROM files
		WHERE id = $1
	`

	result := &models.StoredFile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&result.ID, &result.SubProjectID, &result.Name, &result.FileType,
		&result.StoragePath, &result.SizeBytes, &result.CreatedAt, &result.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Upsert writes the row by file id. Last writer wins on concurrent saves.
func (r *PostgresRepository) Upsert(ctx context.Context, file *models.StoredFile) error {
	query := `
		INSERT INTO files (id, sub_project_id, name, file_type, storage_path, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			sub_project_id = EXCLUDED.sub_project_id,
			name = EXCLUDED.name,
			file_type = EXCLUDED.file_type,
			storage_path = EXCLUDED.storage_path,
			size_bytes = EXCLUDED.size_bytes,
			updated_at = now();
	`
	res, err := r.db.ExecContext(ctx, query,
		file.ID, file.SubProjectID, file.Name, file.FileType, file.StoragePath, file.SizeBytes)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}
