package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/server/models"
)

// PostgresRepository implements read-only project lookups over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetSubProject(ctx context.Context, id string) (*models.SubProject, error) {
	query := `SELECT id, project_id, name FROM sub_projects WHERE id = $1`

	result := &models.SubProject{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&result.ID, &result.ProjectID, &result.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT id, name FROM projects WHERE id = $1`

	result := &models.Project{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&result.ID, &result.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
