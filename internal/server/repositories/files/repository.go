package files

import (
	"context"

	"github.com/cloudpad/tenantvault/internal/server/models"
)

// Repository persists the authoritative StoredFile records.
type Repository interface {
	// GetByID returns the metadata row, or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.StoredFile, error)

	// Upsert inserts the row or updates it on conflict by file id.
	Upsert(ctx context.Context, file *models.StoredFile) error

	// Delete removes the row. Returns false when no row existed; that is
	// not an error, deletes are idempotent.
	Delete(ctx context.Context, id string) (bool, error)
}
