package projects

import (
	"context"

	"github.com/cloudpad/tenantvault/internal/server/models"
)

// Repository is the read-side view of project structure, used for mirror
// linkage and webhook payload blocks.
type Repository interface {
	// GetSubProject returns the sub-project, or common.ErrNotFound.
	GetSubProject(ctx context.Context, id string) (*models.SubProject, error)

	// GetProject returns the project, or common.ErrNotFound.
	GetProject(ctx context.Context, id string) (*models.Project, error)
}
