package credentials

import (
	"context"
	"time"

	"github.com/cloudpad/tenantvault/internal/server/models"
)

// Repository persists encrypted TenantCredential records in the platform
// store. Plaintext secrets never cross this boundary in either direction.
type Repository interface {
	// Get returns the credential record for a tenant, or common.ErrNotFound.
	Get(ctx context.Context, tenantID string) (*models.TenantCredential, error)

	// Upsert writes the full record, inserting or replacing by tenant id.
	// Partial-update merging happens in the service layer inside one
	// transaction, so a concurrent save cannot null out an unsupplied key.
	Upsert(ctx context.Context, cred *models.TenantCredential) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, tenantID string) error

	// MarkVerified stamps the last successful connectivity check.
	MarkVerified(ctx context.Context, tenantID string, at time.Time) error

	// SetMirrorProvisioned records whether the tenant's mirror table has
	// been observed to exist.
	SetMirrorProvisioned(ctx context.Context, tenantID string, provisioned bool) error
}
