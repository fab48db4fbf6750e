package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/vault"
)

// PostgresRepository implements credential storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID string) (*models.TenantCredential, error) {
	query := `
		SELECT tenant_id,
			endpoint_ct, endpoint_nonce, endpoint_tag,
			restricted_ct, restricted_nonce, restricted_tag,
			elevated_ct, elevated_nonce, elevated_tag,
			mirror_dsn_ct, mirror_dsn_nonce, mirror_dsn_tag,
			bucket, prefer_elevated, mirror_provisioned, webhook_url,
			last_verified_at, created_at, updated_at
		FROM tenant_credentials
		WHERE tenant_id = $1
	`

	var (
		cred                 models.TenantCredential
		epCT, epNonce, epTag []byte
		rCT, rNonce, rTag    []byte
		eCT, eNonce, eTag    []byte
		mCT, mNonce, mTag    []byte
		lastVerified         sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&cred.TenantID,
		&epCT, &epNonce, &epTag,
		&rCT, &rNonce, &rTag,
		&eCT, &eNonce, &eTag,
		&mCT, &mNonce, &mTag,
		&cred.Bucket, &cred.PreferElevated, &cred.MirrorProvisioned, &cred.WebhookURL,
		&lastVerified, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	cred.Endpoint = sealedFromColumns(epCT, epNonce, epTag)
	cred.RestrictedKey = keyFromColumns(models.ClassRestricted, rCT, rNonce, rTag)
	cred.ElevatedKey = keyFromColumns(models.ClassElevated, eCT, eNonce, eTag)
	cred.MirrorDSN = sealedFromColumns(mCT, mNonce, mTag)
	if lastVerified.Valid {
		t := lastVerified.Time
		cred.LastVerifiedAt = &t
	}

	return &cred, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, cred *models.TenantCredential) error {
	query := `
		INSERT INTO tenant_credentials (
			tenant_id,
			endpoint_ct, endpoint_nonce, endpoint_tag,
			restricted_ct, restricted_nonce, restricted_tag,
			elevated_ct, elevated_nonce, elevated_tag,
			mirror_dsn_ct, mirror_dsn_nonce, mirror_dsn_tag,
			bucket, prefer_elevated, mirror_provisioned, webhook_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tenant_id)
		DO UPDATE SET
			endpoint_ct = EXCLUDED.endpoint_ct,
			endpoint_nonce = EXCLUDED.endpoint_nonce,
			endpoint_tag = EXCLUDED.endpoint_tag,
			restricted_ct = EXCLUDED.restricted_ct,
			restricted_nonce = EXCLUDED.restricted_nonce,
			restricted_tag = EXCLUDED.restricted_tag,
			elevated_ct = EXCLUDED.elevated_ct,
			elevated_nonce = EXCLUDED.elevated_nonce,
			elevated_tag = EXCLUDED.elevated_tag,
			mirror_dsn_ct = EXCLUDED.mirror_dsn_ct,
			mirror_dsn_nonce = EXCLUDED.mirror_dsn_nonce,
			mirror_dsn_tag = EXCLUDED.mirror_dsn_tag,
			bucket = EXCLUDED.bucket,
			prefer_elevated = EXCLUDED.prefer_elevated,
			mirror_provisioned = EXCLUDED.mirror_provisioned,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = now();
	`

	epCT, epNonce, epTag := columnsFromSealed(cred.Endpoint)
	rCT, rNonce, rTag := columnsFromSealed(cred.RestrictedKey.Sealed)
	eCT, eNonce, eTag := columnsFromSealed(cred.ElevatedKey.Sealed)
	mCT, mNonce, mTag := columnsFromSealed(cred.MirrorDSN)

	_, err := r.db.ExecContext(ctx, query,
		cred.TenantID,
		epCT, epNonce, epTag,
		rCT, rNonce, rTag,
		eCT, eNonce, eTag,
		mCT, mNonce, mTag,
		cred.Bucket, cred.PreferElevated, cred.MirrorProvisioned, cred.WebhookURL,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, tenantID string) error {
	query := `DELETE FROM tenant_credentials WHERE tenant_id = $1`
	if _, err := r.db.ExecContext(ctx, query, tenantID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, tenantID string, at time.Time) error {
	query := `UPDATE tenant_credentials SET last_verified_at = $2, updated_at = now() WHERE tenant_id = $1`
	result, err := r.db.ExecContext(ctx, query, tenantID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetMirrorProvisioned(ctx context.Context, tenantID string, provisioned bool) error {
	query := `UPDATE tenant_credentials SET mirror_provisioned = $2, updated_at = now() WHERE tenant_id = $1`
	if _, err := r.db.ExecContext(ctx, query, tenantID, provisioned); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// sealedFromColumns reassembles a triple; all-NULL columns mean no value.
func sealedFromColumns(ct, nonce, tag []byte) *vault.Sealed {
	if ct == nil && nonce == nil && tag == nil {
		return nil
	}
	return &vault.Sealed{Ciphertext: ct, Nonce: nonce, Tag: tag}
}

func keyFromColumns(class models.CredentialClass, ct, nonce, tag []byte) models.EncryptedKey {
	s := sealedFromColumns(ct, nonce, tag)
	return models.EncryptedKey{Present: s != nil, Class: class, Sealed: s}
}

func columnsFromSealed(s *vault.Sealed) (ct, nonce, tag []byte) {
	if s == nil {
		return nil, nil, nil
	}
	return s.Ciphertext, s.Nonce, s.Tag
}
