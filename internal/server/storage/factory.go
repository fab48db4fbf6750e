package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
	"github.com/cloudpad/tenantvault/internal/vault"
)

// signingRegion is sent to S3-compatible endpoints that ignore regions.
const signingRegion = "us-east-1"

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Factory builds storage clients bound to a tenant's own endpoint, bucket
// and credential class. Decrypted key material lives only inside BuildClient.
type Factory struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	vault  *vault.Vault
	logger logging.Logger
}

func NewFactory(db *sql.DB, repos repomanager.RepositoryManager, v *vault.Vault, logger logging.Logger) *Factory {
	return &Factory{
		db:     db,
		repos:  repos,
		vault:  v,
		logger: logger.With("module", "storage_factory"),
	}
}

// BuildClient selects and decrypts the tenant key for the desired class and
// constructs a client against the tenant endpoint.
//
// Selection policy: an explicit ClassRestricted request is always honored
// and never upgraded. ClassElevated — or ClassDefault when the tenant's
// prefer-elevated flag is set — tries the elevated key first and falls back
// to the restricted key when the elevated one is absent. The fallback is
// silent by design and only logged; callers whose semantics truly require
// elevated access must check UsedClass.
func (f *Factory) BuildClient(ctx context.Context, tenantID string, desired models.CredentialClass) (Blob, error) {
	cred, err := f.repos.Credentials(f.db).Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: no credential record for tenant", common.ErrNotConfigured)
		}
		return nil, err
	}
	if !cred.Usable() {
		return nil, fmt.Errorf("%w: credential record has no keys", common.ErrNotConfigured)
	}

	key, err := f.selectKey(ctx, cred, desired)
	if err != nil {
		return nil, err
	}

	endpoint, err := f.vault.Decrypt(cred.Endpoint)
	if err != nil {
		return nil, err
	}
	secret, err := f.vault.Decrypt(key.Sealed)
	if err != nil {
		return nil, err
	}

	accessKeyID, secretAccessKey, found := strings.Cut(secret, ":")
	if !found || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("%w: %s key is not in ACCESS_KEY_ID:SECRET form", common.ErrNotConfigured, key.Class)
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(signingRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		api:    client,
		bucket: cred.BucketOrDefault(),
		class:  key.Class,
		logger: f.logger.With("tenant_id", tenantID),
	}, nil
}

func (f *Factory) selectKey(ctx context.Context, cred *models.TenantCredential, desired models.CredentialClass) (models.EncryptedKey, error) {
	if desired == models.ClassRestricted {
		if !cred.RestrictedKey.Present {
			return models.EncryptedKey{}, fmt.Errorf("%w: restricted key requested but not configured", common.ErrNotConfigured)
		}
		return cred.RestrictedKey, nil
	}

	wantElevated := desired == models.ClassElevated || cred.PreferElevated
	if wantElevated {
		if cred.ElevatedKey.Present {
			return cred.ElevatedKey, nil
		}
		if cred.RestrictedKey.Present {
			f.logger.Warn(ctx, "elevated key requested but absent, falling back to restricted key",
				"tenant_id", cred.TenantID)
			return cred.RestrictedKey, nil
		}
		return models.EncryptedKey{}, fmt.Errorf("%w: no elevated or restricted key configured", common.ErrNotConfigured)
	}

	if cred.RestrictedKey.Present {
		return cred.RestrictedKey, nil
	}
	return cred.ElevatedKey, nil
}
