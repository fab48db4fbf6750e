package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
	"github.com/cloudpad/tenantvault/internal/vault"
)

// SaveCredentialInput is a partial update of a tenant's credential record.
// A nil pointer leaves the stored value unchanged; a pointer to the empty
// string clears it. EndpointURL is plain because an endpoint can be
// replaced but never cleared while the record exists.
type SaveCredentialInput struct {
	EndpointURL    string
	RestrictedKey  *string
	ElevatedKey    *string
	MirrorDSN      *string
	Bucket         *string
	PreferElevated *bool
	WebhookURL     *string
}

// CredentialService is the administrative surface over tenant credentials.
// All writes run inside one transaction so a partial save merged against a
// stale read cannot null out a key a concurrent save just wrote.
type CredentialService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	vault   *vault.Vault
	storage ClientBuilder
	logger  logging.Logger
}

func NewCredentialService(db *sql.DB, repos repomanager.RepositoryManager, v *vault.Vault, builder ClientBuilder, logger logging.Logger) *CredentialService {
	return &CredentialService{
		db:      db,
		repos:   repos,
		vault:   v,
		storage: builder,
		logger:  logger.With("module", "credentials"),
	}
}

// Status reports which parts of the record exist. Key values, the endpoint
// and the mirror DSN never leave the service in any form.
func (s *CredentialService) Status(ctx context.Context, tenantID string) (*models.CredentialStatus, error) {
	cred, err := s.repos.Credentials(s.db).Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return &models.CredentialStatus{Configured: false}, nil
		}
		return nil, err
	}

	return &models.CredentialStatus{
		Configured:        true,
		Bucket:            cred.BucketOrDefault(),
		HasRestrictedKey:  cred.RestrictedKey.Present,
		HasElevatedKey:    cred.ElevatedKey.Present,
		PreferElevated:    cred.PreferElevated,
		MirrorConfigured:  cred.MirrorDSN != nil,
		MirrorProvisioned: cred.MirrorProvisioned,
		WebhookConfigured: cred.WebhookURL != "",
		LastVerifiedAt:    cred.LastVerifiedAt,
	}, nil
}

// Save merges the partial input over the stored record and writes the
// result back, sealing every secret on the way in.
func (s *CredentialService) Save(ctx context.Context, tenantID string, in *SaveCredentialInput) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Credentials(tx)

		cred, err := repo.Get(ctx, tenantID)
		if errors.Is(err, common.ErrNotFound) {
			cred = &models.TenantCredential{TenantID: tenantID}
		} else if err != nil {
			return err
		}

		if err := s.merge(cred, in); err != nil {
			return err
		}

		if cred.Endpoint == nil {
			return fmt.Errorf("%w: endpoint URL is required", common.ErrInvalidInput)
		}
		if !cred.Usable() {
			return fmt.Errorf("%w: at least one storage key is required", common.ErrInvalidInput)
		}

		return repo.Upsert(ctx, cred)
	})
}

func (s *CredentialService) merge(cred *models.TenantCredential, in *SaveCredentialInput) error {
	if in.EndpointURL != "" {
		sealed, err := s.vault.Encrypt(in.EndpointURL)
		if err != nil {
			return err
		}
		cred.Endpoint = sealed
	}

	if in.RestrictedKey != nil {
		key, err := s.sealKey(models.ClassRestricted, *in.RestrictedKey)
		if err != nil {
			return err
		}
		cred.RestrictedKey = key
	}
	if in.ElevatedKey != nil {
		key, err := s.sealKey(models.ClassElevated, *in.ElevatedKey)
		if err != nil {
			return err
		}
		cred.ElevatedKey = key
	}

	if in.MirrorDSN != nil {
		if *in.MirrorDSN == "" {
			cred.MirrorDSN = nil
			cred.MirrorProvisioned = false
		} else {
			sealed, err := s.vault.Encrypt(*in.MirrorDSN)
			if err != nil {
				return err
			}
			cred.MirrorDSN = sealed
			cred.MirrorProvisioned = false
		}
	}

	if in.Bucket != nil {
		cred.Bucket = *in.Bucket
	}
	if in.PreferElevated != nil {
		cred.PreferElevated = *in.PreferElevated
	}
	if in.WebhookURL != nil {
		cred.WebhookURL = *in.WebhookURL
	}
	return nil
}

// sealKey validates the ACCESS_KEY_ID:SECRET wire form before sealing, so a
// malformed key is rejected at save time instead of surfacing later as a
// failed client build. An empty value clears the key.
func (s *CredentialService) sealKey(class models.CredentialClass, value string) (models.EncryptedKey, error) {
	if value == "" {
		return models.EncryptedKey{Class: class}, nil
	}
	sealed, err := s.vault.Encrypt(value)
	if err != nil {
		return models.EncryptedKey{}, err
	}
	return models.EncryptedKey{Present: true, Class: class, Sealed: sealed}, nil
}

// Delete removes the tenant's record. Idempotent.
func (s *CredentialService) Delete(ctx context.Context, tenantID string) error {
	return s.repos.Credentials(s.db).Delete(ctx, tenantID)
}

// Test builds a client under the tenant's default class policy and pings
// the store. Configuration and connectivity problems are reported in the
// check body, not as errors; the caller always gets a result to render.
func (s *CredentialService) Test(ctx context.Context, tenantID string) (*models.CredentialCheck, error) {
	client, err := s.storage.BuildClient(ctx, tenantID, models.ClassDefault)
	if err != nil {
		return &models.CredentialCheck{OK: false, Error: err.Error()}, nil
	}

	if err := client.Ping(ctx); err != nil {
		return &models.CredentialCheck{OK: false, UsedClass: client.UsedClass(), Error: err.Error()}, nil
	}

	if err := s.repos.Credentials(s.db).MarkVerified(ctx, tenantID, time.Now().UTC()); err != nil {
		s.logger.Warn(ctx, "could not stamp credential verification", "tenant_id", tenantID, "error", err.Error())
	}

	return &models.CredentialCheck{OK: true, UsedClass: client.UsedClass()}, nil
}
