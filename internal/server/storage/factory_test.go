package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/credentials"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
	"github.com/cloudpad/tenantvault/internal/vault"
)

// -------- test fakes --------

type fakeCredsRepo struct {
	credentials.Repository
	cred *models.TenantCredential
	err  error
}

func (f *fakeCredsRepo) Get(ctx context.Context, tenantID string) (*models.TenantCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	creds *fakeCredsRepo
}

func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentials.Repository { return m.creds }

// -------- helpers --------

func stubAWSSeams(t *testing.T) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.New(s3.Options{})
	}
}

func newFactoryWithCred(t *testing.T, v *vault.Vault, cred *models.TenantCredential, getErr error) *Factory {
	t.Helper()
	stubAWSSeams(t)
	rm := &fakeRepoManager{creds: &fakeCredsRepo{cred: cred, err: getErr}}
	return NewFactory(nil, rm, v, testLogger())
}

func seal(t *testing.T, v *vault.Vault, plaintext string) *vault.Sealed {
	t.Helper()
	s, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return s
}

func sealedKey(t *testing.T, v *vault.Vault, class models.CredentialClass, value string) models.EncryptedKey {
	t.Helper()
	return models.EncryptedKey{Present: true, Class: class, Sealed: seal(t, v, value)}
}

func testCred(t *testing.T, v *vault.Vault, mutate func(*models.TenantCredential)) *models.TenantCredential {
	t.Helper()
	cred := &models.TenantCredential{
		TenantID: "t1",
		Endpoint: seal(t, v, "https://storage.tenant.example.com"),
		Bucket:   "docs",
	}
	if mutate != nil {
		mutate(cred)
	}
	return cred
}

// -------- tests --------

func TestBuildClient_NoRecord(t *testing.T) {
	v := vault.New("s")
	f := newFactoryWithCred(t, v, nil, common.ErrNotFound)

	_, err := f.BuildClient(context.Background(), "t1", models.ClassElevated)
	if !errors.Is(err, common.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestBuildClient_RecordWithoutKeys(t *testing.T) {
	v := vault.New("s")
	f := newFactoryWithCred(t, v, testCred(t, v, nil), nil)

	_, err := f.BuildClient(context.Background(), "t1", models.ClassElevated)
	if !errors.Is(err, common.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestBuildClient_ExplicitRestrictedNeverUpgrades(t *testing.T) {
	v := vault.New("s")
	cred := testCred(t, v, func(c *models.TenantCredential) {
		c.RestrictedKey = sealedKey(t, v, models.ClassRestricted, "AKRESTRICTED:rsecret")
		c.ElevatedKey = sealedKey(t, v, models.ClassElevated, "AKELEVATED:esecret")
		c.PreferElevated = true
	})
	f := newFactoryWithCred(t, v, cred, nil)

	client, err := f.BuildClient(context.Background(), "t1", models.ClassRestricted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.UsedClass(); got != models.ClassRestricted {
		t.Fatalf("explicit restricted request was upgraded to %q", got)
	}
}

func TestBuildClient_ElevatedUsesElevatedKey(t *testing.T) {
	v := vault.New("s")
	cred := testCred(t, v, func(c *models.TenantCredential) {
		c.RestrictedKey = sealedKey(t, v, models.ClassRestricted, "AKRESTRICTED:rsecret")
		c.ElevatedKey = sealedKey(t, v, models.ClassElevated, "AKELEVATED:esecret")
		c.PreferElevated = true
	})
	f := newFactoryWithCred(t, v, cred, nil)

	client, err := f.BuildClient(context.Background(), "t1", models.ClassElevated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.UsedClass(); got != models.ClassElevated {
		t.Fatalf("UsedClass = %q, want elevated", got)
	}
}

// The silent elevated→restricted fallback is load-bearing: callers that
// truly require elevated semantics must check UsedClass themselves.
func TestBuildClient_ElevatedFallsBackToRestricted(t *testing.T) {
	v := vault.New("s")
	cred := testCred(t, v, func(c *models.TenantCredential) {
		c.RestrictedKey = sealedKey(t, v, models.ClassRestricted, "AKRESTRICTED:rsecret")
	})
	f := newFactoryWithCred(t, v, cred, nil)

	client, err := f.BuildClient(context.Background(), "t1", models.ClassElevated)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.UsedClass(); got != models.ClassRestricted {
		t.Fatalf("UsedClass = %q, want restricted fallback", got)
	}
}

func TestBuildClient_RestrictedRequestedButAbsent(t *testing.T) {
	v := vault.New("s")
	cred := testCred(t, v, func(c *models.TenantCredential) {
		c.ElevatedKey = sealedKey(t, v, models.ClassElevated, "AKELEVATED:esecret")
	})
	f := newFactoryWithCred(t, v, cred, nil)

	_, err := f.BuildClient(context.Background(), "t1", models.ClassRestricted)
	if !errors.Is(err, common.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestBuildClient_DefaultClassFollowsPreference(t *testing.T) {
	v := vault.New("s")

	cred := testCred(t, v, func(c *models.TenantCredential) {
		c.RestrictedKey = sealedKey(t, v, models.ClassRestricted, "AKRESTRICTED:rsecret")
		c.ElevatedKey = sealedKey(t, v, models.ClassElevated, "AKELEVATED:esecret")
		c.PreferElevated = true
	})
	f := newFactoryWithCred(t, v, cred, nil)

	client, err := f.BuildClient(context.Background(), "t1", models.ClassDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.UsedClass(); got != models.ClassElevated {
		t.Fatalf("UsedClass = %q, want elevated via preference flag", got)
	}

	cred.PreferElevated = false
	client, err = f.BuildClient(context.Background(), "t1", models.ClassDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.UsedClass(); got != models.ClassRestricted {
		t.Fatalf("UsedClass = %q, want restricted without preference", got)
	}
}

func TestBuildClient_MalformedKey(t *testing.T) {
	v := vault.New("s")
	cred := testCred(t, v, func(c *models.TenantCredential) {
		c.RestrictedKey = sealedKey(t, v, models.ClassRestricted, "no-colon-here")
	})
	f := newFactoryWithCred(t, v, cred, nil)

	_, err := f.BuildClient(context.Background(), "t1", models.ClassRestricted)
	if !errors.Is(err, common.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestBuildClient_TamperedKeyIsAuthenticationError(t *testing.T) {
	v := vault.New("s")
	cred := testCred(t, v, func(c *models.TenantCredential) {
		key := sealedKey(t, v, models.ClassRestricted, "AKRESTRICTED:rsecret")
		key.Sealed.Tag[0] ^= 0x01
		c.RestrictedKey = key
	})
	f := newFactoryWithCred(t, v, cred, nil)

	_, err := f.BuildClient(context.Background(), "t1", models.ClassRestricted)
	if !errors.Is(err, common.ErrAuthentication) {
		t.Fatalf("want ErrAuthentication, got %v", err)
	}
}
