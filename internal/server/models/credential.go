// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/cloudpad/tenantvault/internal/vault"
)

// CredentialClass identifies which of a tenant's storage keys an operation
// wants to use.
type CredentialClass string

const (
	// ClassDefault lets the tenant's prefer-elevated flag decide.
	ClassDefault CredentialClass = ""
	// ClassElevated is the full-access key, bypassing the tenant's own
	// access policies.
	ClassElevated CredentialClass = "elevated"
	// ClassRestricted is the key limited by the tenant's access policies.
	// An explicit restricted request is never upgraded.
	ClassRestricted CredentialClass = "restricted"
)

// EncryptedKey carries one of the tenant's storage keys together with
// explicit presence and class metadata, so callers branch on Present rather
// than on a nil they may forget to check.
type EncryptedKey struct {
	Present bool
	Class   CredentialClass
	Sealed  *vault.Sealed
}

// DefaultBucket is used when a tenant does not name a container.
const DefaultBucket = "tenant-files"

// TenantCredential is the per-tenant external storage configuration. All
// secret fields are sealed by the vault; the sync engine reads records, the
// administrative API writes them.
type TenantCredential struct {
	TenantID string

	// Endpoint is the tenant's storage endpoint URL, sealed.
	Endpoint *vault.Sealed
	// RestrictedKey and ElevatedKey hold the two credential classes.
	// A record is usable when at least one is present.
	RestrictedKey EncryptedKey
	ElevatedKey   EncryptedKey
	// MirrorDSN is the optional sealed DSN of the tenant-owned relational
	// store holding the mirror table.
	MirrorDSN *vault.Sealed

	Bucket            string
	PreferElevated    bool
	MirrorProvisioned bool
	WebhookURL        string

	LastVerifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usable reports whether the record can produce a storage client at all.
func (c *TenantCredential) Usable() bool {
	return c.RestrictedKey.Present || c.ElevatedKey.Present
}

// BucketOrDefault returns the configured container name, falling back to
// DefaultBucket.
func (c *TenantCredential) BucketOrDefault() string {
	if c.Bucket == "" {
		return DefaultBucket
	}
	return c.Bucket
}

// CredentialStatus is the administrative status view. It reports which key
// classes exist but never the key values.
type CredentialStatus struct {
	Configured        bool       `json:"configured"`
	Bucket            string     `json:"bucket,omitempty"`
	HasRestrictedKey  bool       `json:"has_restricted_key"`
	HasElevatedKey    bool       `json:"has_elevated_key"`
	PreferElevated    bool       `json:"prefer_elevated"`
	MirrorConfigured  bool       `json:"mirror_configured"`
	MirrorProvisioned bool       `json:"mirror_provisioned"`
	WebhookConfigured bool       `json:"webhook_configured"`
	LastVerifiedAt    *time.Time `json:"last_verified_at,omitempty"`
}

// CredentialCheck is the result of a connectivity test.
type CredentialCheck struct {
	OK        bool            `json:"ok"`
	UsedClass CredentialClass `json:"used_class,omitempty"`
	Error     string          `json:"error,omitempty"`
}
