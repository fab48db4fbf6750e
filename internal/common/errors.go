// Package common defines shared sentinel errors used across the platform.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Request validation errors.
	ErrInvalidInput = errors.New("invalid input")

	// Credential errors.
	ErrNotConfigured  = errors.New("storage credentials not configured")
	ErrAuthentication = errors.New("credential authentication failed")

	// Blob storage errors.
	ErrPermission = errors.New("permission denied")
	ErrIO         = errors.New("storage i/o error")

	// Webhook delivery errors, never surfaced past the sync engine.
	ErrWebhookTransient = errors.New("webhook transient failure")
	ErrWebhookTerminal  = errors.New("webhook terminal failure")

	// Mirror errors, always downgraded to warnings by the sync engine.
	ErrMirrorNotConfigured = errors.New("mirror store not configured")
	ErrMirrorTableMissing  = errors.New("mirror table missing, setup required")
)
