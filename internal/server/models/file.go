package models

import "time"

// StoredFile is the authoritative metadata record for one file. Its
// non-existence means the file does not exist for the product, regardless
// of whether an orphaned blob remains in the tenant's store.
type StoredFile struct {
	// ID is the file identifier, shared with the mirror document.
	ID string
	// SubProjectID links the file to its containing sub-project.
	SubProjectID string

	Name     string
	FileType string

	// StoragePath is the deterministic object key inside the tenant bucket.
	StoragePath string
	SizeBytes   int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileInput describes a save request from the product routes.
type FileInput struct {
	FileID       string
	SubProjectID string
	Name         string
	FileType     string
	Description  string
	Category     string
	SubCategory  string
}

// FileContent is the result of a load: blob content plus the authoritative
// metadata row.
type FileContent struct {
	Content []byte
	Meta    *StoredFile
}
