package models

// MirrorDocument is the best-effort copy of a file's metadata written into
// the tenant-owned mirror table. Not authoritative: absence does not imply
// the file is gone and presence does not imply it still exists.
type MirrorDocument struct {
	// ID matches StoredFile.ID.
	ID           string
	Title        string
	URL          string
	Schema       string
	Category     string
	SubCategory  string
	ProjectID    string
	SubProjectID string
	Source       string
}

// MirrorSetupStatement is the exact table definition a tenant must apply
// before the platform can mirror metadata. Reported verbatim when the table
// is absent; the platform never creates it under a restricted key.
const MirrorSetupStatement = `CREATE TABLE documents_mirror (
    id TEXT PRIMARY KEY,
    title TEXT,
    url TEXT,
    created_at TIMESTAMP DEFAULT now(),
    "schema" TEXT,
    category TEXT,
    sub_category TEXT,
    project_id TEXT,
    sub_project_id TEXT,
    source TEXT
);`
