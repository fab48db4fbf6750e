package models

// Project is the read-side view of a tenant project, used to derive mirror
// linkage and webhook payload blocks. Project CRUD itself lives with the
// administrative collaborator.
type Project struct {
	ID   string
	Name string
}

// SubProject is the container files belong to.
type SubProject struct {
	ID        string
	ProjectID string
	Name      string
}
