package models

import "time"

// WebhookEvent is the kind of file-change notification.
type WebhookEvent string

const (
	EventFileCreated WebhookEvent = "file.created"
	EventFileUpdated WebhookEvent = "file.updated"
)

// WebhookFile is the file block of the outbound payload.
type WebhookFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Content      string `json:"content"`
	FileType     string `json:"file_type"`
	SizeBytes    int64  `json:"size_bytes"`
	ProjectID    string `json:"project_id,omitempty"`
	SubProjectID string `json:"sub_project_id,omitempty"`
	Category     string `json:"category,omitempty"`
	SubCategory  string `json:"sub_category,omitempty"`
}

// WebhookRef names a project or sub-project in the payload.
type WebhookRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WebhookPayload is the JSON body POSTed to the tenant-configured URL. It is
// computed once by the sync engine and handed to the notifier immutable.
type WebhookPayload struct {
	Event      WebhookEvent `json:"event"`
	Timestamp  time.Time    `json:"timestamp"`
	UserID     string       `json:"user_id"`
	File       WebhookFile  `json:"file"`
	Project    *WebhookRef  `json:"project,omitempty"`
	SubProject *WebhookRef  `json:"sub_project,omitempty"`
}
