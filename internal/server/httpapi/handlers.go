package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/services"
)

// CredentialAdmin is the handler's view of the credential service.
type CredentialAdmin interface {
	Status(ctx context.Context, tenantID string) (*models.CredentialStatus, error)
	Save(ctx context.Context, tenantID string, in *services.SaveCredentialInput) error
	Delete(ctx context.Context, tenantID string) error
	Test(ctx context.Context, tenantID string) (*models.CredentialCheck, error)
}

// FileSyncer is the handler's view of the sync engine.
type FileSyncer interface {
	Save(ctx context.Context, tenantID string, in *models.FileInput, content []byte) (string, error)
	Load(ctx context.Context, tenantID, fileID string) (*models.FileContent, error)
	Delete(ctx context.Context, tenantID, fileID string) error
}

// Handler holds the route implementations.
type Handler struct {
	creds  CredentialAdmin
	files  FileSyncer
	logger logging.Logger
}

func NewHandler(creds CredentialAdmin, files FileSyncer, logger logging.Logger) *Handler {
	return &Handler{creds: creds, files: files, logger: logger.With("module", "httpapi")}
}

// -------- wire types --------

type saveCredentialRequest struct {
	EndpointURL    string  `json:"endpoint_url"`
	RestrictedKey  *string `json:"restricted_key"`
	ElevatedKey    *string `json:"elevated_key"`
	MirrorDSN      *string `json:"mirror_dsn"`
	Bucket         *string `json:"bucket"`
	PreferElevated *bool   `json:"prefer_elevated"`
	WebhookURL     *string `json:"webhook_url"`
}

type saveFileRequest struct {
	FileID       string `json:"file_id"`
	SubProjectID string `json:"sub_project_id"`
	Name         string `json:"name"`
	FileType     string `json:"file_type"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
	SubCategory  string `json:"sub_category,omitempty"`
	Content      string `json:"content"`
}

type saveFileResponse struct {
	FileID      string `json:"file_id"`
	StoragePath string `json:"storage_path"`
}

type fileResponse struct {
	ID           string    `json:"id"`
	SubProjectID string    `json:"sub_project_id"`
	Name         string    `json:"name"`
	FileType     string    `json:"file_type"`
	StoragePath  string    `json:"storage_path"`
	SizeBytes    int64     `json:"size_bytes"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// -------- handlers --------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) credentialStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.creds.Status(r.Context(), TenantIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) credentialSave(w http.ResponseWriter, r *http.Request) {
	var req saveCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	err := h.creds.Save(r.Context(), TenantIDFromContext(r.Context()), &services.SaveCredentialInput{
		EndpointURL:    req.EndpointURL,
		RestrictedKey:  req.RestrictedKey,
		ElevatedKey:    req.ElevatedKey,
		MirrorDSN:      req.MirrorDSN,
		Bucket:         req.Bucket,
		PreferElevated: req.PreferElevated,
		WebhookURL:     req.WebhookURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) credentialDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Delete(r.Context(), TenantIDFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) credentialTest(w http.ResponseWriter, r *http.Request) {
	check, err := h.creds.Test(r.Context(), TenantIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *Handler) fileSave(w http.ResponseWriter, r *http.Request) {
	var req saveFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.SubProjectID == "" || req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "sub_project_id and name are required")
		return
	}
	// new files get a server-side id; re-saves supply their own
	if req.FileID == "" {
		req.FileID = uuid.NewString()
	}

	path, err := h.files.Save(r.Context(), TenantIDFromContext(r.Context()), &models.FileInput{
		FileID:       req.FileID,
		SubProjectID: req.SubProjectID,
		Name:         req.Name,
		FileType:     req.FileType,
		Description:  req.Description,
		Category:     req.Category,
		SubCategory:  req.SubCategory,
	}, []byte(req.Content))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveFileResponse{FileID: req.FileID, StoragePath: path})
}

func (h *Handler) fileLoad(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	fc, err := h.files.Load(r.Context(), TenantIDFromContext(r.Context()), fileID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{
		ID:           fc.Meta.ID,
		SubProjectID: fc.Meta.SubProjectID,
		Name:         fc.Meta.Name,
		FileType:     fc.Meta.FileType,
		StoragePath:  fc.Meta.StoragePath,
		SizeBytes:    fc.Meta.SizeBytes,
		Content:      string(fc.Content),
		CreatedAt:    fc.Meta.CreatedAt,
		UpdatedAt:    fc.Meta.UpdatedAt,
	})
}

func (h *Handler) fileDelete(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	if err := h.files.Delete(r.Context(), TenantIDFromContext(r.Context()), fileID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -------- error mapping --------

// writeError folds the service error taxonomy into HTTP statuses. Upstream
// tenant-store failures map to 502: the platform is a gateway to storage
// the tenant operates.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrNotConfigured):
		status = http.StatusConflict
	case errors.Is(err, common.ErrPermission), errors.Is(err, common.ErrIO):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		// internal details stay out of responses
		writeJSONError(w, status, "internal error")
		return
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
