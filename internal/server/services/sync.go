// Package services holds the server-side application services: the file
// sync engine, the credential administration service and the webhook
// notifier. Services own orchestration and transactions; repositories own
// SQL; the storage package owns the tenant blob store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/mirror"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
	"github.com/cloudpad/tenantvault/internal/server/storage"
)

// ClientBuilder is the sync engine's view of the storage factory.
type ClientBuilder interface {
	BuildClient(ctx context.Context, tenantID string, desired models.CredentialClass) (storage.Blob, error)
}

// SyncEngine keeps three destinations in step on every file save: the
// tenant blob store and the platform metadata row must both succeed, while
// the tenant mirror table and the webhook are best-effort and can never
// fail the operation.
type SyncEngine struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	storage  ClientBuilder
	mirror   mirror.Writer
	notifier Notifier
	logger   logging.Logger

	// dispatch runs the detached webhook delivery; tests replace it to
	// observe completion.
	dispatch func(fn func())
}

func NewSyncEngine(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	builder ClientBuilder,
	mirrorWriter mirror.Writer,
	notifier Notifier,
	logger logging.Logger,
) *SyncEngine {
	return &SyncEngine{
		db:       db,
		repos:    repos,
		storage:  builder,
		mirror:   mirrorWriter,
		notifier: notifier,
		logger:   logger.With("module", "sync"),
		dispatch: func(fn func()) { go fn() },
	}
}

// StoragePath computes the deterministic object key for a file. Re-saving
// the same file always lands on the same key, which is what makes saves
// overwrites instead of duplicates.
func StoragePath(tenantID, subProjectID, fileID, name string) string {
	return fmt.Sprintf("tenants/%s/%s/%s/%s", tenantID, subProjectID, fileID, sanitizeName(name))
}

// sanitizeName keeps object keys flat and portable across S3-compatible
// vendors. Anything outside a conservative character set becomes '_'.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Save runs the two-phase sync protocol and returns the storage path.
//
// Must-succeed phase: build the tenant client, upload the blob, then write
// the authoritative metadata row. Any failure here fails the save; a blob
// uploaded before a metadata failure is left orphaned and is invisible to
// the product, metadata is the source of truth.
//
// Best-effort phase: mirror the metadata into the tenant's own table and
// deliver the webhook. Failures here are logged and never returned.
func (e *SyncEngine) Save(ctx context.Context, tenantID string, in *models.FileInput, content []byte) (path string, err error) {
	defer func() { syncOperations.WithLabelValues("save", outcomeLabel(err)).Inc() }()

	log := e.logger.With("tenant_id", tenantID, "file_id", in.FileID)

	client, err := e.storage.BuildClient(ctx, tenantID, models.ClassElevated)
	if err != nil {
		return "", err
	}
	client.EnsureBucket(ctx)

	path = StoragePath(tenantID, in.SubProjectID, in.FileID, in.Name)

	if err = client.Put(ctx, path, content); err != nil {
		return "", err
	}

	fileRepo := e.repos.Files(e.db)

	event := models.EventFileCreated
	if _, getErr := fileRepo.GetByID(ctx, in.FileID); getErr == nil {
		event = models.EventFileUpdated
	} else if !errors.Is(getErr, common.ErrNotFound) {
		err = getErr
		return "", err
	}

	file := &models.StoredFile{
		ID:           in.FileID,
		SubProjectID: in.SubProjectID,
		Name:         in.Name,
		FileType:     in.FileType,
		StoragePath:  path,
		SizeBytes:    int64(len(content)),
	}
	if err = fileRepo.Upsert(ctx, file); err != nil {
		log.Error(ctx, "metadata write failed after blob upload, blob left orphaned",
			"storage_path", path, "error", err.Error())
		return "", err
	}

	project, subProject := e.resolveLinkage(ctx, in.SubProjectID)
	e.mirrorFile(ctx, tenantID, in, path, project)

	payload := buildPayload(tenantID, event, in, content, file, project, subProject)
	e.dispatch(func() {
		// the request context ends with the response; delivery does not
		dctx := context.Background()
		if nerr := e.notifier.Notify(dctx, tenantID, payload); nerr != nil {
			log.Warn(dctx, "webhook delivery failed", "event", string(event), "error", nerr.Error())
		}
	})

	log.Info(ctx, "file synced", "event", string(event), "storage_path", path, "size_bytes", file.SizeBytes)
	return path, nil
}

// Load returns blob content plus the authoritative metadata row. A missing
// metadata row is ErrNotFound; a missing blob behind an existing row is an
// inconsistency and reported as ErrIO, not as not-found.
func (e *SyncEngine) Load(ctx context.Context, tenantID, fileID string) (fc *models.FileContent, err error) {
	defer func() { syncOperations.WithLabelValues("load", outcomeLabel(err)).Inc() }()

	file, err := e.repos.Files(e.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	client, err := e.storage.BuildClient(ctx, tenantID, models.ClassDefault)
	if err != nil {
		return nil, err
	}

	content, err := client.Get(ctx, file.StoragePath)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			err = fmt.Errorf("%w: metadata exists but blob is missing at %s", common.ErrIO, file.StoragePath)
			return nil, err
		}
		return nil, err
	}

	return &models.FileContent{Content: content, Meta: file}, nil
}

// Delete removes the blob and then the metadata row. Deleting a file that
// does not exist is a no-op; blob removal failures are logged and do not
// block the metadata delete, since an orphaned blob is invisible anyway.
func (e *SyncEngine) Delete(ctx context.Context, tenantID, fileID string) (err error) {
	defer func() { syncOperations.WithLabelValues("delete", outcomeLabel(err)).Inc() }()

	log := e.logger.With("tenant_id", tenantID, "file_id", fileID)

	fileRepo := e.repos.Files(e.db)
	file, err := fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			err = nil
			return nil
		}
		return err
	}

	client, berr := e.storage.BuildClient(ctx, tenantID, models.ClassElevated)
	if berr != nil {
		log.Warn(ctx, "blob removal skipped, no usable storage client", "error", berr.Error())
	} else if derr := client.Delete(ctx, file.StoragePath); derr != nil {
		log.Warn(ctx, "blob removal failed, orphaned blob remains",
			"storage_path", file.StoragePath, "error", derr.Error())
	}

	if _, err = fileRepo.Delete(ctx, fileID); err != nil {
		return err
	}

	log.Info(ctx, "file deleted", "storage_path", file.StoragePath)
	return nil
}

// resolveLinkage looks up the sub-project and project for payload and
// mirror enrichment. Lookups are best-effort; a miss just leaves the
// optional blocks empty.
func (e *SyncEngine) resolveLinkage(ctx context.Context, subProjectID string) (*models.Project, *models.SubProject) {
	repo := e.repos.Projects(e.db)

	subProject, err := repo.GetSubProject(ctx, subProjectID)
	if err != nil {
		e.logger.Warn(ctx, "sub-project lookup failed", "sub_project_id", subProjectID, "error", err.Error())
		return nil, nil
	}

	project, err := repo.GetProject(ctx, subProject.ProjectID)
	if err != nil {
		e.logger.Warn(ctx, "project lookup failed", "project_id", subProject.ProjectID, "error", err.Error())
		return nil, subProject
	}

	return project, subProject
}

func (e *SyncEngine) mirrorFile(ctx context.Context, tenantID string, in *models.FileInput, path string, project *models.Project) {
	doc := &models.MirrorDocument{
		ID:           in.FileID,
		Title:        in.Name,
		URL:          path,
		Schema:       in.FileType,
		Category:     in.Category,
		SubCategory:  in.SubCategory,
		SubProjectID: in.SubProjectID,
		Source:       "platform",
	}
	if project != nil {
		doc.ProjectID = project.ID
	}

	err := e.mirror.Upsert(ctx, tenantID, doc)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrMirrorNotConfigured):
		e.logger.Debug(ctx, "mirror skipped, tenant has no mirror store", "tenant_id", tenantID)
	case errors.Is(err, common.ErrMirrorTableMissing):
		e.logger.Warn(ctx, "mirror table missing, tenant must run setup",
			"tenant_id", tenantID, "setup_statement", models.MirrorSetupStatement)
	default:
		e.logger.Warn(ctx, "mirror write failed", "tenant_id", tenantID, "error", err.Error())
	}
}

func buildPayload(
	tenantID string,
	event models.WebhookEvent,
	in *models.FileInput,
	content []byte,
	file *models.StoredFile,
	project *models.Project,
	subProject *models.SubProject,
) *models.WebhookPayload {
	payload := &models.WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		UserID:    tenantID,
		File: models.WebhookFile{
			ID:           file.ID,
			Name:         file.Name,
			Description:  in.Description,
			Content:      string(content),
			FileType:     file.FileType,
			SizeBytes:    file.SizeBytes,
			SubProjectID: file.SubProjectID,
			Category:     in.Category,
			SubCategory:  in.SubCategory,
		},
	}
	if project != nil {
		payload.File.ProjectID = project.ID
		payload.Project = &models.WebhookRef{ID: project.ID, Name: project.Name}
	}
	if subProject != nil {
		payload.SubProject = &models.WebhookRef{ID: subProject.ID, Name: subProject.Name}
	}
	return payload
}
