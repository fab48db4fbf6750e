package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/dbx"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/config"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/credentials"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
)

type fakeCredsRepo struct {
	credentials.Repository
	cred *models.TenantCredential
	err  error

	upserted       *models.TenantCredential
	deleted        bool
	verifiedAt     *time.Time
	provisionedSet bool
}

func (f *fakeCredsRepo) Get(ctx context.Context, tenantID string) (*models.TenantCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

func (f *fakeCredsRepo) Upsert(ctx context.Context, cred *models.TenantCredential) error {
	f.upserted = cred
	return nil
}

func (f *fakeCredsRepo) Delete(ctx context.Context, tenantID string) error {
	f.deleted = true
	return nil
}

func (f *fakeCredsRepo) MarkVerified(ctx context.Context, tenantID string, at time.Time) error {
	f.verifiedAt = &at
	return nil
}

func (f *fakeCredsRepo) SetMirrorProvisioned(ctx context.Context, tenantID string, provisioned bool) error {
	f.provisionedSet = provisioned
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	creds *fakeCredsRepo
	files *fakeFilesRepo
	projs *fakeProjectsRepo
}

func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentials.Repository { return m.creds }

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestNotifier(rm *fakeRepoManager) *WebhookNotifier {
	cfg := &config.Config{
		WebhookTimeout:     time.Second,
		WebhookBackoffBase: time.Millisecond,
	}
	return NewWebhookNotifier(nil, rm, cfg, testLogger())
}

func webhookCred(url string) *models.TenantCredential {
	return &models.TenantCredential{TenantID: "t1", WebhookURL: url}
}

func testPayload() *models.WebhookPayload {
	return &models.WebhookPayload{
		Event:     models.EventFileCreated,
		Timestamp: time.Now().UTC(),
		UserID:    "t1",
		File: models.WebhookFile{
			ID:        "f1",
			Name:      "notes.md",
			Content:   "# notes",
			FileType:  "markdown",
			SizeBytes: 7,
		},
	}
}

func TestNotify_DeliversPayload(t *testing.T) {
	var calls atomic.Int32
	var gotEvent, gotAttempt, gotType, gotDelivery string
	var gotBody models.WebhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotAttempt = r.Header.Get("X-Webhook-Attempt")
		gotType = r.Header.Get("Content-Type")
		gotDelivery = r.Header.Get("X-Webhook-Delivery")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{cred: webhookCred(srv.URL)}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "file.created", gotEvent)
	assert.Equal(t, "1", gotAttempt)
	assert.Equal(t, "application/json", gotType)
	_, uerr := uuid.Parse(gotDelivery)
	assert.NoError(t, uerr, "delivery id must be a UUID, got %q", gotDelivery)
	assert.Equal(t, "f1", gotBody.File.ID)
	assert.Equal(t, "# notes", gotBody.File.Content)
}

func TestNotify_NoWebhookURLIsNoop(t *testing.T) {
	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{cred: webhookCred("")}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.NoError(t, err)
}

func TestNotify_NoCredentialRecordIsNoop(t *testing.T) {
	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{err: common.ErrNotFound}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.NoError(t, err)
}

func TestNotify_TerminalStatusStopsAfterFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{cred: webhookCred(srv.URL)}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrWebhookTerminal), "got %v", err)
	assert.EqualValues(t, 1, calls.Load(), "a 4xx response must not be retried")
}

func TestNotify_TransientStatusRetriesToExhaustion(t *testing.T) {
	var calls atomic.Int32
	var attempts, deliveries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		attempts = append(attempts, r.Header.Get("X-Webhook-Attempt"))
		deliveries = append(deliveries, r.Header.Get("X-Webhook-Delivery"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{cred: webhookCred(srv.URL)}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrWebhookTransient), "got %v", err)
	assert.EqualValues(t, webhookMaxAttempts, calls.Load())
	assert.Equal(t, []string{"1", "2", "3"}, attempts)
	assert.Equal(t, deliveries[0], deliveries[1], "delivery id must be stable across retries")
	assert.Equal(t, deliveries[0], deliveries[2])
}

func TestNotify_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{cred: webhookCred(srv.URL)}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestNotify_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	n := newTestNotifier(&fakeRepoManager{creds: &fakeCredsRepo{cred: webhookCred(srv.URL)}})

	err := n.Notify(context.Background(), "t1", testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrWebhookTransient), "got %v", err)
}
