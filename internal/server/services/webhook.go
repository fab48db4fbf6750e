package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/cloudpad/tenantvault/internal/common"
	"github.com/cloudpad/tenantvault/internal/server/config"
	"github.com/cloudpad/tenantvault/internal/logging"
	"github.com/cloudpad/tenantvault/internal/server/models"
	"github.com/cloudpad/tenantvault/internal/server/repositories/repomanager"
)

// Notifier delivers file-change payloads to the tenant's configured endpoint.
type Notifier interface {
	// Notify posts the payload. A tenant without a webhook URL is a no-op.
	// The error is informational only; callers must not fail the operation
	// that produced the payload.
	Notify(ctx context.Context, tenantID string, payload *models.WebhookPayload) error
}

// webhookMaxAttempts bounds total delivery attempts, including the first.
const webhookMaxAttempts = 3

// WebhookNotifier posts payloads with bounded exponential backoff. A 4xx
// response is terminal and stops retrying immediately; network failures and
// 5xx responses are retried.
type WebhookNotifier struct {
	db          *sql.DB
	repos       repomanager.RepositoryManager
	client      *http.Client
	backoffBase time.Duration
	logger      logging.Logger
}

func NewWebhookNotifier(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		db:          db,
		repos:       repos,
		client:      &http.Client{Timeout: cfg.WebhookTimeout},
		backoffBase: cfg.WebhookBackoffBase,
		logger:      logger.With("module", "webhook"),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, tenantID string, payload *models.WebhookPayload) error {
	cred, err := n.repos.Credentials(n.db).Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	if cred.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook payload: %w", err)
	}

	// one delivery id across all attempts, so the receiver can deduplicate
	deliveryID := uuid.NewString()

	attempt := 0
	backoff := retry.WithMaxRetries(webhookMaxAttempts-1, retry.NewExponential(n.backoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		return n.post(ctx, cred.WebhookURL, payload.Event, body, deliveryID, attempt)
	})
	if err != nil {
		webhookDeliveries.WithLabelValues("failed").Inc()
		n.logger.Warn(ctx, "webhook delivery failed",
			"tenant_id", tenantID, "event", string(payload.Event), "delivery_id", deliveryID,
			"attempts", attempt, "error", err.Error())
		return err
	}

	webhookDeliveries.WithLabelValues("delivered").Inc()
	n.logger.Info(ctx, "webhook delivered",
		"tenant_id", tenantID, "event", string(payload.Event), "delivery_id", deliveryID, "attempts", attempt)
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, event models.WebhookEvent, body []byte, deliveryID string, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrWebhookTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(event))
	req.Header.Set("X-Webhook-Delivery", deliveryID)
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(attempt))

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrWebhookTransient, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// the receiver rejected the payload; retrying cannot change that
		return fmt.Errorf("%w: status %d", common.ErrWebhookTerminal, resp.StatusCode)
	default:
		return retry.RetryableError(fmt.Errorf("%w: status %d", common.ErrWebhookTransient, resp.StatusCode))
	}
}
