package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
	"github.com/Akhilkandikonda/pipedream/internal/retry"
)

const (
	webhookMaxRetries  = 3
	webhookBaseBackoff = 500 * time.Millisecond
	webhookMaxBackoff  = 10 * time.Second
	webhookMaxBody     = 1 << 10

	// EventIDHeader carries the event id so receivers can deduplicate the
	// rare redelivery after a crash.
	EventIDHeader = "X-Pipedream-Event-Id"
)

// ErrWebhookRejected is returned when the receiver answers with a
// non-retryable status.
var ErrWebhookRejected = errors.New("emit: webhook rejected event")

// Webhook POSTs each event as JSON to a URL. 2xx is success; 408, 429 and
// 5xx are retried with backoff; other statuses fail the emission.
type Webhook struct {
	url        string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger

	backoff retry.Backoff
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewWebhook creates a webhook sink.
func NewWebhook(url string, httpClient *http.Client, userAgent string, logger *slog.Logger) *Webhook {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Webhook{
		url:        url,
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
		backoff:    retry.Backoff{Base: webhookBaseBackoff, Max: webhookMaxBackoff},
		sleep:      retry.Sleep,
	}
}

// Emit implements poll.Sink.
func (h *Webhook) Emit(ctx context.Context, ev poll.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("emit: encoding event %s: %w", ev.ID, err)
	}

	for attempt := 0; ; attempt++ {
		status, retryAfter, err := h.post(ctx, ev.ID, body)

		switch {
		case err == nil && status < http.StatusMultipleChoices:
			return nil
		case ctx.Err() != nil:
			return fmt.Errorf("emit: webhook canceled: %w", ctx.Err())
		case err == nil && !retryableStatus(status):
			return fmt.Errorf("%w: %s: HTTP %d", ErrWebhookRejected, ev.ID, status)
		case attempt >= webhookMaxRetries:
			if err != nil {
				return fmt.Errorf("emit: webhook delivery of %s failed after %d retries: %w", ev.ID, attempt, err)
			}

			return fmt.Errorf("emit: webhook delivery of %s failed after %d retries: HTTP %d", ev.ID, attempt, status)
		}

		backoff := h.backoff.Delay(attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}

		h.logger.Warn("retrying webhook delivery",
			slog.String("event_id", ev.ID),
			slog.Int("status", status),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)

		if err := h.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("emit: webhook canceled: %w", err)
		}
	}
}

func (h *Webhook) post(ctx context.Context, id string, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventIDHeader, id)

	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, webhookMaxBody))

	return resp.StatusCode, retry.HeaderSeconds(resp.Header, "Retry-After"), nil
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
