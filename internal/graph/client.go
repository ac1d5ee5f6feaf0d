package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/retry"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	maxRetries       = 5
	defaultUserAgent = "pipedream/0.1"

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 4 << 10
)

var defaultBackoff = retry.Backoff{Base: time.Second, Max: time.Minute, Jitter: 0.25}

// TokenSource yields bearer tokens for Authorization headers.
type TokenSource interface {
	Token() (string, error)
}

// Client issues read-only Graph requests. Throttling, 5xx and network
// failures are retried; other failures surface as *GraphError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	userAgent  string
	logger     *slog.Logger

	backoff retry.Backoff
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client. Nil httpClient and logger select
// the defaults, as does an empty userAgent.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, userAgent string, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		userAgent:  userAgent,
		logger:     logger,
		backoff:    defaultBackoff,
		sleep:      retry.Sleep,
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}

	return c
}

// Get requests path (relative to the base URL) with retry. On success the
// caller owns the response body.
func (c *Client) Get(ctx context.Context, path string, headers http.Header) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, path, headers)

		var wait time.Duration

		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		case err != nil:
			if attempt >= maxRetries {
				return nil, fmt.Errorf("graph: GET %s failed after %d retries: %w", path, maxRetries, err)
			}

			wait = c.backoff.Delay(attempt)
			c.logger.Warn("retrying after network error",
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		case resp.StatusCode/100 == 2:
			c.logger.Debug("request succeeded", slog.String("path", path), slog.Int("status", resp.StatusCode))

			return resp, nil
		default:
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()

			if readErr != nil {
				body = []byte("(failed to read response body)")
			}

			if !isRetryable(resp.StatusCode) || attempt >= maxRetries {
				if attempt > 0 {
					c.logger.Error("request failed after retries",
						slog.String("path", path),
						slog.Int("status", resp.StatusCode),
						slog.Int("attempts", attempt+1),
					)
				}

				return nil, newGraphError(resp, body)
			}

			wait = c.waitFor(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
			)
		}

		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", err)
		}
	}
}

// getJSON GETs path and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, headers http.Header, out any) error {
	resp, err := c.Get(ctx, path, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graph: decoding response from %s: %w", path, err)
	}

	return nil
}

func (c *Client) send(ctx context.Context, path string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header = headers.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// waitFor prefers the server's Retry-After on 429 and 503.
func (c *Client) waitFor(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if d := retry.HeaderSeconds(resp.Header, "Retry-After"); d > 0 {
			return d
		}
	}

	return c.backoff.Delay(attempt)
}
