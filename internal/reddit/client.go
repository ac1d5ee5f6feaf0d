package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/retry"
)

// DefaultBaseURL is the authenticated API host. App-only tokens are only
// accepted here, not on www.reddit.com.
const DefaultBaseURL = "https://oauth.reddit.com"

var defaultBackoff = retry.Backoff{Base: 2 * time.Second, Max: time.Minute, Jitter: 0.2}

const (
	maxRetries       = 4
	defaultUserAgent = "pipedream/0.1 (source poller)"
	maxErrorBody     = 2 << 10
	maxResetWait     = 10 * time.Minute
)

// TokenSource provides bearer tokens.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the Reddit API. Requests carry raw_json=1 so bodies come
// back without HTML entity escaping.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	userAgent  string
	logger     *slog.Logger

	backoff retry.Backoff
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Reddit API client. Reddit rejects requests with a
// generic User-Agent, so an empty userAgent selects a descriptive default.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, userAgent string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		userAgent:  userAgent,
		logger:     logger,
		backoff:    defaultBackoff,
		sleep:      retry.Sleep,
	}
}

// get performs a GET with retry and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}

	query.Set("raw_json", "1")
	target := c.baseURL + path + "?" + query.Encode()

	for attempt := 0; ; attempt++ {
		resp, err := c.doOnce(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("reddit: request canceled: %w", ctx.Err())
			}

			if attempt >= maxRetries {
				return fmt.Errorf("reddit: GET %s failed after %d retries: %w", path, maxRetries, err)
			}

			if err := c.wait(ctx, path, c.backoff.Delay(attempt), attempt, 0); err != nil {
				return err
			}

			continue
		}

		if remaining := resp.Header.Get("X-Ratelimit-Remaining"); remaining != "" {
			c.logger.Debug("rate limit budget",
				slog.String("path", path),
				slog.String("remaining", remaining),
			)
		}

		if resp.StatusCode == http.StatusOK {
			defer resp.Body.Close()

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("reddit: decoding response from %s: %w", path, err)
			}

			return nil
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		if readErr != nil {
			body = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			if err := c.wait(ctx, path, c.retryBackoff(resp, attempt), attempt, resp.StatusCode); err != nil {
				return err
			}

			continue
		}

		return newAPIError(resp.StatusCode, body)
	}
}

func (c *Client) wait(ctx context.Context, path string, d time.Duration, attempt, status int) error {
	c.logger.Warn("retrying reddit request",
		slog.String("path", path),
		slog.Int("status", status),
		slog.Int("attempt", attempt+1),
		slog.Duration("backoff", d),
	)

	if err := c.sleep(ctx, d); err != nil {
		return fmt.Errorf("reddit: request canceled: %w", err)
	}

	return nil
}

func (c *Client) doOnce(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)

	return c.httpClient.Do(req)
}

// retryBackoff honors X-Ratelimit-Reset (seconds until the window resets)
// on 429 responses.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if d := retry.HeaderSeconds(resp.Header, "X-Ratelimit-Reset"); d > 0 {
			return min(d, maxResetWait)
		}
	}

	return c.backoff.Delay(attempt)
}
