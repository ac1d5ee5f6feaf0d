// Package reddit is a small client for the Reddit OAuth API. It covers what
// a comment watcher needs: the comment tree of one post, a subreddit's new
// links, fullname lookups and subreddit metadata.
package reddit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinels matched with errors.Is.
var (
	ErrBadRequest   = errors.New("reddit: bad request")
	ErrUnauthorized = errors.New("reddit: unauthorized")
	ErrForbidden    = errors.New("reddit: forbidden")
	ErrNotFound     = errors.New("reddit: not found")
	ErrThrottled    = errors.New("reddit: rate limited")
	ErrServerError  = errors.New("reddit: server error")

	// ErrNoCredentials is returned when no client id is configured.
	ErrNoCredentials = errors.New("reddit: client id and secret are required")
)

var statusSentinels = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusTooManyRequests: ErrThrottled,
}

// APIError is a non-200 Reddit response.
type APIError struct {
	StatusCode int

	// Reason is Reddit's machine-readable cause when it sends one, such as
	// "private" or "banned" for an inaccessible subreddit.
	Reason  string
	Message string

	Err error
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
		Err:        classifyStatus(status),
	}

	var payload struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}

	if json.Unmarshal(body, &payload) == nil {
		e.Reason = payload.Reason
		if payload.Message != "" {
			e.Message = payload.Message
		}
	}

	return e
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("reddit: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("reddit: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus returns the sentinel for a status, or nil.
func classifyStatus(code int) error {
	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return statusSentinels[code]
}

func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
