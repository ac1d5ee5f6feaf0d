// Package graph is a small Microsoft Graph client for watching a OneDrive
// folder: item and children lookup, folder-scoped delta paging and
// device-code sign-in. Requests are retried with backoff and failures are
// reported as *GraphError values that match the sentinels below.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinels matched with errors.Is. Each *GraphError unwraps to at most one.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrServerError  = errors.New("graph: server error")

	ErrNotLoggedIn = errors.New("graph: not logged in")
)

// statusSentinels covers the 4xx codes with a dedicated sentinel. Any 5xx
// maps to ErrServerError.
var statusSentinels = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusGone:            ErrGone,
	http.StatusTooManyRequests: ErrThrottled,
}

// statusBandwidthExceeded is SharePoint's 509.
const statusBandwidthExceeded = 509

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	statusBandwidthExceeded:        true,
}

// GraphError is a non-2xx Graph response.
type GraphError struct {
	StatusCode int
	RequestID  string

	// Code is error.code from the response body, e.g. "resyncRequired".
	Code string
	// Message is error.message, or the raw body when it is not Graph JSON.
	Message string

	Err error
}

func newGraphError(resp *http.Response, body []byte) *GraphError {
	ge := &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    strings.TrimSpace(string(body)),
		Err:        classifyStatus(resp.StatusCode),
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		ge.Code = envelope.Error.Code
		if envelope.Error.Message != "" {
			ge.Message = envelope.Error.Message
		}
	}

	return ge
}

func (e *GraphError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "graph: HTTP %d", e.StatusCode)

	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}

	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}

	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}

	return b.String()
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// classifyStatus returns the sentinel for code, or nil.
func classifyStatus(code int) error {
	if err, ok := statusSentinels[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return nil
}

func isRetryable(code int) bool {
	return retryableStatus[code]
}
