package poll

import (
	"errors"
	"fmt"
)

// Sentinel errors for run failure classification.
// Use errors.Is(err, poll.ErrStorage) to check.
var (
	// ErrTransientProvider covers network failures, throttling and server
	// errors. The run aborts without state change; the next scheduled run
	// retries from the same cursor.
	ErrTransientProvider = errors.New("poll: transient provider error")

	// ErrStorage means cursor persistence is unavailable. The run aborts
	// without advancing the cursor.
	ErrStorage = errors.New("poll: storage unavailable")

	// ErrConfiguration means the scope or filter references a resource that
	// does not exist. Surfaced to the user; not retried automatically.
	ErrConfiguration = errors.New("poll: configuration error")

	// ErrCursorExpired is returned by a provider when the persisted cursor is
	// no longer accepted (HTTP 410). The traversal restarts from an absent
	// cursor once.
	ErrCursorExpired = errors.New("poll: cursor expired")

	// ErrNotActivated is returned by Source.Run before Activate succeeded.
	ErrNotActivated = errors.New("poll: source not activated")
)

// RunKind names the two entry points of a source.
type RunKind string

const (
	RunDeploy   RunKind = "deploy"
	RunSchedule RunKind = "schedule"
)

// RunError wraps a failed run with the source and entry point that failed.
type RunError struct {
	Source string
	Kind   RunKind
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("poll: %s run of source %s failed: %v", e.Kind, e.Source, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a failed run should be retried on the next tick.
// Configuration errors need user intervention; everything else is retried.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrConfiguration)
}
