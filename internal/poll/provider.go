package poll

import (
	"context"
	"encoding/json"
)

// Provider is the per-integration adapter the core consumes. Defined at the
// consumer per Go convention "accept interfaces, return structs".
//
// Errors must be classified by wrapping ErrTransientProvider,
// ErrConfiguration or ErrCursorExpired so the run can react correctly.
type Provider interface {
	// Name identifies the provider in scope keys and logs.
	Name() string

	// ListPage returns one page under req.Node.
	ListPage(ctx context.Context, req PageRequest) (*Page, error)

	// GetItem fetches a single item by id.
	GetItem(ctx context.Context, id string) (*Item, error)
}

// ParentResolver is implemented by providers whose items form trees of
// emitted things (comment threads). GetParent returns nil when item is a
// root-level entry.
type ParentResolver interface {
	GetParent(ctx context.Context, item *Item) (*Item, error)
}

// CandidateLister populates configuration choices for a scope, e.g. the
// posts of a subreddit.
type CandidateLister interface {
	ListCandidates(ctx context.Context, scope Scope) ([]Candidate, error)
}

// ScopeDescriber returns metadata about the watched scope for events that
// embed scope details.
type ScopeDescriber interface {
	DescribeScope(ctx context.Context, scope Scope) (json.RawMessage, error)
}

// CursorAdvancer is implemented by providers that do not return a delta
// cursor. Advance computes the next cursor from everything a complete walk
// discovered.
type CursorAdvancer interface {
	Advance(current Cursor, items []Item) Cursor
}

// Sink receives emitted events. Emit must return only after the event has
// been durably handed off; the cursor is committed on that promise.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// SourceState is everything persisted for one scope key.
type SourceState struct {
	Cursor Cursor
	Seen   []string // oldest first
	Nodes  []string

	// Committed is true once any run has committed for this scope key, even
	// if the committed cursor is empty.
	Committed bool
}

// CursorStore persists cursor, seen window and scope node index.
// Implementations wrap every failure with ErrStorage.
type CursorStore interface {
	LoadState(ctx context.Context, scopeKey string) (*SourceState, error)

	// MarkSeen durably appends id to the seen window and trims it to bound,
	// dropping the oldest ids first.
	MarkSeen(ctx context.Context, scopeKey, id string, bound int) error

	// Commit atomically replaces the cursor and node index.
	Commit(ctx context.Context, scopeKey string, cursor Cursor, nodes []string) error

	Lifecycle(ctx context.Context, source string) (Lifecycle, error)
	SetLifecycle(ctx context.Context, source string, state Lifecycle) error
}

// RunJournal records run outcomes. Optional: a CursorStore that also
// implements RunJournal gets one row per run.
type RunJournal interface {
	RecordRun(ctx context.Context, rec *RunReport) error
}
