// Package poll implements the polling-and-deduplication core shared by every
// source: cursor continuation, exhaustive page walking with depth-first
// descent, relevance filtering, event normalization with ancestor expansion,
// and deduplicated emission with crash-consistent cursor commits.
//
// The package knows nothing about HTTP, auth, or any particular API. Provider
// packages implement Provider (and optional capabilities); the host wires a
// Sink and a CursorStore.
package poll

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is an opaque continuation token (delta link, "before" pointer, or
// creation watermark). The empty Cursor means "nothing observed yet".
type Cursor string

// IsAbsent reports whether no cursor has been persisted.
func (c Cursor) IsAbsent() bool {
	return c == ""
}

// ItemKind classifies a provider item.
type ItemKind int

const (
	KindFile ItemKind = iota
	KindFolder
	KindComment
	KindPost
)

func (k ItemKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	case KindComment:
		return "comment"
	case KindPost:
		return "post"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// IsContainer reports whether items of this kind can hold children that the
// traversal may descend into.
func (k ItemKind) IsContainer() bool {
	return k == KindFolder
}

// Item is the provider-native representation of a discovered unit. The core
// never mutates an Item after the provider returns it.
type Item struct {
	ID        string
	ParentID  string
	Name      string
	Kind      ItemKind
	MimeType  string
	CreatedAt time.Time
	Deleted   bool

	// Summary is a human-readable excerpt chosen by the provider (file name,
	// comment body).
	Summary string

	// Raw is the provider payload embedded into emitted events.
	Raw json.RawMessage
}

// ScopeKind distinguishes the three shapes a watched scope can take.
type ScopeKind int

const (
	// ScopeRoot watches an entire hierarchy (whole drive).
	ScopeRoot ScopeKind = iota
	// ScopeNode watches one hierarchical node, optionally recursively.
	ScopeNode
	// ScopeResource watches a single fixed external resource (a post).
	ScopeResource
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeRoot:
		return "root"
	case ScopeNode:
		return "node"
	case ScopeResource:
		return "resource"
	default:
		return fmt.Sprintf("ScopeKind(%d)", int(k))
	}
}

// Scope identifies what a source instance watches. Immutable once the source
// is configured.
type Scope struct {
	Provider  string
	Kind      ScopeKind
	ID        string // node id or resource id; empty for ScopeRoot
	Parent    string // enclosing namespace (drive id, subreddit)
	Recursive bool
}

// Key returns the stable key under which cursor state is persisted.
func (s Scope) Key() string {
	return fmt.Sprintf("%s:%s:%s/%s", s.Provider, s.Kind, s.Parent, s.ID)
}

// PageRequest asks the provider for one page under Node.
type PageRequest struct {
	Scope Scope

	// Node is the container being listed. For the top-level request it is
	// the scope id (empty for root scopes); during descent it is a folder id.
	Node string

	// Cursor is the persisted cursor. Delta providers honor it on top-level
	// requests only; descending providers treat it as a watermark for
	// non-container items and still return every container.
	Cursor Cursor

	// PageToken continues a multi-page listing. Empty on the first page.
	PageToken string

	// Limit is a page size hint for sample runs. The walk still runs to
	// completion; providers that list newest first may return fewer items.
	// Zero means no hint.
	Limit int
}

// TopLevel reports whether the request lists the scope itself rather than a
// descendant.
func (r PageRequest) TopLevel() bool {
	return r.Node == r.Scope.ID
}

// Page is one provider response.
type Page struct {
	Items []Item

	// NextPageToken is non-empty while more pages remain.
	NextPageToken string

	// DeltaCursor is the provider's continuation marker, usually only present
	// on the final page of a delta enumeration.
	DeltaCursor Cursor

	// Descend tells the traversal that container items in this page list
	// direct children only and must be walked to reach their descendants.
	Descend bool
}

// Event is the provider-agnostic record emitted downstream.
type Event struct {
	ID        string          `json:"id"`
	Summary   string          `json:"summary"`
	Timestamp int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ancestors []Item          `json:"-"`
	Scope     json.RawMessage `json:"scope,omitempty"`

	// createdAt keeps full precision for ordering; Timestamp is seconds.
	createdAt time.Time
	seq       int
}

// eventJSON is the wire shape of Event, with ancestors flattened to their
// payloads.
type eventJSON struct {
	ID        string            `json:"id"`
	Summary   string            `json:"summary"`
	Timestamp int64             `json:"ts"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Ancestors []json.RawMessage `json:"ancestors,omitempty"`
	Scope     json.RawMessage   `json:"scope,omitempty"`
}

// MarshalJSON renders ancestors as their raw provider payloads, root first.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:        e.ID,
		Summary:   e.Summary,
		Timestamp: e.Timestamp,
		Payload:   e.Payload,
		Scope:     e.Scope,
	}

	for i := range e.Ancestors {
		raw := e.Ancestors[i].Raw
		if len(raw) == 0 {
			raw = json.RawMessage(`{}`)
		}

		out.Ancestors = append(out.Ancestors, raw)
	}

	return json.Marshal(out)
}

// CreatedAt returns the full-precision creation time used for ordering.
func (e *Event) CreatedAt() time.Time {
	return e.createdAt
}

// Candidate is one selectable option for a source's configuration, e.g. a
// post in a subreddit.
type Candidate struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// StartMode decides what an absent cursor means on the first scheduled run.
type StartMode int

const (
	// StartBackfill emits every matching item the first walk discovers.
	StartBackfill StartMode = iota
	// StartNow primes the cursor on the first run and emits nothing.
	StartNow
)

func (m StartMode) String() string {
	if m == StartNow {
		return "now"
	}

	return "backfill"
}

// ParseStartMode converts a config string into a StartMode.
func ParseStartMode(s string) (StartMode, error) {
	switch s {
	case "", "backfill":
		return StartBackfill, nil
	case "now":
		return StartNow, nil
	default:
		return StartBackfill, fmt.Errorf("poll: unknown start mode %q (want backfill or now)", s)
	}
}

// Lifecycle is the persisted state of a source instance.
type Lifecycle string

const (
	Unconfigured Lifecycle = "unconfigured"
	Active       Lifecycle = "active"
)
