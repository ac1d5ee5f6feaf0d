package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"
)

// testLogger returns a debug-level logger that writes to t.Log,
// so all activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func file(id, parent string, minutes int) Item {
	return Item{
		ID:        id,
		ParentID:  parent,
		Name:      id + ".txt",
		Kind:      KindFile,
		MimeType:  "text/plain",
		CreatedAt: at(minutes),
		Raw:       json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
	}
}

func folder(id, parent string, minutes int) Item {
	return Item{
		ID:        id,
		ParentID:  parent,
		Name:      id,
		Kind:      KindFolder,
		CreatedAt: at(minutes),
	}
}

func comment(id, parent string, minutes int) Item {
	return Item{
		ID:        id,
		ParentID:  parent,
		Kind:      KindComment,
		CreatedAt: at(minutes),
		Summary:   "comment " + id,
		Raw:       json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
	}
}

// feedProvider simulates a delta API over an append-only change feed. The
// cursor is the number of feed entries already observed.
type feedProvider struct {
	mu       sync.Mutex
	feed     []Item
	pageSize int

	// failOn makes the n-th ListPage call (1-based) return err.
	failOn int
	err    error

	// expired cursors return ErrCursorExpired.
	expired map[Cursor]bool

	calls []PageRequest
}

func (p *feedProvider) Name() string { return "feed" }

func (p *feedProvider) append(items ...Item) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.feed = append(p.feed, items...)
}

func (p *feedProvider) ListPage(_ context.Context, req PageRequest) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)

	if p.failOn > 0 && len(p.calls) == p.failOn {
		return nil, p.err
	}

	if p.expired[req.Cursor] {
		return nil, fmt.Errorf("feed: %w", ErrCursorExpired)
	}

	start := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(string(req.Cursor))
		if err != nil {
			return nil, err
		}

		start = n
	}

	if req.PageToken != "" {
		n, err := strconv.Atoi(req.PageToken)
		if err != nil {
			return nil, err
		}

		start = n
	}

	size := p.pageSize
	if size <= 0 {
		size = 100
	}

	end := min(start+size, len(p.feed))
	page := &Page{Items: slices.Clone(p.feed[start:end])}

	if end < len(p.feed) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		page.DeltaCursor = Cursor(strconv.Itoa(end))
	}

	return page, nil
}

func (p *feedProvider) GetItem(_ context.Context, id string) (*Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.feed {
		if p.feed[i].ID == id {
			it := p.feed[i]
			return &it, nil
		}
	}

	return nil, fmt.Errorf("feed: item %s: %w", id, ErrConfiguration)
}

func (p *feedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.calls)
}

// treeProvider lists direct children of each container and requires
// depth-first descent. Its cursor is a creation-time watermark.
type treeProvider struct {
	children map[string][]Item
	listed   []string
	err      map[string]error
}

func (p *treeProvider) Name() string { return "tree" }

func (p *treeProvider) ListPage(_ context.Context, req PageRequest) (*Page, error) {
	if err := p.err[req.Node]; err != nil {
		return nil, err
	}

	p.listed = append(p.listed, req.Node)

	return &Page{Items: slices.Clone(p.children[req.Node]), Descend: true}, nil
}

func (p *treeProvider) Advance(current Cursor, items []Item) Cursor {
	return watermark(current, items)
}

func (p *treeProvider) GetItem(_ context.Context, id string) (*Item, error) {
	for _, items := range p.children {
		for i := range items {
			if items[i].ID == id {
				it := items[i]
				return &it, nil
			}
		}
	}

	return nil, errors.New("tree: not found")
}

// threadProvider serves one comment thread newest first, with parent links
// and a creation-time watermark cursor.
type threadProvider struct {
	comments    []Item
	byID        map[string]Item
	parentCalls int
	parentErr   error
	scope       json.RawMessage
}

func newThreadProvider(comments ...Item) *threadProvider {
	p := &threadProvider{byID: make(map[string]Item)}
	for _, c := range comments {
		p.add(c)
	}

	return p
}

func (p *threadProvider) add(c Item) {
	p.comments = append(p.comments, c)
	p.byID[c.ID] = c
}

func (p *threadProvider) Name() string { return "thread" }

func (p *threadProvider) ListPage(_ context.Context, req PageRequest) (*Page, error) {
	var after time.Time

	if req.Cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, string(req.Cursor))
		if err != nil {
			return nil, err
		}

		after = t
	}

	var out []Item

	for i := len(p.comments) - 1; i >= 0; i-- {
		if p.comments[i].CreatedAt.After(after) {
			out = append(out, p.comments[i])
		}
	}

	return &Page{Items: out}, nil
}

func (p *threadProvider) GetItem(_ context.Context, id string) (*Item, error) {
	it, ok := p.byID[id]
	if !ok {
		return nil, errors.New("thread: not found")
	}

	return &it, nil
}

func (p *threadProvider) GetParent(_ context.Context, item *Item) (*Item, error) {
	p.parentCalls++

	if p.parentErr != nil {
		return nil, p.parentErr
	}

	parent, ok := p.byID[item.ParentID]
	if !ok {
		return nil, nil
	}

	return &parent, nil
}

func (p *threadProvider) DescribeScope(_ context.Context, _ Scope) (json.RawMessage, error) {
	return p.scope, nil
}

func (p *threadProvider) Advance(current Cursor, items []Item) Cursor {
	return watermark(current, items)
}

// watermark advances a creation-time cursor to the newest item seen.
func watermark(current Cursor, items []Item) Cursor {
	next := current

	for i := range items {
		ts := Cursor(items[i].CreatedAt.UTC().Format(time.RFC3339Nano))
		if next == "" || items[i].CreatedAt.After(mustParse(next)) {
			next = ts
		}
	}

	return next
}

func mustParse(c Cursor) time.Time {
	t, err := time.Parse(time.RFC3339Nano, string(c))
	if err != nil {
		panic(err)
	}

	return t
}

// memStore is an in-memory CursorStore and RunJournal.
type memStore struct {
	mu     sync.Mutex
	states map[string]*SourceState
	life   map[string]Lifecycle
	runs   []RunReport

	// failMarkSeenAfter fails every MarkSeen once this many succeeded (-1 = never).
	failMarkSeenAfter int
	markSeenCalls     int
	failCommit        error
	commits           int
}

func newMemStore() *memStore {
	return &memStore{
		states:            make(map[string]*SourceState),
		life:              make(map[string]Lifecycle),
		failMarkSeenAfter: -1,
	}
}

func (m *memStore) state(key string) *SourceState {
	st, ok := m.states[key]
	if !ok {
		st = &SourceState{}
		m.states[key] = st
	}

	return st
}

func (m *memStore) LoadState(_ context.Context, key string) (*SourceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(key)

	return &SourceState{
		Cursor:    st.Cursor,
		Seen:      slices.Clone(st.Seen),
		Nodes:     slices.Clone(st.Nodes),
		Committed: st.Committed,
	}, nil
}

func (m *memStore) MarkSeen(_ context.Context, key, id string, bound int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failMarkSeenAfter >= 0 && m.markSeenCalls >= m.failMarkSeenAfter {
		return fmt.Errorf("mem: disk full: %w", ErrStorage)
	}

	m.markSeenCalls++

	st := m.state(key)
	if slices.Contains(st.Seen, id) {
		return nil
	}

	st.Seen = append(st.Seen, id)
	if len(st.Seen) > bound {
		st.Seen = st.Seen[len(st.Seen)-bound:]
	}

	return nil
}

func (m *memStore) Commit(_ context.Context, key string, cursor Cursor, nodes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCommit != nil {
		return m.failCommit
	}

	m.commits++

	st := m.state(key)
	st.Cursor = cursor
	st.Nodes = slices.Clone(nodes)
	st.Committed = true

	return nil
}

func (m *memStore) Lifecycle(_ context.Context, source string) (Lifecycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.life[source]; ok {
		return l, nil
	}

	return Unconfigured, nil
}

func (m *memStore) SetLifecycle(_ context.Context, source string, state Lifecycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.life[source] = state

	return nil
}

func (m *memStore) RecordRun(_ context.Context, rec *RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, *rec)

	return nil
}

func (m *memStore) cursor(key string) Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state(key).Cursor
}

// recordingSink captures emitted events and can fail on demand.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.events = append(s.events, ev)

	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.ID)
	}

	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
}

// newTestSource builds a source and, when active is set, marks it Active so
// scheduled runs can proceed without a sample run.
func newTestSource(t *testing.T, cfg SourceConfig, p Provider, store *memStore, sink Sink, active bool) *Source {
	t.Helper()

	if cfg.Name == "" {
		cfg.Name = "test"
	}

	src, err := NewSource(cfg, p, store, sink, testLogger(t))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	seq := 0
	src.newRunID = func() string {
		seq++
		return fmt.Sprintf("run-%d", seq)
	}

	if active {
		if err := store.SetLifecycle(context.Background(), cfg.Name, Active); err != nil {
			t.Fatalf("SetLifecycle: %v", err)
		}
	}

	return src
}
