package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// WalkResult is everything one complete walk discovered, plus the state it
// proposes to commit once emission succeeds.
type WalkResult struct {
	Items  []Item
	Cursor Cursor
	Nodes  NodeSet
	Pages  int
}

// Traverser drives repeated provider calls until the provider signals
// completion, descending depth-first into containers when the provider models
// a hierarchy.
type Traverser struct {
	provider Provider
	logger   *slog.Logger
}

// NewTraverser creates a Traverser over provider.
func NewTraverser(provider Provider, logger *slog.Logger) *Traverser {
	return &Traverser{provider: provider, logger: logger}
}

// Walk enumerates every item newer than the run's cursor. Any page failure
// aborts the walk; nothing discovered so far is returned. An expired cursor
// restarts the walk once from the beginning.
func (t *Traverser) Walk(ctx context.Context, rc *runContext) (*WalkResult, error) {
	res, err := t.walk(ctx, rc, rc.cursor)
	if errors.Is(err, ErrCursorExpired) && !rc.cursor.IsAbsent() {
		t.logger.Warn("cursor expired, re-enumerating from the beginning",
			slog.String("source", rc.source),
			slog.String("scope", rc.scope.Key()),
		)

		res, err = t.walk(ctx, rc, "")
	}

	if err != nil {
		return nil, err
	}

	return res, nil
}

// walker holds the per-walk mutable state. It is discarded on failure so a
// failed walk can never leak a partial cursor or node index.
type walker struct {
	t       *Traverser
	rc      *runContext
	cursor  Cursor
	visited map[string]bool
	nodes   NodeSet
	items   []Item
	pages   int
}

func (t *Traverser) walk(ctx context.Context, rc *runContext, cursor Cursor) (*WalkResult, error) {
	w := &walker{
		t:       t,
		rc:      rc,
		cursor:  cursor,
		visited: make(map[string]bool),
		nodes:   make(NodeSet, len(rc.nodes)),
	}

	for id := range rc.nodes {
		w.nodes.Add(id)
	}

	if rc.scope.Kind == ScopeNode {
		w.nodes.Add(rc.scope.ID)
	}

	w.visited[rc.scope.ID] = true

	t.logger.Debug("starting walk",
		slog.String("source", rc.source),
		slog.String("run_id", rc.id),
		slog.String("kind", string(rc.kind)),
		slog.String("scope", rc.scope.Key()),
		slog.Bool("initial", cursor.IsAbsent()),
		slog.Int("limit", rc.limit),
	)

	delta, err := w.listAll(ctx, rc.scope.ID)
	if err != nil {
		return nil, err
	}

	next := cursor

	if delta != "" {
		next = delta
	} else if adv, ok := t.provider.(CursorAdvancer); ok {
		next = adv.Advance(cursor, w.items)
	}

	t.logger.Debug("walk complete",
		slog.String("source", rc.source),
		slog.Int("pages", w.pages),
		slog.Int("items", len(w.items)),
		slog.Bool("cursor_advanced", next != cursor),
	)

	return &WalkResult{
		Items:  w.items,
		Cursor: next,
		Nodes:  w.nodes,
		Pages:  w.pages,
	}, nil
}

// listAll runs the page loop for one container and returns the delta cursor
// reported by its final page.
func (w *walker) listAll(ctx context.Context, node string) (Cursor, error) {
	req := PageRequest{
		Scope:  w.rc.scope,
		Node:   node,
		Cursor: w.cursor,
		Limit:  w.rc.limit,
	}

	var delta Cursor

	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("poll: walk canceled: %w", err)
		}

		page, err := w.t.provider.ListPage(ctx, req)
		if err != nil {
			return "", fmt.Errorf("poll: listing page %d of %q: %w", w.pages+1, node, err)
		}

		w.pages++

		for i := range page.Items {
			if err := w.accept(ctx, &page.Items[i], page.Descend); err != nil {
				return "", err
			}
		}

		if page.DeltaCursor != "" {
			delta = page.DeltaCursor
		}

		if page.NextPageToken == "" {
			return delta, nil
		}

		req.PageToken = page.NextPageToken
	}
}

// accept buffers one item, maintains the scope node index, and descends into
// it when the provider asks for hierarchical traversal.
func (w *walker) accept(ctx context.Context, item *Item, descend bool) error {
	w.items = append(w.items, *item)
	w.track(item)

	if !descend || !w.rc.scope.Recursive || !item.Kind.IsContainer() || item.Deleted {
		return nil
	}

	if w.visited[item.ID] {
		w.t.logger.Warn("container already visited, not descending again",
			slog.String("source", w.rc.source),
			slog.String("item_id", item.ID),
		)

		return nil
	}

	w.visited[item.ID] = true

	_, err := w.listAll(ctx, item.ID)

	return err
}

// track keeps the node index in step with containers entering or leaving the
// watched subtree.
func (w *walker) track(item *Item) {
	if w.rc.scope.Kind != ScopeNode || !item.Kind.IsContainer() {
		return
	}

	if item.Deleted {
		if item.ID != w.rc.scope.ID {
			w.nodes.Remove(item.ID)
		}

		return
	}

	if item.ID == w.rc.scope.ID || (w.rc.scope.Recursive && w.nodes.Has(item.ParentID)) {
		w.nodes.Add(item.ID)
		return
	}

	// Moved out of the subtree, or below a non-recursive scope.
	w.nodes.Remove(item.ID)
}
