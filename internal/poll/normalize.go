package poll

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"
)

// Ancestor expansion bounds for comment-tree sources.
const (
	MinParents = 0
	MaxParents = 8
)

// maxSummaryRunes caps event summaries; comment bodies can be arbitrarily long.
const maxSummaryRunes = 280

// Normalizer maps provider items to events and fixes emission order.
type Normalizer struct {
	provider Provider
	logger   *slog.Logger
}

// NewNormalizer creates a Normalizer for provider.
func NewNormalizer(provider Provider, logger *slog.Logger) *Normalizer {
	return &Normalizer{provider: provider, logger: logger}
}

// Normalize converts items into events sorted ascending by creation time.
// Ties keep discovery order. Any ancestor or scope lookup failure aborts the
// whole batch.
func (n *Normalizer) Normalize(ctx context.Context, rc *runContext, items []Item) ([]Event, error) {
	if len(items) == 0 {
		return nil, nil
	}

	scopeDetails, err := n.scopeDetails(ctx, rc)
	if err != nil {
		return nil, err
	}

	parents := make(map[string]*Item)
	events := make([]Event, 0, len(items))

	for i := range items {
		item := &items[i]

		ev := Event{
			ID:        item.ID,
			Summary:   summarize(item),
			Timestamp: item.CreatedAt.Unix(),
			Payload:   item.Raw,
			Scope:     scopeDetails,
			createdAt: item.CreatedAt,
			seq:       i,
		}

		if rc.parents > 0 {
			ancestors, err := n.ancestors(ctx, item, rc.parents, parents)
			if err != nil {
				return nil, fmt.Errorf("poll: resolving ancestors of %s: %w", item.ID, err)
			}

			ev.Ancestors = ancestors
		}

		events = append(events, ev)
	}

	SortEvents(events)

	return events, nil
}

// SortEvents orders events oldest first, keeping discovery order on ties, so
// consumers observe causally consistent ordering even when the provider
// returns newest first.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}

		return cmp.Compare(a.seq, b.seq)
	})
}

// ancestors walks parent links outward from item until limit ancestors are
// collected or the root is reached, then returns them root first. Lookups are
// cached per run because siblings share parents.
func (n *Normalizer) ancestors(ctx context.Context, item *Item, limit int, cache map[string]*Item) ([]Item, error) {
	resolver, ok := n.provider.(ParentResolver)
	if !ok {
		return nil, nil
	}

	var chain []Item

	seen := map[string]bool{item.ID: true}
	cur := item

	for len(chain) < limit && cur.ParentID != "" {
		parent, cached := cache[cur.ParentID]
		if !cached {
			var err error

			parent, err = resolver.GetParent(ctx, cur)
			if err != nil {
				return nil, err
			}

			cache[cur.ParentID] = parent
		}

		if parent == nil || seen[parent.ID] {
			break
		}

		seen[parent.ID] = true
		chain = append(chain, *parent)
		cur = parent
	}

	slices.Reverse(chain)

	return chain, nil
}

func (n *Normalizer) scopeDetails(ctx context.Context, rc *runContext) (json.RawMessage, error) {
	if !rc.scopeDetails {
		return nil, nil
	}

	describer, ok := n.provider.(ScopeDescriber)
	if !ok {
		n.logger.Debug("provider has no scope details", slog.String("provider", n.provider.Name()))
		return nil, nil
	}

	details, err := describer.DescribeScope(ctx, rc.scope)
	if err != nil {
		return nil, fmt.Errorf("poll: describing scope %s: %w", rc.scope.Key(), err)
	}

	return details, nil
}

// summarize picks a one-line, length-capped summary.
func summarize(item *Item) string {
	s := item.Summary
	if s == "" {
		s = item.Name
	}

	if s == "" {
		s = item.ID
	}

	s = strings.Join(strings.Fields(s), " ")

	if utf8.RuneCountInString(s) <= maxSummaryRunes {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxSummaryRunes-1]) + "…"
}
