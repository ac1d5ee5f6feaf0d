package poll

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Exclusion reasons reported in FilterResult.
const (
	reasonOutOfScope = "outside watched scope"
	reasonDeleted    = "item deleted"
	reasonKind       = "item kind not emitted"
	reasonType       = "type not in type filter"
)

// FilterResult is the outcome of evaluating one item.
type FilterResult struct {
	Included bool
	Reason   string
}

// NodeSet is the set of container ids known to lie within a watched scope.
type NodeSet map[string]struct{}

// NewNodeSet builds a NodeSet from ids.
func NewNodeSet(ids ...string) NodeSet {
	s := make(NodeSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}

	return s
}

// Add inserts id. Empty ids are ignored.
func (s NodeSet) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

// Has reports membership.
func (s NodeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Remove deletes id.
func (s NodeSet) Remove(id string) {
	delete(s, id)
}

// Slice returns the ids in unspecified order.
func (s NodeSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}

	return out
}

// Matcher is a single relevance predicate.
type Matcher interface {
	Match(item *Item) FilterResult
}

// TypeMatcher accepts items of the emitted kinds. Folders are traversed,
// never emitted, unless explicitly listed.
type TypeMatcher struct {
	Kinds []ItemKind
}

// Match implements Matcher.
func (m TypeMatcher) Match(item *Item) FilterResult {
	if item.Deleted {
		return FilterResult{Reason: reasonDeleted}
	}

	kinds := m.Kinds
	if len(kinds) == 0 {
		kinds = []ItemKind{KindFile, KindComment}
	}

	for _, k := range kinds {
		if item.Kind == k {
			return FilterResult{Included: true}
		}
	}

	return FilterResult{Reason: reasonKind}
}

// MimeMatcher accepts items whose MIME type or file extension is in a
// user-declared set. Entries starting with "." are extensions; everything
// else is a MIME type. Comparison is case-insensitive on NFC-normalized text.
// An empty set accepts everything.
type MimeMatcher struct {
	mimes map[string]struct{}
	exts  map[string]struct{}
}

// canonical folds case on NFC text. A Caser is stateful, so one is built
// per call.
func canonical(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// NewMimeMatcher builds a matcher from a type filter list.
func NewMimeMatcher(types []string) *MimeMatcher {
	m := &MimeMatcher{
		mimes: make(map[string]struct{}),
		exts:  make(map[string]struct{}),
	}

	for _, t := range types {
		c := canonical(t)
		if c == "" {
			continue
		}

		if strings.HasPrefix(c, ".") {
			m.exts[c] = struct{}{}
		} else {
			m.mimes[c] = struct{}{}
		}
	}

	return m
}

// Empty reports whether the matcher accepts everything.
func (m *MimeMatcher) Empty() bool {
	return len(m.mimes) == 0 && len(m.exts) == 0
}

// Match implements Matcher.
func (m *MimeMatcher) Match(item *Item) FilterResult {
	if m.Empty() {
		return FilterResult{Included: true}
	}

	if _, ok := m.mimes[canonical(item.MimeType)]; ok && item.MimeType != "" {
		return FilterResult{Included: true}
	}

	if ext := canonical(path.Ext(item.Name)); ext != "" {
		if _, ok := m.exts[ext]; ok {
			return FilterResult{Included: true}
		}
	}

	return FilterResult{Reason: reasonType}
}

// ScopeMatcher accepts items inside the watched scope. Root and resource
// scopes are scoped by the provider request itself, so everything matches.
type ScopeMatcher struct {
	Scope Scope
	Nodes NodeSet
}

// Match implements Matcher.
func (m ScopeMatcher) Match(item *Item) FilterResult {
	if m.Scope.Kind != ScopeNode {
		return FilterResult{Included: true}
	}

	if item.ID == m.Scope.ID || m.Nodes.Has(item.ParentID) {
		return FilterResult{Included: true}
	}

	return FilterResult{Reason: reasonOutOfScope}
}

// Filter is the logical AND of scope, type and secondary type matchers.
type Filter struct {
	Types TypeMatcher
	Mimes *MimeMatcher
}

// NewFilter creates a filter emitting items of kinds whose type is in types
// (empty = any type).
func NewFilter(kinds []ItemKind, types []string) *Filter {
	return &Filter{
		Types: TypeMatcher{Kinds: kinds},
		Mimes: NewMimeMatcher(types),
	}
}

// Evaluate applies every predicate in order and reports the first rejection.
// Pure: no side effects, no I/O.
func (f *Filter) Evaluate(item *Item, scope Scope, nodes NodeSet) FilterResult {
	matchers := []Matcher{
		ScopeMatcher{Scope: scope, Nodes: nodes},
		f.Types,
		f.Mimes,
	}

	for _, m := range matchers {
		if r := m.Match(item); !r.Included {
			return r
		}
	}

	return FilterResult{Included: true}
}
