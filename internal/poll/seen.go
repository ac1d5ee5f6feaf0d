package poll

// DefaultSeenBound is the seen window size when none is configured.
const DefaultSeenBound = 1000

// SeenWindow is a bounded FIFO set of recently emitted ids. Not safe for
// concurrent use; a source instance owns exactly one.
type SeenWindow struct {
	bound int
	order []string
	set   map[string]struct{}
}

// NewSeenWindow creates a window holding at most bound ids, seeded with
// initial (oldest first). Seeds beyond the bound drop the oldest.
func NewSeenWindow(bound int, initial []string) *SeenWindow {
	if bound <= 0 {
		bound = DefaultSeenBound
	}

	w := &SeenWindow{
		bound: bound,
		set:   make(map[string]struct{}, len(initial)),
	}

	for _, id := range initial {
		w.Add(id)
	}

	return w
}

// Contains reports whether id was emitted recently.
func (w *SeenWindow) Contains(id string) bool {
	_, ok := w.set[id]
	return ok
}

// Add inserts id and trims the window. Re-adding an existing id is a no-op
// and does not refresh its position.
func (w *SeenWindow) Add(id string) {
	if w.Contains(id) {
		return
	}

	w.order = append(w.order, id)
	w.set[id] = struct{}{}

	for len(w.order) > w.bound {
		delete(w.set, w.order[0])
		w.order = w.order[1:]
	}
}

// Len returns the number of ids currently held.
func (w *SeenWindow) Len() int {
	return len(w.order)
}

// Bound returns the configured capacity.
func (w *SeenWindow) Bound() int {
	return w.bound
}

// IDs returns the held ids, oldest first.
func (w *SeenWindow) IDs() []string {
	out := make([]string, len(w.order))
	copy(out, w.order)

	return out
}
