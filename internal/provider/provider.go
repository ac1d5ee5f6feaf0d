// Package provider adapts the Graph and Reddit API clients to poll.Provider.
// Each adapter maps native items to poll.Item, classifies API failures into
// the poll error sentinels, and supplies a cursor when the API has no delta
// marker of its own.
package provider

import (
	"fmt"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

// watermarkLayout formats creation watermarks. Nanosecond precision keeps
// two items created in the same second distinguishable.
const watermarkLayout = time.RFC3339Nano

// parseWatermark reads a creation watermark. An absent or unparseable
// cursor yields ok=false, meaning "no lower bound".
func parseWatermark(c poll.Cursor) (time.Time, bool) {
	if c.IsAbsent() {
		return time.Time{}, false
	}

	t, err := time.Parse(watermarkLayout, string(c))
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// belowWatermark reports whether t predates the watermark. Items created at
// exactly the watermark are kept; the seen window absorbs the repeat.
func belowWatermark(t time.Time, wm time.Time, ok bool) bool {
	return ok && t.Before(wm)
}

// advanceWatermark returns the newest creation time among the counted items,
// never moving backwards.
func advanceWatermark(current poll.Cursor, items []poll.Item, counted func(*poll.Item) bool) poll.Cursor {
	best, ok := parseWatermark(current)

	for i := range items {
		it := &items[i]
		if !counted(it) || it.CreatedAt.IsZero() {
			continue
		}

		if !ok || it.CreatedAt.After(best) {
			best = it.CreatedAt
			ok = true
		}
	}

	if !ok {
		return current
	}

	return poll.Cursor(best.UTC().Format(watermarkLayout))
}

// wrap attaches a poll sentinel to an API error.
func wrap(name string, sentinel, err error) error {
	return fmt.Errorf("%s: %w: %w", name, sentinel, err)
}
