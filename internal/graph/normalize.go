package graph

import (
	"log/slog"
	"net/url"
)

// normalizeDeltaItems cleans one delta page in a single pass:
//   - names arriving percent-encoded (shared folders on Personal accounts)
//     are decoded
//   - OneNote packages are dropped; they are not user files
//   - an item listed more than once keeps its first slot and its last state
func normalizeDeltaItems(items []Item, logger *slog.Logger) []Item {
	out := make([]Item, 0, len(items))
	slot := make(map[string]int, len(items))
	packages, repeats := 0, 0

	for _, it := range items {
		if it.IsPackage {
			packages++
			continue
		}

		if decoded, err := url.PathUnescape(it.Name); err == nil && decoded != it.Name {
			logger.Debug("decoded item name", slog.String("item_id", it.ID), slog.String("name", decoded))
			it.Name = decoded
		}

		if i, ok := slot[it.ID]; ok {
			out[i] = it
			repeats++

			continue
		}

		slot[it.ID] = len(out)
		out = append(out, it)
	}

	if packages > 0 || repeats > 0 {
		logger.Debug("normalized delta page",
			slog.Int("packages_dropped", packages),
			slog.Int("repeats_merged", repeats),
			slog.Int("remaining", len(out)),
		)
	}

	return out
}
