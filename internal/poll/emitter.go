package poll

import (
	"context"
	"fmt"
	"log/slog"
)

// EmitResult counts what one emission pass did.
type EmitResult struct {
	Emitted int
	Skipped int
}

// DedupEmitter emits only events whose ids are not in the run's seen window,
// recording each emitted id durably before moving to the next event.
type DedupEmitter struct {
	sink   Sink
	store  CursorStore
	logger *slog.Logger
}

// NewDedupEmitter creates an emitter writing to sink and recording seen ids
// in store.
func NewDedupEmitter(sink Sink, store CursorStore, logger *slog.Logger) *DedupEmitter {
	return &DedupEmitter{sink: sink, store: store, logger: logger}
}

// Emit walks events in order. A sink or storage failure stops the pass; ids
// emitted before the failure stay recorded so the retry does not duplicate
// them. A crash between Emit and MarkSeen produces a benign duplicate, never
// a lost event.
func (d *DedupEmitter) Emit(ctx context.Context, rc *runContext, events []Event) (EmitResult, error) {
	var res EmitResult

	for i := range events {
		ev := events[i]

		if rc.seen.Contains(ev.ID) {
			d.logger.Debug("skipping already emitted event",
				slog.String("source", rc.source),
				slog.String("event_id", ev.ID),
			)

			res.Skipped++

			continue
		}

		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("poll: emission canceled: %w", err)
		}

		if err := d.sink.Emit(ctx, ev); err != nil {
			return res, fmt.Errorf("poll: emitting event %s: %w", ev.ID, err)
		}

		if err := d.store.MarkSeen(ctx, rc.scope.Key(), ev.ID, rc.seen.Bound()); err != nil {
			return res, fmt.Errorf("poll: recording event %s: %w", ev.ID, err)
		}

		rc.seen.Add(ev.ID)
		res.Emitted++

		d.logger.Debug("emitted event",
			slog.String("source", rc.source),
			slog.String("event_id", ev.ID),
			slog.Int64("ts", ev.Timestamp),
		)
	}

	return res, nil
}
