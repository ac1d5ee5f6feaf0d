package emit

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

// Multi delivers each event to every sink concurrently. Emit returns once
// all sinks finished; the first error wins. A retried event may reach the
// sinks that already accepted it a second time.
type Multi []poll.Sink

// Emit implements poll.Sink.
func (m Multi) Emit(ctx context.Context, ev poll.Event) error {
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0].Emit(ctx, ev)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range m {
		g.Go(func() error {
			return s.Emit(gctx, ev)
		})
	}

	return g.Wait()
}
