package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forceExit ends the process on a repeated interrupt.
var forceExit = func() { os.Exit(1) }

// shutdownContext derives a context from parent that is canceled by SIGINT or
// SIGTERM. Runs in flight stop before committing, so the cursor stays at its
// last saved position. A second signal exits without waiting.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)

	go watchInterrupts(parent, ctx, cancel, interrupts, logger)

	return ctx
}

func watchInterrupts(parent, ctx context.Context, cancel context.CancelFunc, interrupts chan os.Signal, logger *slog.Logger) {
	defer signal.Stop(interrupts)

	// Until the first signal only ctx matters; afterwards only the parent
	// ends the wait.
	done := ctx.Done()

	for received := 0; ; {
		select {
		case <-done:
			return
		case sig := <-interrupts:
			received++

			if received > 1 {
				logger.Warn("interrupted again, exiting now", slog.String("signal", sig.String()))
				forceExit()

				return
			}

			logger.Info("shutting down, interrupt again to force", slog.String("signal", sig.String()))
			cancel()

			done = parent.Done()
		}
	}
}
