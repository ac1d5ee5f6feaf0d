package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/emit"
)

// sinkSet is the event fan-out built from [emit] plus whatever must be
// closed when the command finishes.
type sinkSet struct {
	sink    emit.Multi
	closers []io.Closer
}

// Close closes file sinks.
func (s *sinkSet) Close() error {
	var errs []error

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// buildSinks creates the sinks named by cfg.Emit. stdout receives JSON lines
// when enabled; hub, when non-nil, is added for the watch daemon.
func buildSinks(cfg *config.Config, stdout io.Writer, hub *emit.Hub, httpClient *http.Client, logger *slog.Logger) (*sinkSet, error) {
	set := &sinkSet{}

	if cfg.Emit.Stdout {
		set.sink = append(set.sink, emit.NewJSONLines(stdout))
	}

	if cfg.Emit.File != "" {
		f, err := emit.OpenFile(cfg.Emit.File)
		if err != nil {
			return nil, fmt.Errorf("opening event file: %w", err)
		}

		set.sink = append(set.sink, f)
		set.closers = append(set.closers, f)
	}

	if cfg.Emit.WebhookURL != "" {
		set.sink = append(set.sink, emit.NewWebhook(cfg.Emit.WebhookURL, httpClient, cfg.UserAgent, logger))
	}

	// The hub outlives config reloads; its owner closes it.
	if hub != nil {
		set.sink = append(set.sink, hub)
	}

	if len(set.sink) == 0 {
		logger.Warn("no event sinks enabled; events will be dropped",
			slog.String("hint", "set emit.stdout, emit.file or emit.webhook_url"))
	}

	return set, nil
}
