// Package emit provides poll.Sink implementations: newline-delimited JSON to
// a stream or file, HTTP webhooks, a websocket broadcast hub, and a fan-out
// over several sinks.
package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

// FilePerms applies to event files created by OpenFile.
const FilePerms = 0o600

// JSONLines writes one JSON object per event. Writes are serialized; when
// the underlying writer is a file it is fsynced before Emit returns, so a
// committed cursor never runs ahead of the events on disk.
type JSONLines struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	sync   func() error
}

// NewJSONLines writes to w (typically os.Stdout). The caller owns w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// OpenFile appends events to path, creating it and its directory.
func OpenFile(path string) (*JSONLines, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("emit: creating directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FilePerms)
	if err != nil {
		return nil, fmt.Errorf("emit: opening %s: %w", path, err)
	}

	return &JSONLines{w: f, closer: f, sync: f.Sync}, nil
}

// Emit implements poll.Sink.
func (j *JSONLines) Emit(ctx context.Context, ev poll.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("emit: encoding event %s: %w", ev.ID, err)
	}

	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("emit: writing event %s: %w", ev.ID, err)
	}

	if j.sync != nil {
		if err := j.sync(); err != nil {
			return fmt.Errorf("emit: syncing event %s: %w", ev.ID, err)
		}
	}

	return nil
}

// Close closes the file opened by OpenFile. No-op for NewJSONLines.
func (j *JSONLines) Close() error {
	if j.closer == nil {
		return nil
	}

	return j.closer.Close()
}
