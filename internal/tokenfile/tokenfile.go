// Package tokenfile reads and writes OAuth2 token files. A token file holds
// the token plus a small metadata map (account name, drive id) cached at
// login so status commands work offline.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the tokens directory.
const DirPerms = 0o700

// File is the on-disk format for token files.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a saved token file from disk. Returns (nil, nil, nil) if the
// file does not exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
	}

	return tf.Token, tf.Meta, nil
}

// Save replaces the token file at path. The new content is written to a
// private temp file in the same directory, synced, then renamed over the
// old file, so a crash leaves either the old token or the new one.
func Save(path string, tok *oauth2.Token, meta map[string]string) (err error) {
	data, err := json.MarshalIndent(File{Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	steps := []struct {
		what string
		do   func() error
	}{
		{"setting permissions", func() error { return tmp.Chmod(FilePerms) }},
		{"writing", func() error {
			_, werr := tmp.Write(data)
			return werr
		}},
		{"syncing", tmp.Sync},
		{"closing", tmp.Close},
		{"renaming", func() error { return os.Rename(tmp.Name(), path) }},
	}

	for _, step := range steps {
		if err := step.do(); err != nil {
			return fmt.Errorf("tokenfile: %s: %w", step.what, err)
		}
	}

	return nil
}

// MergeMeta reads the current token file, merges meta into its metadata
// (new keys win), and saves it.
func MergeMeta(path string, meta map[string]string) error {
	tok, existing, err := Load(path)
	if err != nil {
		return err
	}

	if tok == nil {
		return fmt.Errorf("tokenfile: no token file at %s", path)
	}

	if existing == nil {
		existing = make(map[string]string, len(meta))
	}

	maps.Copy(existing, meta)

	return Save(path, tok, existing)
}

// SavingSource wraps a refreshing token source and writes every new token
// back to disk, so a refresh token rotated by the server is never lost.
type SavingSource struct {
	path   string
	meta   map[string]string
	src    oauth2.TokenSource
	logger *slog.Logger

	mu   sync.Mutex
	last string // access token last written
}

// NewSavingSource returns a SavingSource over src. current is the token
// already on disk.
func NewSavingSource(path string, meta map[string]string, src oauth2.TokenSource, current *oauth2.Token, logger *slog.Logger) *SavingSource {
	s := &SavingSource{path: path, meta: meta, src: src, logger: logger}
	if current != nil {
		s.last = current.AccessToken
	}

	return s
}

// Token implements oauth2.TokenSource. A failed save is logged, not
// returned: the in-memory token is still valid.
func (s *SavingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken == s.last {
		return tok, nil
	}

	if err := Save(s.path, tok, s.meta); err != nil {
		s.logger.Warn("failed to persist refreshed token",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)

		return tok, nil
	}

	s.last = tok.AccessToken
	s.logger.Info("persisted refreshed token",
		slog.String("path", s.path),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}
