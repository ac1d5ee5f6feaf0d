package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override layers
// (defaults -> file -> env -> CLI) have been applied. Secrets are masked.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	if cfg.Path != "" {
		ew.printf("# Effective configuration from %s\n\n", cfg.Path)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	renderGlobalSection(ew, cfg)
	renderEmitSection(ew, &cfg.Emit)
	renderAccountSections(ew, cfg)

	for _, name := range cfg.SourceNames() {
		s := cfg.Sources[name]
		renderSourceSection(ew, name, &s)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderGlobalSection(ew *errWriter, cfg *Config) {
	ew.printf("log_level       = %q\n", cfg.LogLevel)
	ew.printf("log_format      = %q\n", cfg.LogFormat)
	ew.printf("state_db        = %q\n", cfg.StatePath())
	ew.printf("poll_interval   = %q\n", cfg.PollInterval)
	ew.printf("connect_timeout = %q\n", cfg.ConnectTimeout)
	ew.printf("data_timeout    = %q\n", cfg.DataTimeout)

	if cfg.UserAgent != "" {
		ew.printf("user_agent      = %q\n", cfg.UserAgent)
	}

	ew.printf("\n")
}

func renderEmitSection(ew *errWriter, e *EmitConfig) {
	ew.printf("[emit]\n")
	ew.printf("  stdout      = %t\n", e.Stdout)

	if e.File != "" {
		ew.printf("  file        = %q\n", e.File)
	}

	if e.WebhookURL != "" {
		ew.printf("  webhook_url = %q\n", e.WebhookURL)
	}

	if e.Listen != "" {
		ew.printf("  listen      = %q\n", e.Listen)
	}

	ew.printf("\n")
}

func renderAccountSections(ew *errWriter, cfg *Config) {
	ew.printf("[onedrive]\n")

	if cfg.OneDrive.ClientID != "" {
		ew.printf("  client_id  = %q\n", cfg.OneDrive.ClientID)
	}

	ew.printf("  token_file = %q\n", cfg.OneDriveTokenPath())
	ew.printf("\n")

	ew.printf("[reddit]\n")
	ew.printf("  client_id     = %q\n", cfg.Reddit.ClientID)
	ew.printf("  client_secret = %q\n", mask(cfg.Reddit.ClientSecret))
	ew.printf("\n")
}

func renderSourceSection(ew *errWriter, name string, s *Source) {
	ew.printf("[source.%s]\n", name)
	ew.printf("  type                  = %q\n", s.Type)
	ew.printf("  poll_interval         = %q\n", s.PollInterval)
	ew.printf("  start                 = %q\n", s.Start)
	ew.printf("  sample_size           = %d\n", s.SampleSize)
	ew.printf("  seen_window           = %d\n", s.SeenWindow)
	ew.printf("  number_of_parents     = %d\n", s.NumberOfParents)
	ew.printf("  include_scope_details = %t\n", s.IncludeScopeDetails)

	if len(s.TypeFilter) > 0 {
		ew.printf("  type_filter           = [%s]\n", joinQuoted(s.TypeFilter))
	}

	switch s.Type {
	case TypeOneDrive:
		if s.DriveID != "" {
			ew.printf("  drive_id              = %q\n", s.DriveID)
		}

		if s.FolderID != "" {
			ew.printf("  folder_id             = %q\n", s.FolderID)
		} else {
			ew.printf("  folder                = %q\n", s.Folder)
		}

		ew.printf("  recursive             = %t\n", s.IsRecursive())
		ew.printf("  traversal             = %q\n", traversalOrDefault(s.Traversal))
	case TypeReddit:
		ew.printf("  subreddit             = %q\n", s.Subreddit)
		ew.printf("  post                  = %q\n", s.Post)
		ew.printf("  depth                 = %d\n", s.Depth)

		if s.Limit > 0 {
			ew.printf("  limit                 = %d\n", s.Limit)
		}
	}

	ew.printf("\n")
}

func traversalOrDefault(t string) string {
	if t == "" {
		return "delta"
	}

	return t
}

// Redacted returns a shallow copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Reddit.ClientSecret = mask(c.Reddit.ClientSecret)

	return &out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return "********"
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
