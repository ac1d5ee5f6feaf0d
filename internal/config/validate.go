package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
	"github.com/Akhilkandikonda/pipedream/internal/provider"
)

// Validation range constants.
const (
	minPollInterval   = 30 * time.Second
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	maxRedditDepth    = 10
	maxRedditLimit    = 500
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogLevel(cfg.LogLevel)...)
	errs = append(errs, validateLogFormat(cfg.LogFormat)...)
	errs = append(errs, validateDurationMin("poll_interval", cfg.PollInterval, minPollInterval)...)
	errs = append(errs, validateDurationMin("connect_timeout", cfg.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", cfg.DataTimeout, minDataTimeout)...)
	errs = append(errs, validateEmit(&cfg.Emit)...)

	for _, name := range cfg.SourceNames() {
		s := cfg.Sources[name]
		errs = append(errs, validateSource(name, &s)...)
	}

	return errors.Join(errs...)
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateEmit(e *EmitConfig) []error {
	if e.WebhookURL == "" {
		return nil
	}

	u, err := url.Parse(e.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("emit.webhook_url: must be an absolute http(s) URL, got %q", e.WebhookURL)}
	}

	return nil
}

func validateSource(name string, s *Source) []error {
	var errs []error

	field := func(key string) string {
		return "source." + name + "." + key
	}

	switch s.Type {
	case TypeOneDrive:
		errs = append(errs, validateOneDriveSource(field, s)...)
	case TypeReddit:
		errs = append(errs, validateRedditSource(field, s)...)
	default:
		errs = append(errs, fmt.Errorf("%s: must be one of onedrive, reddit; got %q", field("type"), s.Type))
	}

	if s.PollInterval != "" {
		if err := validateDuration(field("poll_interval"), s.PollInterval, minPollInterval); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := poll.ParseStartMode(s.Start); err != nil {
		errs = append(errs, fmt.Errorf("%s: must be backfill or now, got %q", field("start"), s.Start))
	}

	if s.NumberOfParents < poll.MinParents || s.NumberOfParents > poll.MaxParents {
		errs = append(errs, fmt.Errorf("%s: must be between %d and %d, got %d",
			field("number_of_parents"), poll.MinParents, poll.MaxParents, s.NumberOfParents))
	}

	if s.SampleSize < 0 {
		errs = append(errs, fmt.Errorf("%s: must be >= 0, got %d", field("sample_size"), s.SampleSize))
	}

	if s.SeenWindow < 0 {
		errs = append(errs, fmt.Errorf("%s: must be >= 0, got %d", field("seen_window"), s.SeenWindow))
	}

	return errs
}

func validateOneDriveSource(field func(string) string, s *Source) []error {
	var errs []error

	if s.Folder != "" && s.FolderID != "" {
		errs = append(errs, fmt.Errorf("%s and %s are mutually exclusive", field("folder"), field("folder_id")))
	}

	if s.FolderID != "" && s.DriveID == "" {
		errs = append(errs, fmt.Errorf("%s: requires %s", field("folder_id"), field("drive_id")))
	}

	if _, err := provider.ParseTraversal(s.Traversal); err != nil {
		errs = append(errs, fmt.Errorf("%s: must be delta or walk, got %q", field("traversal"), s.Traversal))
	}

	for _, t := range s.TypeFilter {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, fmt.Errorf("%s: entries must not be empty", field("type_filter")))

			break
		}
	}

	return errs
}

func validateRedditSource(field func(string) string, s *Source) []error {
	var errs []error

	if strings.TrimPrefix(s.Subreddit, "r/") == "" {
		errs = append(errs, fmt.Errorf("%s: required", field("subreddit")))
	}

	if s.Post != "" && strings.TrimPrefix(s.Post, "t3_") == "" {
		errs = append(errs, fmt.Errorf("%s: %q is not a post id", field("post"), s.Post))
	}

	if s.Depth < 0 || s.Depth > maxRedditDepth {
		errs = append(errs, fmt.Errorf("%s: must be between 0 and %d, got %d", field("depth"), maxRedditDepth, s.Depth))
	}

	if s.Limit < 0 || s.Limit > maxRedditLimit {
		errs = append(errs, fmt.Errorf("%s: must be between 0 and %d, got %d", field("limit"), maxRedditLimit, s.Limit))
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}
