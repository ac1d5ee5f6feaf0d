package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

// SourceNames returns the configured source names in sorted order.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Source looks up a source by name.
func (c *Config) Source(name string) (Source, error) {
	s, ok := c.Sources[name]
	if !ok {
		return Source{}, fmt.Errorf("%w: no source named %q in %s", poll.ErrConfiguration, name, c.displayPath())
	}

	return s, nil
}

func (c *Config) displayPath() string {
	if c.Path == "" {
		return "configuration"
	}

	return c.Path
}

// Durations parses the global duration settings. Validate has already
// checked them, so errors here mean the config was built by hand.
func (c *Config) Durations() (Durations, error) {
	var d Durations

	var err error

	if d.PollInterval, err = time.ParseDuration(c.PollInterval); err != nil {
		return d, fmt.Errorf("poll_interval: %w", err)
	}

	if d.ConnectTimeout, err = time.ParseDuration(c.ConnectTimeout); err != nil {
		return d, fmt.Errorf("connect_timeout: %w", err)
	}

	if d.DataTimeout, err = time.ParseDuration(c.DataTimeout); err != nil {
		return d, fmt.Errorf("data_timeout: %w", err)
	}

	return d, nil
}

// Interval returns the source's poll interval, falling back to fallback
// when unset or unparsable.
func (s *Source) Interval(fallback time.Duration) time.Duration {
	if s.PollInterval == "" {
		return fallback
	}

	d, err := time.ParseDuration(s.PollInterval)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

// PollConfig maps the source onto a poll.SourceConfig. The scope is left
// empty: resolving it needs the provider.
func (s *Source) PollConfig(name string) (poll.SourceConfig, error) {
	start, err := poll.ParseStartMode(s.Start)
	if err != nil {
		return poll.SourceConfig{}, fmt.Errorf("%w: source %q: %w", poll.ErrConfiguration, name, err)
	}

	kinds := []poll.ItemKind{poll.KindComment}
	if s.Type == TypeOneDrive {
		kinds = []poll.ItemKind{poll.KindFile}
	}

	return poll.SourceConfig{
		Name:                name,
		Kinds:               kinds,
		TypeFilter:          s.TypeFilter,
		NumberOfParents:     s.NumberOfParents,
		IncludeScopeDetails: s.IncludeScopeDetails,
		Start:               start,
		SampleSize:          s.SampleSize,
		SeenBound:           s.SeenWindow,
	}, nil
}
