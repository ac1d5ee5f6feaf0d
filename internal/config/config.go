// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for pipedream. Values follow a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags. Each [source.<name>] table configures one watched source.
package config

import "time"

// Source types.
const (
	TypeOneDrive = "onedrive"
	TypeReddit   = "reddit"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	StateDB        string `toml:"state_db"`
	PollInterval   string `toml:"poll_interval"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`

	Emit     EmitConfig        `toml:"emit"`
	OneDrive OneDriveConfig    `toml:"onedrive"`
	Reddit   RedditConfig      `toml:"reddit"`
	Sources  map[string]Source `toml:"source"`

	// Path is the file the configuration was read from. Empty when running
	// on defaults.
	Path string `toml:"-"`
}

// EmitConfig selects where events go. Several sinks may be active at once.
type EmitConfig struct {
	Stdout     bool   `toml:"stdout"`
	File       string `toml:"file"`
	WebhookURL string `toml:"webhook_url"`

	// Listen is the address of the websocket event stream served by watch.
	Listen string `toml:"listen"`
}

// OneDriveConfig holds the Microsoft account settings.
type OneDriveConfig struct {
	ClientID  string `toml:"client_id"`
	TokenFile string `toml:"token_file"`
}

// RedditConfig holds the Reddit application credentials.
type RedditConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Source configures one watched source. Provider-specific keys are ignored
// by the other provider.
type Source struct {
	Type string `toml:"type"`

	PollInterval        string   `toml:"poll_interval"`
	Start               string   `toml:"start"`
	SampleSize          int      `toml:"sample_size"`
	SeenWindow          int      `toml:"seen_window"`
	TypeFilter          []string `toml:"type_filter"`
	NumberOfParents     int      `toml:"number_of_parents"`
	IncludeScopeDetails bool     `toml:"include_scope_details"`

	// OneDrive.
	DriveID   string `toml:"drive_id"`
	Folder    string `toml:"folder"`
	FolderID  string `toml:"folder_id"`
	Recursive *bool  `toml:"recursive"`
	Traversal string `toml:"traversal"`

	// Reddit.
	Subreddit string `toml:"subreddit"`
	Post      string `toml:"post"`
	Depth     int    `toml:"depth"`
	Limit     int    `toml:"limit"`
}

// IsRecursive reports whether a OneDrive source watches the whole folder
// tree. Defaults to true.
func (s *Source) IsRecursive() bool {
	return s.Recursive == nil || *s.Recursive
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string
	StateDB    *string
	LogLevel   *string
}

// Durations are the parsed forms of the global duration settings.
type Durations struct {
	PollInterval   time.Duration
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
}
