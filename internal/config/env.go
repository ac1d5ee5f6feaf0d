package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig             = "PIPEDREAM_CONFIG"
	EnvStateDB            = "PIPEDREAM_STATE_DB"
	EnvRedditClientID     = "PIPEDREAM_REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "PIPEDREAM_REDDIT_CLIENT_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath         string
	StateDB            string
	RedditClientID     string
	RedditClientSecret string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Secrets can live in the environment instead of the config file.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:         os.Getenv(EnvConfig),
		StateDB:            os.Getenv(EnvStateDB),
		RedditClientID:     os.Getenv(EnvRedditClientID),
		RedditClientSecret: os.Getenv(EnvRedditClientSecret),
	}
}
