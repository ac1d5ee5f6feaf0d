package config

// Default values for configuration options: layer 0 of the override chain.
const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultPollInterval   = "5m"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultStart          = "backfill"
	defaultSampleSize     = 10
	defaultSeenWindow     = 1000
	defaultRedditDepth    = 1
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
		PollInterval:   defaultPollInterval,
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
		Emit:           EmitConfig{Stdout: true},
		Sources:        make(map[string]Source),
	}
}

// applySourceDefaults fills per-source defaults that TOML decoding into a
// map cannot pre-populate.
func applySourceDefaults(cfg *Config) {
	for name, s := range cfg.Sources {
		if s.Start == "" {
			s.Start = defaultStart
		}

		if s.SampleSize == 0 {
			s.SampleSize = defaultSampleSize
		}

		if s.SeenWindow == 0 {
			s.SeenWindow = defaultSeenWindow
		}

		if s.PollInterval == "" {
			s.PollInterval = cfg.PollInterval
		}

		if s.Type == TypeReddit && s.Depth == 0 {
			s.Depth = defaultRedditDepth
		}

		cfg.Sources[name] = s
	}
}
