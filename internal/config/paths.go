package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

const appName = "pipedream"

const (
	configFileName = "config.toml"
	stateFileName  = "state.db"
	pidFileName    = "watch.pid"
	tokenDirName   = "tokens"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/pipedream).
// On macOS, uses ~/Library/Application Support/pipedream.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the state
// database, tokens and the PID file. On Linux, respects XDG_DATA_HOME
// (defaults to ~/.local/share/pipedream).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func xdgDir(env, fallback string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(fallback, appName)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return inDir(DefaultConfigDir(), configFileName)
}

// DefaultStatePath returns the default state database path.
func DefaultStatePath() string {
	return inDir(DefaultDataDir(), stateFileName)
}

// DefaultPIDPath returns the PID file used to keep a single watch daemon
// per state database.
func DefaultPIDPath() string {
	return inDir(DefaultDataDir(), pidFileName)
}

// DefaultTokenPath returns the token file for a provider account.
func DefaultTokenPath(provider string) string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, tokenDirName, provider+".json")
}

func inDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}

// StatePath returns the configured state database path, or the default.
func (c *Config) StatePath() string {
	if c.StateDB != "" {
		return expandHome(c.StateDB)
	}

	return DefaultStatePath()
}

// OneDriveTokenPath returns the configured OneDrive token file, or the
// default.
func (c *Config) OneDriveTokenPath() string {
	if c.OneDrive.TokenFile != "" {
		return expandHome(c.OneDrive.TokenFile)
	}

	return DefaultTokenPath(TypeOneDrive)
}

// PIDPath places the PID file next to the state database so two daemons
// on different databases do not block each other.
func (c *Config) PIDPath() string {
	if c.StateDB == "" {
		return DefaultPIDPath()
	}

	return filepath.Join(filepath.Dir(c.StatePath()), pidFileName)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}

	return filepath.Join(home, p[2:])
}
