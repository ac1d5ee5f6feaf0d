package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultDirs_NonEmpty(t *testing.T) {
	assert.Contains(t, DefaultConfigDir(), appName)
	assert.Contains(t, DefaultDataDir(), appName)
	assert.True(t, strings.HasSuffix(DefaultConfigPath(), "config.toml"))
	assert.True(t, strings.HasSuffix(DefaultStatePath(), "state.db"))
}

func TestDefaultDirs_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
	assert.Contains(t, DefaultDataDir(), "Library/Application Support")
}

func TestXDGDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, filepath.Join("/custom/data", appName), xdgDir("XDG_DATA_HOME", "/fallback"))

	t.Setenv("XDG_DATA_HOME", "")
	assert.Equal(t, filepath.Join("/fallback", appName), xdgDir("XDG_DATA_HOME", "/fallback"))
}

func TestLinuxDataDir_XDGOverride(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("linux-only test")
	}

	t.Setenv("XDG_DATA_HOME", "/srv/xdg")
	assert.Equal(t, "/srv/xdg/pipedream/state.db", DefaultStatePath())
	assert.Equal(t, "/srv/xdg/pipedream/tokens/onedrive.json", DefaultTokenPath(TypeOneDrive))
	assert.Equal(t, "/srv/xdg/pipedream/watch.pid", DefaultPIDPath())
}

func TestConfig_PathsFollowStateDB(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDB = "/data/pd/state.db"
	cfg.OneDrive.TokenFile = "/secrets/od.json"

	assert.Equal(t, "/data/pd/state.db", cfg.StatePath())
	assert.Equal(t, "/data/pd/watch.pid", cfg.PIDPath())
	assert.Equal(t, "/secrets/od.json", cfg.OneDriveTokenPath())
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/testuser")

	assert.Equal(t, "/home/testuser/state.db", expandHome("~/state.db"))
	assert.Equal(t, "/abs/state.db", expandHome("/abs/state.db"))
	assert.Equal(t, "~", expandHome("~"))
}
