package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/emit"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

func TestBuildSinks_StdoutAndFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Emit.File = filepath.Join(t.TempDir(), "events", "out.jsonl")

	var stdout bytes.Buffer

	set, err := buildSinks(cfg, &stdout, nil, nil, testLogger(t))
	require.NoError(t, err)
	require.Len(t, set.sink, 2)

	require.NoError(t, set.sink.Emit(context.Background(), poll.Event{ID: "t1_c1", Summary: "hello"}))
	require.NoError(t, set.Close())

	assert.Contains(t, stdout.String(), `"id":"t1_c1"`)

	data, err := os.ReadFile(cfg.Emit.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"summary":"hello"`)
}

func TestBuildSinks_WebhookAndHub(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Emit.Stdout = false
	cfg.Emit.WebhookURL = "https://hooks.example.com/in"

	hub := emit.NewHub(testLogger(t))
	defer hub.Close()

	set, err := buildSinks(cfg, nil, hub, nil, testLogger(t))
	require.NoError(t, err)
	require.Len(t, set.sink, 2)
	assert.Empty(t, set.closers, "hub is closed by its owner")
}

func TestBuildSinks_NoneEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Emit.Stdout = false

	set, err := buildSinks(cfg, nil, nil, nil, testLogger(t))
	require.NoError(t, err)
	assert.Empty(t, set.sink)
	assert.NoError(t, set.sink.Emit(context.Background(), poll.Event{ID: "dropped"}))
}

func TestBuildSinks_FileError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := config.DefaultConfig()
	cfg.Emit.File = filepath.Join(blocker, "out.jsonl")

	_, err := buildSinks(cfg, &bytes.Buffer{}, nil, nil, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening event file")
}
