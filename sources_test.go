package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
	"github.com/Akhilkandikonda/pipedream/internal/state"
)

func TestCollectSourceRows(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources["invoices"] = config.Source{Type: config.TypeOneDrive, Folder: "/Invoices"}

	sess := newTestSession(t, cfg, nil)
	ctx := context.Background()

	require.NoError(t, sess.Store.SetLifecycle(ctx, "golang", poll.Active))

	rows := collectSourceRows(ctx, sess, testLogger(t))
	require.Len(t, rows, 2)

	golang, invoices := rows[0], rows[1]

	assert.Equal(t, "golang", golang.Name)
	assert.Equal(t, "reddit:resource:golang/t3_abc", golang.Scope)
	assert.Equal(t, string(poll.Active), golang.Lifecycle)
	assert.Nil(t, golang.CursorSaved)
	assert.Empty(t, golang.Error)

	assert.Equal(t, "invoices", invoices.Name)
	assert.Empty(t, invoices.Scope)
	assert.Equal(t, string(poll.Unconfigured), invoices.Lifecycle, "lifecycle shown without a scope")
	assert.Contains(t, invoices.Error, "login")
}

func TestPrintSourcesTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saved := now.Add(-3 * time.Minute)

	rows := []sourceRow{
		{
			Name: "golang", Type: "reddit", Lifecycle: "active", CursorSaved: &saved, SeenCount: 4,
			LastRun: &lastRun{Kind: "schedule", Status: "ok", StartedAt: now.Add(-2 * time.Hour), Emitted: 2},
		},
		{Name: "invoices", Type: "onedrive", Lifecycle: "unconfigured", Error: "not logged in"},
	}

	var buf bytes.Buffer
	printSourcesTable(&buf, rows, now)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "Mar  1 11:57")
	assert.Contains(t, lines[1], "schedule ok (2 emitted) 2 hours ago")
	assert.Contains(t, lines[2], "never")
	assert.Contains(t, lines[2], "error: not logged in")
}

func TestResetCommand(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	dir := t.TempDir()
	db := filepath.Join(dir, "state.db")
	path := writeConfig(t, "state_db = \""+db+"\"\n"+redditConfig)

	ctx := context.Background()
	scope := "reddit:resource:golang/t3_abc"

	store, err := state.Open(ctx, db, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.SetLifecycle(ctx, "golang", poll.Active))
	require.NoError(t, store.Close())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--quiet", "reset", "golang"})
	require.NoError(t, cmd.Execute())

	store, err = state.Open(ctx, db, testLogger(t))
	require.NoError(t, err)
	defer store.Close()

	st, err := store.Status(ctx, "golang", scope)
	require.NoError(t, err)
	assert.Equal(t, poll.Unconfigured, st.Lifecycle)
}

func TestResetCommand_UnknownSource(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	path := writeConfig(t, "state_db = \""+filepath.Join(t.TempDir(), "state.db")+"\"\n")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--quiet", "reset", "missing"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, poll.ErrConfiguration)
}
