package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/emit"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

func TestWatchConfigFile_SignalsReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reload := make(chan struct{}, 1)
	go watchConfigFile(ctx, path, reload, testLogger(t))

	// The watcher registers asynchronously; keep writing until it notices.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-reload:
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o600))
		case <-deadline:
			t.Fatal("no reload signaled within 5 seconds")
		}
	}
}

func TestWatchConfigFile_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reload := make(chan struct{}, 1)
	go watchConfigFile(ctx, path, reload, testLogger(t))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.db"), []byte("x"), 0o600))

	select {
	case <-reload:
		t.Fatal("reload signaled for an unrelated file")
	case <-time.After(2 * reloadDebounce):
	}
}

func TestWatchConfigFile_NoPath(t *testing.T) {
	reload := make(chan struct{}, 1)

	// Returns immediately when running on defaults.
	watchConfigFile(context.Background(), "", reload, testLogger(t))
	assert.Empty(t, reload)
}

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

func TestServeEvents_HealthAndStream(t *testing.T) {
	hub := emit.NewHub(testLogger(t))
	defer hub.Close()

	addr := freeAddr(t)

	stop, err := serveEvents(addr, hub, testLogger(t))
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+addr+eventsPath, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Emit(ctx, poll.Event{ID: "t1_c9", Summary: "streamed"}))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"t1_c9"`)
}

func TestServeEvents_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	hub := emit.NewHub(testLogger(t))
	defer hub.Close()

	_, err = serveEvents(ln.Addr().String(), hub, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serving event stream")
}

// writeDaemonConfig writes a source-less config whose state lives next to
// it. extra holds global keys.
func writeDaemonConfig(t *testing.T, path, extra string) {
	t.Helper()

	content := extra + "state_db = \"" + filepath.Join(filepath.Dir(path), "state.db") + "\"\n" +
		"[emit]\nstdout = false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTestDaemon(t *testing.T) (*daemon, string) {
	t.Helper()
	saveGlobals(t)
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	writeDaemonConfig(t, path, "")

	cfg, err := config.Resolve(config.EnvOverrides{}, config.CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	resolvedCLI = config.CLIOverrides{ConfigPath: path}

	return &daemon{
		holder: config.NewHolder(cfg, path),
		out:    &bytes.Buffer{},
		logger: testLogger(t),
	}, path
}

func TestDaemon_CycleWithoutSourcesWaits(t *testing.T) {
	d, _ := newTestDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.NoError(t, d.cycle(ctx, d.holder.Config()))
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

// misconfiguredRunner fails activation with a non-retryable error.
type misconfiguredRunner struct{}

func (misconfiguredRunner) Name() string { return "broken" }

func (misconfiguredRunner) Activate(context.Context) (*poll.RunReport, error) {
	return nil, poll.ErrConfiguration
}

func (misconfiguredRunner) Run(context.Context) (*poll.RunReport, error) {
	return nil, poll.ErrConfiguration
}

func TestDaemon_SuperviseWaitsWhenAllSourcesStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	sched := poll.NewScheduler([]poll.Schedule{{Runner: misconfiguredRunner{}, Interval: time.Hour}}, d.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.NoError(t, d.supervise(ctx, sched))
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded, "daemon stays up until shutdown or reload")
}

func TestDaemon_ReloadAppliesNewConfig(t *testing.T) {
	d, path := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reload := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() { done <- d.run(ctx, reload, nil) }()

	writeDaemonConfig(t, path, "log_level = \"debug\"\n")
	reload <- struct{}{}

	require.Eventually(t, func() bool { return d.holder.Config().LogLevel == "debug" },
		2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

func TestDaemon_InvalidReloadKeepsConfig(t *testing.T) {
	d, path := newTestDaemon(t)
	before := d.holder.Config()

	require.NoError(t, os.WriteFile(path, []byte("log_level = \"loud\"\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	reload := make(chan struct{}, 1)
	reload <- struct{}{}

	done := make(chan error, 1)

	go func() {
		<-ctx.Done()
		done <- nil
	}()

	restart, err := d.waitForReload(ctx, done, reload, nil)
	require.NoError(t, err)
	assert.False(t, restart)
	assert.Same(t, before, d.holder.Config())
}

// countingRunner counts scheduled runs.
type countingRunner struct {
	runs chan struct{}
}

func (r *countingRunner) Name() string { return "golang" }

func (r *countingRunner) Activate(context.Context) (*poll.RunReport, error) {
	return &poll.RunReport{Source: "golang", Kind: poll.RunDeploy}, nil
}

func (r *countingRunner) Run(context.Context) (*poll.RunReport, error) {
	r.runs <- struct{}{}

	return &poll.RunReport{Source: "golang", Kind: poll.RunSchedule}, nil
}

func TestDaemon_PollRequestTriggersSources(t *testing.T) {
	runner := &countingRunner{runs: make(chan struct{}, 4)}
	sched := poll.NewScheduler([]poll.Schedule{{Runner: runner, Interval: time.Hour}}, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pollNow := make(chan os.Signal, 1)
	d := &daemon{pollNow: pollNow, logger: testLogger(t)}

	go d.forwardPollRequests(ctx, sched, []string{"golang"})
	go func() { _ = sched.Run(ctx) }()

	pollNow <- os.Interrupt

	select {
	case <-runner.runs:
	case <-time.After(5 * time.Second):
		t.Fatal("poll request did not trigger a run")
	}
}

func TestPollCommand_NoDaemon(t *testing.T) {
	saveGlobals(t)
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	writeDaemonConfig(t, path, "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--quiet", "poll"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoDaemon)
}
