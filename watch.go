package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/emit"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

const (
	// reloadDebounce coalesces the burst of events editors produce when
	// saving (write, rename, chmod).
	reloadDebounce = 500 * time.Millisecond

	// serverShutdownTimeout bounds how long the event stream server waits
	// for subscribers on shutdown.
	serverShutdownTimeout = 5 * time.Second

	eventsPath = "/events"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll every configured source continuously",
		Long: `Run as a daemon: every source is activated if needed and then polled on
its own interval. Sources run concurrently; a failing source backs off
without affecting the others.

The daemon reloads its configuration when the config file changes or when it
receives SIGHUP. SIGUSR1, sent by "pipedream poll", polls every source
immediately. With --listen (or emit.listen), events are also streamed to
websocket clients connected to ws://<addr>/events.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().String("listen", "", "serve the websocket event stream on this address")

	return cmd
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Ask the running watch daemon to poll every source now",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := signalDaemon(resolvedCfg.PIDPath(), syscall.SIGUSR1); err != nil {
				return err
			}

			statusf("Poll requested.\n")

			return nil
		},
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	lock, err := acquireDaemonLock(resolvedCfg.PIDPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	holder := config.NewHolder(resolvedCfg, resolvedCfg.Path)

	listen := resolvedCfg.Emit.Listen
	if cmd.Flags().Changed("listen") {
		listen, _ = cmd.Flags().GetString("listen")
	}

	var hub *emit.Hub

	if listen != "" {
		hub = emit.NewHub(logger)
		defer hub.Close()

		stop, err := serveEvents(listen, hub, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	reload := make(chan struct{}, 1)

	go watchConfigFile(ctx, holder.Path(), reload, logger)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	d := &daemon{holder: holder, hub: hub, pollNow: usr1, out: cmd.OutOrStdout(), logger: logger}

	return d.run(ctx, reload, hup)
}

// daemon restarts the scheduler whenever the configuration is reloaded.
type daemon struct {
	holder  *config.Holder
	hub     *emit.Hub
	pollNow <-chan os.Signal
	out     io.Writer
	logger  *slog.Logger
}

func (d *daemon) run(ctx context.Context, reload <-chan struct{}, hup <-chan os.Signal) error {
	for {
		cycleCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)

		go func(cfg *config.Config) {
			done <- d.cycle(cycleCtx, cfg)
		}(d.holder.Config())

		restart, err := d.waitForReload(ctx, done, reload, hup)

		cancel()

		if restart {
			<-done

			continue
		}

		return err
	}
}

// waitForReload blocks until the scheduler exits, ctx ends, or a reload
// produced a new valid configuration. restart reports the last case.
func (d *daemon) waitForReload(ctx context.Context, done <-chan error, reload <-chan struct{}, hup <-chan os.Signal) (restart bool, err error) {
	for {
		select {
		case <-ctx.Done():
			<-done

			return false, nil
		case err := <-done:
			return false, err
		case <-reload:
		case sig := <-hup:
			d.logger.Info("received signal, reloading configuration", slog.String("signal", sig.String()))
		}

		cfg, err := d.holder.Reload(config.ReadEnvOverrides(), resolvedCLI)
		if err != nil {
			d.logger.Error("config reload failed, keeping current configuration",
				slog.String("error", err.Error()),
			)

			continue
		}

		d.logger.Info("configuration reloaded",
			slog.Int("sources", len(cfg.Sources)),
			slog.Uint64("generation", d.holder.Generation()),
		)

		return true, nil
	}
}

// cycle builds every source from cfg and schedules them until ctx ends.
func (d *daemon) cycle(ctx context.Context, cfg *config.Config) error {
	durations, err := cfg.Durations()
	if err != nil {
		return err
	}

	sess, sinks, err := openEmitSession(ctx, cfg, d.out, d.hub, d.logger)
	if err != nil {
		return err
	}
	defer sinks.Close()
	defer sess.Close()

	schedules := make([]poll.Schedule, 0, len(cfg.Sources))
	names := make([]string, 0, len(cfg.Sources))

	for _, name := range cfg.SourceNames() {
		src, err := sess.Build(ctx, name)
		if err != nil {
			d.logger.Error("source not scheduled",
				slog.String("source", name),
				slog.String("error", err.Error()),
			)

			continue
		}

		s := cfg.Sources[name]
		schedules = append(schedules, poll.Schedule{Runner: src, Interval: s.Interval(durations.PollInterval)})
		names = append(names, name)
	}

	if len(schedules) == 0 {
		d.idle(ctx, "no sources scheduled")

		return nil
	}

	sched := poll.NewScheduler(schedules, d.logger)
	sched.OnReport = func(rep *poll.RunReport) {
		if rep.Err == nil {
			d.logger.Info(describeReport(rep))
		}
	}

	go d.forwardPollRequests(ctx, sched, names)

	return d.supervise(ctx, sched)
}

// supervise runs sched until ctx ends. When every source has stopped on its
// own the daemon stays up, waiting for a reload like a cycle with no sources.
func (d *daemon) supervise(ctx context.Context, sched *poll.Scheduler) error {
	if err := sched.Run(ctx); err != nil {
		return err
	}

	if ctx.Err() == nil {
		d.idle(ctx, "every source stopped")
	}

	return nil
}

func (d *daemon) idle(ctx context.Context, reason string) {
	d.logger.Warn(reason+"; waiting for a configuration change")
	<-ctx.Done()
}

// forwardPollRequests triggers every scheduled source when the daemon is
// asked to poll now.
func (d *daemon) forwardPollRequests(ctx context.Context, sched *poll.Scheduler, names []string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.pollNow:
			d.logger.Info("poll requested", slog.Int("sources", len(names)))

			for _, name := range names {
				sched.Trigger(name)
			}
		}
	}
}

// serveEvents starts the websocket event stream. The returned stop function
// shuts the server down.
func serveEvents(addr string, hub *emit.Hub, logger *slog.Logger) (stop func(), err error) {
	mux := http.NewServeMux()
	mux.Handle(eventsPath, hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// Surface bind errors before the daemon starts polling.
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("serving event stream on %s: %w", addr, err)
	case <-time.After(100 * time.Millisecond):
	}

	logger.Info("event stream listening", slog.String("url", "ws://"+addr+eventsPath))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("event stream shutdown", slog.String("error", err.Error()))
		}
	}, nil
}

// watchConfigFile signals reload when the config file is written, created or
// replaced. The parent directory is watched because editors save by rename.
func watchConfigFile(ctx context.Context, path string, reload chan<- struct{}, logger *slog.Logger) {
	if path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))

		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("config watch unavailable", slog.String("dir", dir), slog.String("error", err.Error()))

		return
	}

	logger.Debug("watching config file", slog.String("path", path))

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			logger.Warn("config watch error", slog.String("error", err.Error()))
		case <-debounce:
			debounce = nil

			select {
			case reload <- struct{}{}:
			default:
			}
		}
	}
}
