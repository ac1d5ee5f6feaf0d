package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/emit"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

func newDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <source>...",
		Short: "Activate sources and emit a sample of recent items",
		Long: `Activate one or more sources. Each source emits up to sample_size of its
newest matching items so downstream consumers can see the event shape, then
becomes active. Deploying an already active source does nothing.

The cursor is not saved by deploy, so the first scheduled run still sees
every item.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDeploy,
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [source]...",
		Short: "Run one poll cycle for active sources",
		Long: `Run one scheduled poll for the named sources, or for every configured
source when none are named. New items are emitted to the configured sinks and
the cursor advances only after every event is delivered.`,
		RunE: runRun,
	}
}

// openEmitSession builds the configured sinks and a session that emits
// into them. The caller closes both.
func openEmitSession(ctx context.Context, cfg *config.Config, out io.Writer, hub *emit.Hub, logger *slog.Logger) (*Session, *sinkSet, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	sinks, err := buildSinks(cfg, out, hub, httpClient, logger)
	if err != nil {
		return nil, nil, err
	}

	sess, err := NewSession(ctx, cfg, sinks.sink, logger)
	if err != nil {
		sinks.Close()

		return nil, nil, err
	}

	return sess, sinks, nil
}

func runDeploy(cmd *cobra.Command, args []string) error {
	return runEach(cmd, args, func(ctx context.Context, src *poll.Source) (*poll.RunReport, error) {
		return src.Activate(ctx)
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	return runEach(cmd, args, func(ctx context.Context, src *poll.Source) (*poll.RunReport, error) {
		return src.Run(ctx)
	})
}

// runEach builds the named sources and runs fn on each in order. A failing
// source does not stop the others; all failures are returned joined.
func runEach(cmd *cobra.Command, names []string, fn func(context.Context, *poll.Source) (*poll.RunReport, error)) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	sess, sinks, err := openEmitSession(ctx, resolvedCfg, cmd.OutOrStdout(), nil, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()
	defer sess.Close()

	sources, err := sess.BuildAll(ctx, names)
	if err != nil {
		return err
	}

	var errs []error

	for _, src := range sources {
		rep, err := fn(ctx, src)
		if err != nil {
			errs = append(errs, explainRunError(src.Name(), err))

			continue
		}

		statusf("%s\n", describeReport(rep))
	}

	return errors.Join(errs...)
}

// describeReport renders a one-line summary of a finished run.
func describeReport(rep *poll.RunReport) string {
	switch {
	case rep.AlreadyActive:
		return fmt.Sprintf("%s: already active", rep.Source)
	case rep.Primed:
		return fmt.Sprintf("%s: cursor primed, %d existing items skipped", rep.Source, rep.Discovered)
	case rep.Kind == poll.RunDeploy:
		return fmt.Sprintf("%s: activated, %d sample events emitted", rep.Source, rep.Emitted)
	default:
		return fmt.Sprintf("%s: %d new, %d already seen (%d pages, %s)",
			rep.Source, rep.Emitted, rep.Skipped, rep.Pages, rep.Duration.Round(time.Millisecond))
	}
}

func explainRunError(name string, err error) error {
	if errors.Is(err, poll.ErrNotActivated) {
		return fmt.Errorf("%w; run 'pipedream deploy %s' first", err, name)
	}

	return err
}
