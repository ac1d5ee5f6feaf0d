package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/emit"
	"github.com/Akhilkandikonda/pipedream/internal/state"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources and their state",
		Long: `Display every configured source with its lifecycle, when its cursor was
last saved, how many ids its seen window holds, and the outcome of its last run.

OneDrive scopes are resolved against the API to find the stored cursor; a
source whose scope cannot be resolved is listed with the error.`,
		Args: cobra.NoArgs,
		RunE: runSources,
	}
}

// sourceRow is the JSON schema for `sources --json`.
type sourceRow struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Scope       string     `json:"scope,omitempty"`
	Lifecycle   string     `json:"lifecycle"`
	CursorSaved *time.Time `json:"cursor_saved,omitempty"`
	SeenCount   int        `json:"seen_count"`
	LastRun     *lastRun   `json:"last_run,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type lastRun struct {
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Emitted   int       `json:"emitted"`
	Error     string    `json:"error,omitempty"`
}

func runSources(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	sess, err := NewSession(ctx, resolvedCfg, emit.Multi(nil), logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	rows := collectSourceRows(ctx, sess, logger)

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), rows)
	}

	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No sources configured. Add a [source.<name>] table to %s.\n", resolvedCfg.Path)

		return nil
	}

	printSourcesTable(cmd.OutOrStdout(), rows, time.Now())

	return nil
}

func collectSourceRows(ctx context.Context, sess *Session, logger *slog.Logger) []sourceRow {
	names := sess.Config.SourceNames()
	rows := make([]sourceRow, 0, len(names))

	for _, name := range names {
		row := sourceRow{Name: name, Type: sess.Config.Sources[name].Type}

		// Status only needs the scope key; an unresolvable scope still has a
		// lifecycle and a run journal.
		_, pc, err := sess.Provider(ctx, name)
		if err != nil {
			logger.Debug("scope unavailable", slog.String("source", name), slog.String("error", err.Error()))
			row.Error = err.Error()
		} else {
			row.Scope = pc.Scope.Key()
		}

		st, err := sess.Store.Status(ctx, name, row.Scope)
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)

			continue
		}

		fillStatus(&row, st)
		rows = append(rows, row)
	}

	return rows
}

func fillStatus(row *sourceRow, st *state.SourceStatus) {
	row.Lifecycle = string(st.Lifecycle)
	row.SeenCount = st.SeenCount

	if !st.CursorSaved.IsZero() {
		saved := st.CursorSaved
		row.CursorSaved = &saved
	}

	if st.LastRun != nil {
		row.LastRun = &lastRun{
			Kind:      string(st.LastRun.Kind),
			Status:    st.LastRun.Status,
			StartedAt: st.LastRun.StartedAt,
			Emitted:   st.LastRun.Emitted,
			Error:     st.LastRun.Error,
		}
	}
}

func printSourcesTable(w io.Writer, rows []sourceRow, now time.Time) {
	table := make([][]string, 0, len(rows))

	for i := range rows {
		r := &rows[i]

		saved := "never"
		if r.CursorSaved != nil {
			saved = formatTime(*r.CursorSaved, now)
		}

		last := "-"
		if r.LastRun != nil {
			last = fmt.Sprintf("%s %s (%d emitted) %s",
				r.LastRun.Kind, r.LastRun.Status, r.LastRun.Emitted, formatAge(r.LastRun.StartedAt, now))
		}

		if r.Error != "" {
			last = "error: " + r.Error
		}

		table = append(table, []string{r.Name, r.Type, r.Lifecycle, saved, humanize.Comma(int64(r.SeenCount)), last})
	}

	printTable(w, []string{"NAME", "TYPE", "STATE", "CURSOR SAVED", "SEEN", "LAST RUN"}, table)
}
