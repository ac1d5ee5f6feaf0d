package main

import (
	"log/slog"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/emit"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <source>",
		Short: "Forget a source's cursor and seen items",
		Long: `Drop the cursor, seen window and folder index of a source and return it
to the unconfigured state. The next deploy samples again and the next run
walks the whole scope, so previously emitted items may be emitted again.

If a watch daemon is running it receives a SIGHUP and re-activates the source.`,
		Args: cobra.ExactArgs(1),
		RunE: runReset,
	}
}

func runReset(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	name := args[0]

	sess, err := NewSession(ctx, resolvedCfg, emit.Multi(nil), logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	_, pc, err := sess.Provider(ctx, name)
	if err != nil {
		return err
	}

	if err := sess.Store.Reset(ctx, name, pc.Scope.Key()); err != nil {
		return err
	}

	statusf("Source %s reset.\n", name)

	// A running daemon still holds the source as active in memory.
	if err := signalDaemon(resolvedCfg.PIDPath(), syscall.SIGHUP); err != nil {
		logger.Debug("daemon not notified", slog.String("error", err.Error()))
	} else {
		statusf("Notified running watch daemon.\n")
	}

	return nil
}
