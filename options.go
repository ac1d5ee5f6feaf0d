package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/emit"
	"github.com/Akhilkandikonda/pipedream/internal/poll"
)

func newOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options <source>",
		Short: "List selectable values for a source setting",
		Long: `List the values a source setting can take. For a Reddit source this is
the newest posts in its subreddit; put the chosen value in the source's
"post" key.`,
		Args: cobra.ExactArgs(1),
		RunE: runOptions,
	}
}

func runOptions(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	name := args[0]

	sess, err := NewSession(ctx, resolvedCfg, emit.Multi(nil), logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	prov, pc, err := sess.Provider(ctx, name)
	if err != nil {
		return err
	}

	lister, ok := prov.(poll.CandidateLister)
	if !ok {
		return fmt.Errorf("source %q (%s) has no selectable options", name, prov.Name())
	}

	candidates, err := lister.ListCandidates(ctx, pc.Scope)
	if err != nil {
		return fmt.Errorf("listing options for %q: %w", name, err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), candidates)
	}

	if len(candidates) == 0 {
		statusf("No options found for %s.\n", name)

		return nil
	}

	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{c.Value, c.Label})
	}

	printTable(cmd.OutOrStdout(), []string{"VALUE", "LABEL"}, rows)

	return nil
}
