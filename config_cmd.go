package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display effective configuration after all overrides",
			Args:  cobra.NoArgs,
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path in use",
			Args:  cobra.NoArgs,
			RunE:  runConfigPath,
		},
	)

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	shown := resolvedCfg.Redacted()

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), shown)
	}

	return config.RenderEffective(shown, cmd.OutOrStdout())
}

// runConfigPath prints the path even when no file exists there yet, so it
// can be used to create one.
func runConfigPath(cmd *cobra.Command, _ []string) error {
	path := config.ResolvePath(config.ReadEnvOverrides(), resolvedCLI)
	if path == "" {
		return errors.New("cannot determine config file path")
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), path)

	return err
}
