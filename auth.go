package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Akhilkandikonda/pipedream/internal/config"
	"github.com/Akhilkandikonda/pipedream/internal/graph"
	"github.com/Akhilkandikonda/pipedream/internal/tokenfile"
)

// Token file metadata keys written after login.
const (
	metaDriveID   = "drive_id"
	metaDriveType = "drive_type"
	metaOwner     = "owner"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login onedrive",
		Short: "Sign in to a provider account",
		Long: `Sign in with the device code flow and save the token to
onedrive.token_file (default: <data dir>/tokens/onedrive.json).

Reddit needs no login: set [reddit] client_id and client_secret instead.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{config.TypeOneDrive},
		RunE:      runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "logout onedrive",
		Short:     "Remove a saved provider token",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{config.TypeOneDrive},
		RunE:      runLogout,
	}
}

func checkLoginProvider(name string) error {
	if name != config.TypeOneDrive {
		return fmt.Errorf("unknown provider %q: only %q uses interactive login", name, config.TypeOneDrive)
	}

	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := checkLoginProvider(args[0]); err != nil {
		return err
	}

	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)
	tokenPath := resolvedCfg.OneDriveTokenPath()

	httpClient, err := newHTTPClient(resolvedCfg)
	if err != nil {
		return err
	}

	creds := graph.NewCredentials(resolvedCfg.OneDrive.ClientID, tokenPath, logger)

	ts, err := creds.Login(ctx, func(da graph.DeviceAuth) {
		// Device code prompts must always be visible, even with --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)

		if !da.Expires.IsZero() {
			fmt.Fprintf(os.Stderr, "The code expires at %s.\n", da.Expires.Local().Format(time.Kitchen))
		}
	})
	if err != nil {
		return err
	}

	client := graph.NewClient(graph.DefaultBaseURL, httpClient, ts, resolvedCfg.UserAgent, logger)

	drive, err := client.DefaultDrive(ctx)
	if err != nil {
		return fmt.Errorf("signed in, but reading the default drive failed: %w", err)
	}

	meta := map[string]string{
		metaDriveID:   drive.ID,
		metaDriveType: drive.DriveType,
		metaOwner:     drive.OwnerName,
	}

	if err := tokenfile.MergeMeta(tokenPath, meta); err != nil {
		logger.Warn("could not record drive metadata", slog.String("error", err.Error()))
	}

	statusf("Signed in as %s (%s drive %s).\n", drive.OwnerName, drive.DriveType, drive.ID)

	return nil
}

func runLogout(_ *cobra.Command, args []string) error {
	if err := checkLoginProvider(args[0]); err != nil {
		return err
	}

	logger := buildLogger()

	creds := graph.NewCredentials(resolvedCfg.OneDrive.ClientID, resolvedCfg.OneDriveTokenPath(), logger)
	if err := creds.Logout(); err != nil {
		return err
	}

	statusf("Logged out of OneDrive.\n")

	return nil
}
