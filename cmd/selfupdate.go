package cmd

import (
	"context"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// defaultReleaseRepository is the GitHub repository (owner/repo) release binaries are taken from.
const defaultReleaseRepository = "dashsync/dashsync"

// newSelfUpdateCmd creates the Cobra command for the self-update functionality.
// Only binary installations, such as systemd units running filesystem mode,
// need it; container images are updated by replacing the image.
func newSelfUpdateCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update dashsync to the latest release",
		Long: `Checks for the latest release of dashsync on GitHub and
replaces the current binary if a newer version is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd, repository)
		},
	}
	cmd.Flags().StringVar(&repository, "repository", defaultReleaseRepository, "GitHub repository (owner/repo) to take releases from")
	return cmd
}

// runSelfUpdate checks the current version against the latest GitHub release and updates if necessary.
func runSelfUpdate(cmd *cobra.Command, repository string) error {
	currentVersion := rootCmd.Version
	// Development builds do not follow semantic versioning.
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Current version: %s\n", currentVersion)
	fmt.Fprintln(out, "Checking for updates...")

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create updater: %w", err)
	}

	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(repository))
	if err != nil {
		return fmt.Errorf("error detecting latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest release for %s could not be found", repository)
	}

	if !latest.GreaterThan(currentVersion) {
		fmt.Fprintln(out, "Current version is the latest.")
		return nil
	}

	fmt.Fprintf(out, "Found newer version: %s (published at %s)\n", latest.Version(), latest.PublishedAt)

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintf(out, "Updating %s to version %s...\n", exe, latest.Version())
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s; restart the service to use it\n", latest.Version())
	return nil
}
