package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dashsync/internal/app"
	"dashsync/internal/config"
)

// serveCmd defines the serve command structure.
// This is the main command of dashsync that runs the sync controller.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard sync controller",
	Long: `Starts the controller that keeps Grafana dashboards in sync with
labeled ConfigMaps. It runs until interrupted with SIGINT or SIGTERM.

Configuration is read from flags, DASHSYNC_* environment variables and a
configuration file, in that order of precedence. The environment variables
GRAFANA_URL, GRAFANA_API_KEY, GRAFANA_BASIC_AUTH_USERNAME,
GRAFANA_BASIC_AUTH_PASSWORD, WATCH_NAMESPACE, CONFIGMAP_SELECTOR, MARKER_TAG
and DRY_RUN are also recognized.

Source modes:
  kubernetes   watch ConfigMaps through the Kubernetes API (default)
  filesystem   watch a directory of ConfigMap manifests (--path)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(loadOptions(cmd))
	if err != nil {
		return err
	}

	application, err := app.NewApplication(app.NewConfig(settings, rootCmd.Version))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

// init registers the serve command and its flags with the root command.
func init() {
	rootCmd.AddCommand(serveCmd)

	config.AddFlags(serveCmd.Flags())
}
