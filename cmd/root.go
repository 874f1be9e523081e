package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"dashsync/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (sync setup failed, invalid dashboards found).
	ExitCodeError = 1
	// ExitCodeConfigError indicates the configuration could not be loaded or is invalid.
	ExitCodeConfigError = 2
)

// configFile is the explicit configuration file set with --config.
var configFile string

// rootCmd represents the base command for the dashsync application.
var rootCmd = &cobra.Command{
	Use:   "dashsync",
	Short: "Sync Grafana dashboards from Kubernetes ConfigMaps",
	Long: `dashsync watches ConfigMaps carrying Grafana dashboard JSON and keeps
Grafana in line with them: dashboards are created, updated and deleted as the
ConfigMaps change.

ConfigMaps are read from the Kubernetes API or, for local use and testing,
from a directory of ConfigMap manifests.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dashsync version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if config.IsConfigError(err) {
		return ExitCodeConfigError
	}
	return ExitCodeError
}

func loadOptions(cmd *cobra.Command) config.LoadOptions {
	return config.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (default: dashsync.yaml in . or /etc/dashsync)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newConfigCmd())
}
