package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dashsync/internal/config"
)

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigViewCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Prints the configuration serve would run with, after applying defaults,
the configuration file, environment variables and flags. API keys and
passwords are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(loadOptions(cmd))
			if err != nil {
				return err
			}
			out, err := settings.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(loadOptions(cmd))
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}
