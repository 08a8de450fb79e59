// Package config implements the 'coral-autoprof config' command family.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-autoprof/internal/cli/helpers"
	"github.com/coral-mesh/coral-autoprof/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the agent configuration",
		Long: `Inspect and create the agent configuration.

Configuration Priority:
  1. CORAL_AUTOPROF_* environment variables (highest)
  2. Config file (--config or ~/.coral-autoprof/config.yaml)
  3. Defaults

Environment Variables:
  CORAL_AUTOPROF_CONFIG   Override the config directory
  CORAL_AUTOPROF_<PATH>   Override any field, e.g. CORAL_AUTOPROF_PROFILER_CPU_THRESHOLD=90`,
	}

	cmd.AddCommand(newViewCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

// newViewCmd creates the 'config view' command.
func newViewCmd() *cobra.Command {
	var flags helpers.ConfigFlags

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the config file and environment
overrides have been merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return err
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	flags.AddFlags(cmd.Flags())
	return cmd
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd() *cobra.Command {
	var flags helpers.ConfigFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := flags.Load(); err != nil {
				return err
			}
			cmd.Println("Configuration is valid")
			return nil
		},
	}

	flags.AddFlags(cmd.Flags())
	return cmd
}

// newInitCmd creates the 'config init' command.
func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultPath()
			}

			_, err := os.Stat(path)
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			case err != nil && !errors.Is(err, os.ErrNotExist):
				return fmt.Errorf("failed to check %s: %w", path, err)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			cmd.Printf("Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "Path of the file to write (default: ~/.coral-autoprof/config.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
