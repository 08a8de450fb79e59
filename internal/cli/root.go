// Package cli wires the coral-autoprof commands together.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-autoprof/internal/cli/config"
	"github.com/coral-mesh/coral-autoprof/internal/cli/run"
	"github.com/coral-mesh/coral-autoprof/internal/cli/sessions"
	"github.com/coral-mesh/coral-autoprof/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "coral-autoprof",
	Short: "Coral autoprof - in-process continuous profiling agent",
	Long: `Decide when a process should capture a CPU profile, and never run two
captures at once.

Scheduling policies:
- CPU and memory triggers: capture when usage exceeds a threshold
- Random sampling: spread captures over each hour to meet an overhead budget
- One-shot: capture once right after the agent becomes active

The agent follows an Active/Inactive status, refreshes its settings from an
optional control plane and records every capture in a local journal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(run.NewRunCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(sessions.NewSessionsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("coral-autoprof version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
