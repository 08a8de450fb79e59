// Package run implements the 'coral-autoprof run' command.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-autoprof/internal/agent"
	"github.com/coral-mesh/coral-autoprof/internal/cli/helpers"
	"github.com/coral-mesh/coral-autoprof/internal/logging"
)

// NewRunCmd creates the 'run' command.
func NewRunCmd() *cobra.Command {
	var (
		flags      helpers.ConfigFlags
		workers    int
		busy       float64
		profileNow time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the profiling agent inside a synthetic workload",
		Long: `Run the profiling agent embedded in a small synthetic workload until
interrupted.

The workload keeps a configurable share of each worker busy so that the CPU
trigger and the captured profiles have something to show. Captures are
written to capture.output_dir and recorded in the session journal.

Configuration sources (in order of precedence):
1. Command line flags (--log-level, --log-format)
2. Environment variables (CORAL_AUTOPROF_*)
3. Config file (--config or ~/.coral-autoprof/config.yaml)
4. Defaults

Examples:
  # Defaults, pretty logs
  coral-autoprof run --log-format=pretty

  # Busy workload and an immediate 10s capture
  coral-autoprof run --workers 4 --busy 0.9 --profile-now 10s

  # Disable the memory trigger from the environment
  CORAL_AUTOPROF_PROFILER_MEMORY_ENABLED=false coral-autoprof run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if busy < 0 || busy > 1 {
				return fmt.Errorf("--busy must be within [0, 1], got %v", busy)
			}

			cfg, err := flags.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			logger := logging.New(helpers.LoggingConfig(cfg))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, err := agent.New(cfg, logger, agent.Options{})
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("failed to start agent: %w", err)
			}
			defer func() {
				if err := a.Stop(); err != nil {
					logger.Error().Err(err).Msg("Failed to stop agent cleanly")
				}
			}()

			w := newWorkload(workers, busy)
			w.Start(ctx)
			defer w.Stop()

			if profileNow > 0 {
				if err := a.ProfileNow(profileNow); err != nil {
					logger.Warn().Err(err).Msg("On-demand capture not started")
				}
			}

			logger.Info().
				Str("agent_id", a.ID()).
				Str("status", a.Status().String()).
				Int("workers", workers).
				Float64("busy", busy).
				Msg("Agent running - waiting for shutdown signal")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			sig := <-sigChan

			cpu, memory := a.Baselines()
			logger.Info().
				Str("signal", sig.String()).
				Float64("cpu_baseline", cpu).
				Float64("memory_baseline", memory).
				Uint64("work_units", w.Units()).
				Msg("Received shutdown signal - stopping agent")
			return nil
		},
	}

	flags.AddFlags(cmd.Flags())
	cmd.Flags().IntVar(&workers, "workers", 2, "Number of synthetic workload goroutines")
	cmd.Flags().Float64Var(&busy, "busy", 0.5, "Share of time each worker spends busy (0.0 to 1.0)")
	cmd.Flags().DurationVar(&profileNow, "profile-now", 0, "Request an on-demand capture of this length at startup")

	return cmd
}
