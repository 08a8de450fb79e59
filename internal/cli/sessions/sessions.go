// Package sessions implements the 'coral-autoprof sessions' command.
package sessions

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-autoprof/internal/agent/journal"
	"github.com/coral-mesh/coral-autoprof/internal/cli/helpers"
	guard "github.com/coral-mesh/coral-autoprof/internal/errors"
)

var supportedFormats = []helpers.OutputFormat{
	helpers.FormatTable,
	helpers.FormatJSON,
	helpers.FormatCSV,
	helpers.FormatYAML,
}

// row is the printable form of a journal entry.
type row struct {
	ID          string        `header:"ID" json:"id" yaml:"id"`
	Source      string        `header:"SOURCE" json:"source" yaml:"source"`
	Status      string        `header:"STATUS" json:"status" yaml:"status"`
	StartedAt   time.Time     `header:"STARTED" json:"started_at" yaml:"started_at"`
	Duration    time.Duration `header:"DURATION" json:"duration_ns" yaml:"duration"`
	SampleCount int64         `header:"SAMPLES" json:"sample_count" yaml:"sample_count"`
	PID         int           `json:"pid" yaml:"pid"`
	Path        string        `header:"PATH" json:"path" yaml:"path"`
}

// NewSessionsCmd creates the sessions command.
func NewSessionsCmd() *cobra.Command {
	var (
		flags       helpers.ConfigFlags
		journalPath string
		limit       int
		format      string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded capture sessions",
		Long: `List the capture sessions recorded in the local journal, newest first.

The journal is a DuckDB file that only one process can open at a time.
Stop a running agent before listing its sessions, or point --journal
at a copy of the file.`,
		Example: `  coral-autoprof sessions
  coral-autoprof sessions --limit 5 -o json
  coral-autoprof sessions --journal /var/lib/coral-autoprof/sessions.duckdb`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supportedFormats); err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}

			if journalPath == "" {
				cfg, err := flags.Load()
				if err != nil {
					return err
				}
				journalPath = cfg.Journal.Path
			}
			if journalPath == "" {
				return fmt.Errorf("no journal path configured (use --journal)")
			}

			j, err := journal.Open(journalPath, zerolog.Nop())
			if err != nil {
				return err
			}
			defer guard.DeferClose(zerolog.Nop(), j, "failed to close journal")

			list, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(list) == 0 && format == string(helpers.FormatTable) {
				cmd.Println("No capture sessions recorded")
				return nil
			}

			rows := make([]row, 0, len(list))
			for _, s := range list {
				rows = append(rows, row{
					ID:          s.ID,
					Source:      s.Source,
					Status:      s.Status,
					StartedAt:   s.StartedAt,
					Duration:    s.Duration(),
					SampleCount: s.SampleCount,
					PID:         s.PID,
					Path:        s.Path,
				})
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(rows, cmd.OutOrStdout())
		},
	}

	flags.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&journalPath, "journal", "", "Path to the journal database (default: from the configuration)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to show (0 for all)")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supportedFormats)

	return cmd
}
