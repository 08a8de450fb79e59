package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/coral-autoprof/internal/config"
	"github.com/coral-mesh/coral-autoprof/internal/logging"
)

// ConfigFlags are the flags shared by every command that reads the
// configuration.
type ConfigFlags struct {
	Path      string
	LogLevel  string
	LogFormat string
}

// AddFlags registers the flags on a FlagSet.
func (f *ConfigFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.Path, "config", "", "Path to the configuration file (default: ~/.coral-autoprof/config.yaml)")
	flags.StringVar(&f.LogLevel, "log-level", "", "Logging level (trace, debug, info, warn, error); overrides the config file")
	flags.StringVar(&f.LogFormat, "log-format", "", "Logging format (auto, pretty, json); overrides the config file")
}

// Load reads the configuration and applies the flag overrides.
func (f *ConfigFlags) Load() (*config.Config, error) {
	cfg, err := config.Load(f.Path)
	if err != nil {
		return nil, err
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.Logging.Format = f.LogFormat
	}
	return cfg, nil
}

// LoggingConfig returns the logger configuration for cfg.
func LoggingConfig(cfg *config.Config) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	return lc
}

// AddFormatFlag adds a standard --format/-o flag to a command.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}
