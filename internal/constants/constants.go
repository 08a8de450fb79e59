// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".coral-autoprof"

	// DefaultOutputDir is where finished captures are written.
	DefaultOutputDir = "/tmp/coral-autoprof"

	DefaultJournalFile = "sessions.duckdb"

	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "CORAL_AUTOPROF_"
)
