// Package config provides configuration loading and management.
package config

import (
	"time"
)

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// Agent status values accepted in configuration.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Metric scopes for the baseline tracker.
const (
	ScopeProcess = "process"
	ScopeSystem  = "system"
)

// Config represents the agent configuration file (~/.coral-autoprof/config.yaml).
//
// Every field can be overridden from the environment. The variable name is
// CORAL_AUTOPROF_ followed by the envPrefix of each enclosing struct and the
// field's env tag, e.g. CORAL_AUTOPROF_PROFILER_CPU_THRESHOLD.
type Config struct {
	Version  string         `yaml:"version"`
	Agent    AgentConfig    `yaml:"agent" envPrefix:"AGENT_"`
	Profiler ProfilerConfig `yaml:"profiler" envPrefix:"PROFILER_"`
	Baseline BaselineConfig `yaml:"baseline" envPrefix:"BASELINE_"`
	Remote   RemoteConfig   `yaml:"remote" envPrefix:"REMOTE_"`
	Capture  CaptureConfig  `yaml:"capture" envPrefix:"CAPTURE_"`
	Journal  JournalConfig  `yaml:"journal" envPrefix:"JOURNAL_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
}

// AgentConfig contains identity and global switch settings.
type AgentConfig struct {
	// ID identifies this agent upstream. Generated when empty.
	ID string `yaml:"id,omitempty" env:"ID"`
	// InitialStatus is used until remote settings say otherwise ("active" or "inactive").
	InitialStatus string `yaml:"initial_status" env:"INITIAL_STATUS"`
	// FollowRemoteStatus lets the control plane flip the agent on and off.
	FollowRemoteStatus bool `yaml:"follow_remote_status" env:"FOLLOW_REMOTE_STATUS"`
	// AllowCrash turns unexpected failures into process crashes. Debug builds only.
	AllowCrash        bool          `yaml:"allow_crash" env:"ALLOW_CRASH"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
}

// ProfilerConfig holds the local defaults for every scheduling policy.
// Remote settings override them at runtime.
type ProfilerConfig struct {
	Enabled      bool           `yaml:"enabled" env:"ENABLED"`
	Duration     time.Duration  `yaml:"duration" env:"DURATION"`
	InitialDelay time.Duration  `yaml:"initial_delay" env:"INITIAL_DELAY"`
	CPU          TriggerConfig  `yaml:"cpu" envPrefix:"CPU_"`
	Memory       TriggerConfig  `yaml:"memory" envPrefix:"MEMORY_"`
	Sampling     SamplingConfig `yaml:"sampling" envPrefix:"SAMPLING_"`
	OneShot      OneShotConfig  `yaml:"one_shot" envPrefix:"ONE_SHOT_"`
}

// TriggerConfig configures a threshold trigger.
type TriggerConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Threshold is a percentage in (0, 100].
	Threshold float64       `yaml:"threshold" env:"THRESHOLD"`
	Cooldown  time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// SamplingConfig configures random sampling.
type SamplingConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Overhead is the fraction of wall time spent profiling (0.0 to 1.0).
	Overhead float64       `yaml:"overhead" env:"OVERHEAD"`
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// OneShotConfig captures once right after the agent becomes active.
type OneShotConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// BaselineConfig configures the resource baseline tracker.
type BaselineConfig struct {
	// Scope is "process" (this process) or "system" (whole host).
	Scope          string        `yaml:"scope" env:"SCOPE"`
	SampleInterval time.Duration `yaml:"sample_interval" env:"SAMPLE_INTERVAL"`
	Retention      time.Duration `yaml:"retention" env:"RETENTION"`
	Window         time.Duration `yaml:"window" env:"WINDOW"`
}

// RemoteConfig configures the control plane.
type RemoteConfig struct {
	// SettingsEndpoint is polled for settings. Empty disables polling.
	SettingsEndpoint string `yaml:"settings_endpoint,omitempty" env:"SETTINGS_ENDPOINT"`
	// StatusEndpoint receives heartbeats. Empty disables reporting.
	StatusEndpoint string `yaml:"status_endpoint,omitempty" env:"STATUS_ENDPOINT"`
	// UpdateFrequency is the settings polling cadence and the policies' idle interval.
	UpdateFrequency time.Duration `yaml:"update_frequency" env:"UPDATE_FREQUENCY"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CaptureConfig configures where captures are written.
type CaptureConfig struct {
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
}

// JournalConfig configures the session journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Path of the DuckDB file. Empty keeps the journal in memory.
	Path string `yaml:"path,omitempty" env:"PATH"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}
