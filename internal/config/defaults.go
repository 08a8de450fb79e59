package config

import (
	"github.com/coral-mesh/coral-autoprof/internal/constants"
	"github.com/coral-mesh/coral-autoprof/internal/logging"
)

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: SchemaVersion,
		Agent: AgentConfig{
			InitialStatus:     StatusActive,
			HeartbeatInterval: constants.DefaultHeartbeatInterval,
		},
		Profiler: ProfilerConfig{
			Enabled:      true,
			Duration:     constants.DefaultProfilingDuration,
			InitialDelay: constants.DefaultInitialDelay,
			CPU: TriggerConfig{
				Enabled:   true,
				Threshold: constants.DefaultCPUThreshold,
				Cooldown:  constants.DefaultTriggerCooldown,
			},
			Memory: TriggerConfig{
				Enabled:   true,
				Threshold: constants.DefaultMemoryThreshold,
				Cooldown:  constants.DefaultTriggerCooldown,
			},
			Sampling: SamplingConfig{
				Enabled:  true,
				Overhead: constants.DefaultRandomProfilingOverhead,
			},
		},
		Baseline: BaselineConfig{
			Scope:          constants.DefaultBaselineScope,
			SampleInterval: constants.DefaultBaselineSampleInterval,
			Retention:      constants.DefaultBaselineRetention,
			Window:         constants.DefaultBaselineWindow,
		},
		Remote: RemoteConfig{
			UpdateFrequency: constants.DefaultConfigurationUpdateFrequency,
			Timeout:         constants.DefaultRemoteTimeout,
		},
		Capture: CaptureConfig{
			OutputDir: constants.DefaultOutputDir,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    DefaultJournalPath(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatAuto,
		},
	}
}
