// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Profiling - Default capture scheduling settings.
const (
	// DefaultProfilingDuration is how long a single capture session runs.
	DefaultProfilingDuration = 2 * time.Minute

	// DefaultCPUThreshold is the CPU baseline (percent) above which the CPU trigger fires.
	DefaultCPUThreshold = 80.0

	// DefaultMemoryThreshold is the memory baseline (percent) above which the memory trigger fires.
	DefaultMemoryThreshold = 80.0

	// DefaultTriggerCooldown is the idle period after a triggered capture.
	DefaultTriggerCooldown = 4 * time.Hour

	// DefaultRandomProfilingOverhead is the fraction of wall time spent in random captures.
	DefaultRandomProfilingOverhead = 0.05

	// RandomPlanningHorizon is the window a random sampling schedule covers.
	RandomPlanningHorizon = 12 * time.Hour

	// MinRemoteProfilingDuration is the shortest capture the control plane may request.
	MinRemoteProfilingDuration = 1 * time.Second

	// MaxProfilingDuration is the longest capture, one planning horizon.
	MaxProfilingDuration = RandomPlanningHorizon

	// MaxCooldown caps any standby period set remotely.
	MaxCooldown = 7 * 24 * time.Hour

	// MaxRandomSegments caps the segments of one random sampling schedule.
	// Shorter durations shrink the planning horizon instead.
	MaxRandomSegments = int(RandomPlanningHorizon / MinRemoteProfilingDuration)
)

// Admission - Orchestrator lock waits.
const (
	// DefaultStartLockTimeout bounds the wait for the admission lock on start.
	// Denial is the common case under contention, so fail fast.
	DefaultStartLockTimeout = 500 * time.Millisecond

	// DefaultStopLockTimeout bounds the wait for the admission lock on stop.
	// Finalizing a capture can be slow.
	DefaultStopLockTimeout = 30 * time.Second
)

// Intervals - Default interval values.
const (
	// DefaultConfigurationUpdateFrequency is the remote settings polling cadence.
	// Policies also use it as their idle polling interval.
	DefaultConfigurationUpdateFrequency = 5 * time.Second

	// DefaultHeartbeatInterval is how often the agent status is reported upstream.
	DefaultHeartbeatInterval = 1 * time.Hour

	// DefaultRemoteTimeout is the per-request timeout for control plane calls.
	DefaultRemoteTimeout = 10 * time.Second

	// DefaultInitialDelay is the delay before policies run after activation.
	DefaultInitialDelay time.Duration = 0
)

// Baseline - Default resource baseline settings.
const (
	// DefaultBaselineSampleInterval is the metric sampling cadence.
	DefaultBaselineSampleInterval = 1 * time.Second

	// DefaultBaselineRetention is how much history each rolling buffer keeps.
	DefaultBaselineRetention = 60 * time.Second

	// DefaultBaselineWindow is the trailing averaging window.
	DefaultBaselineWindow = 30 * time.Second

	// DefaultBaselineScope selects process or system wide metrics.
	DefaultBaselineScope = "process"
)
