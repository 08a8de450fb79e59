package config

import (
	"errors"
	"fmt"

	"github.com/coral-mesh/coral-autoprof/internal/constants"
)

// Validate checks the configuration for values the agent cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.InitialStatus != StatusActive && c.Agent.InitialStatus != StatusInactive {
		errs = append(errs, fmt.Errorf("agent.initial_status must be %q or %q, got %q",
			StatusActive, StatusInactive, c.Agent.InitialStatus))
	}
	if c.Agent.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("agent.heartbeat_interval must be positive"))
	}

	p := c.Profiler
	if p.Duration <= 0 {
		errs = append(errs, fmt.Errorf("profiler.duration must be positive"))
	} else if p.Duration > constants.MaxProfilingDuration {
		errs = append(errs, fmt.Errorf("profiler.duration must not exceed %s, got %s", constants.MaxProfilingDuration, p.Duration))
	}
	if p.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("profiler.initial_delay cannot be negative"))
	}
	errs = append(errs, validateTrigger("profiler.cpu", p.CPU)...)
	errs = append(errs, validateTrigger("profiler.memory", p.Memory)...)
	if p.Sampling.Overhead < 0 || p.Sampling.Overhead > 1 {
		errs = append(errs, fmt.Errorf("profiler.sampling.overhead must be within [0, 1], got %v", p.Sampling.Overhead))
	}
	if p.Sampling.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("profiler.sampling.cooldown cannot be negative"))
	}

	b := c.Baseline
	if b.Scope != ScopeProcess && b.Scope != ScopeSystem {
		errs = append(errs, fmt.Errorf("baseline.scope must be %q or %q, got %q", ScopeProcess, ScopeSystem, b.Scope))
	}
	if b.SampleInterval <= 0 || b.Retention <= 0 || b.Window <= 0 {
		errs = append(errs, fmt.Errorf("baseline intervals must be positive"))
	} else {
		if b.Window > b.Retention {
			errs = append(errs, fmt.Errorf("baseline.window (%s) exceeds baseline.retention (%s)", b.Window, b.Retention))
		}
		if b.SampleInterval > b.Window {
			errs = append(errs, fmt.Errorf("baseline.sample_interval (%s) exceeds baseline.window (%s)", b.SampleInterval, b.Window))
		}
	}

	if c.Remote.UpdateFrequency <= 0 {
		errs = append(errs, fmt.Errorf("remote.update_frequency must be positive"))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("remote.timeout must be positive"))
	}

	if c.Capture.OutputDir == "" {
		errs = append(errs, fmt.Errorf("capture.output_dir is required"))
	}

	return errors.Join(errs...)
}

func validateTrigger(name string, t TriggerConfig) []error {
	var errs []error
	if t.Threshold <= 0 || t.Threshold > 100 {
		errs = append(errs, fmt.Errorf("%s.threshold must be within (0, 100], got %v", name, t.Threshold))
	}
	if t.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("%s.cooldown cannot be negative", name))
	}
	return errs
}
