package policy

import (
	"github.com/coral-mesh/coral-autoprof/internal/agent/settings"
)

// CPUBaseline exposes the smoothed CPU usage.
type CPUBaseline interface {
	GetAverageCPUUsage() float64
}

// MemoryBaseline exposes the smoothed memory usage.
type MemoryBaseline interface {
	GetAverageMemoryUsage() float64
}

// ThresholdTrigger profiles while a baseline is above a threshold.
type ThresholdTrigger struct {
	Base

	usage   func() float64
	trigger func(settings.Snapshot) settings.Trigger

	threshold float64
}

// NewCPUTrigger fires when the CPU baseline exceeds the configured threshold.
func NewCPUTrigger(baseline CPUBaseline, opts Options) *ThresholdTrigger {
	return newThresholdTrigger(SourceCPUTrigger, baseline.GetAverageCPUUsage,
		func(s settings.Snapshot) settings.Trigger { return s.CPU }, opts)
}

// NewMemoryTrigger fires when the memory baseline exceeds the configured threshold.
func NewMemoryTrigger(baseline MemoryBaseline, opts Options) *ThresholdTrigger {
	return newThresholdTrigger(SourceMemoryTrigger, baseline.GetAverageMemoryUsage,
		func(s settings.Snapshot) settings.Trigger { return s.Memory }, opts)
}

func newThresholdTrigger(source string, usage func() float64, trigger func(settings.Snapshot) settings.Trigger, opts Options) *ThresholdTrigger {
	t := &ThresholdTrigger{
		Base:    newBase(source, opts, Unbounded()),
		usage:   usage,
		trigger: trigger,
	}
	t.NeedsRefresh()
	return t
}

// Threshold returns the cached threshold.
func (t *ThresholdTrigger) Threshold() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threshold
}

// GetSchedule implements Policy.
func (t *ThresholdTrigger) GetSchedule() []ScheduleEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.profilerEnabled || !t.policyEnabled {
		return t.idleLocked()
	}
	if t.usage() <= t.threshold {
		return t.idleLocked()
	}
	return []ScheduleEntry{
		{Duration: t.duration, Action: StartProfilingSession},
		{Duration: t.cooldown, Action: Standby},
	}
}

// NeedsRefresh implements Policy.
func (t *ThresholdTrigger) NeedsRefresh() bool {
	snap := t.settings.Current()
	trig := t.trigger(snap)

	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.refreshLocked(snap.ProfilerEnabled, trig.Enabled, snap.ProfilingDuration, trig.Cooldown)
	changed = t.threshold != trig.Threshold || changed
	t.threshold = trig.Threshold
	return changed
}

// RegisterToOrchestrator hands the trigger to r.
func (t *ThresholdTrigger) RegisterToOrchestrator(r Registrar) { r.Register(t) }
