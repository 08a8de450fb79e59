package policy

import "time"

// OneShot captures a single session and then expires.
type OneShot struct {
	Base
}

// NewOneShot creates the one-shot policy enabled from configuration.
func NewOneShot(duration time.Duration, opts Options) *OneShot {
	return newOneShot(SourceOneShot, duration, opts)
}

// NewOnDemand creates a one-shot policy for an explicit capture request.
func NewOnDemand(duration time.Duration, opts Options) *OneShot {
	return newOneShot(SourceOnDemand, duration, opts)
}

func newOneShot(source string, duration time.Duration, opts Options) *OneShot {
	o := &OneShot{Base: newBase(source, opts, Limit(1))}
	o.duration = duration
	o.profilerEnabled = true
	o.policyEnabled = true
	return o
}

// GetSchedule implements Policy. The loop exits after this single pass
// because the policy expires on its first start attempt.
func (o *OneShot) GetSchedule() []ScheduleEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return []ScheduleEntry{
		{Duration: o.duration, Action: StartProfilingSession},
		{Duration: o.duration, Action: Standby},
	}
}

// NeedsRefresh implements Policy. A one-shot never changes.
func (o *OneShot) NeedsRefresh() bool { return false }

// RegisterToOrchestrator hands the policy to r.
func (o *OneShot) RegisterToOrchestrator(r Registrar) { r.Register(o) }
