// Package policy implements the scheduling policies that decide when a
// capture session should run, and the loop that walks their schedules.
package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/coral-mesh/coral-autoprof/internal/agent/settings"
)

// Stable policy sources.
const (
	SourceCPUTrigger     = "CPUTrigger"
	SourceMemoryTrigger  = "MemoryTrigger"
	SourceRandomSampling = "RandomSampling"
	SourceOneShot        = "OneShot"
	SourceOnDemand       = "OnDemand"
)

// Action is what a schedule entry asks the loop to do.
type Action int

const (
	Standby Action = iota
	StartProfilingSession
)

func (a Action) String() string {
	switch a {
	case Standby:
		return "standby"
	case StartProfilingSession:
		return "start"
	default:
		return "unknown"
	}
}

// ScheduleEntry is one step of a schedule.
type ScheduleEntry struct {
	Duration time.Duration
	Action   Action
}

// ExpirationPolicy caps how many times a policy may fire. A zero limit is
// unbounded.
type ExpirationPolicy struct {
	limit int64
	fired atomic.Int64
}

// Unbounded returns a policy that never expires.
func Unbounded() *ExpirationPolicy { return &ExpirationPolicy{} }

// Limit returns a policy that expires after n start attempts.
func Limit(n int) *ExpirationPolicy { return &ExpirationPolicy{limit: int64(n)} }

// Record counts one start attempt.
func (e *ExpirationPolicy) Record() { e.fired.Add(1) }

// IsExpired reports whether the limit has been reached.
func (e *ExpirationPolicy) IsExpired() bool {
	return e.limit > 0 && e.fired.Load() >= e.limit
}

// Fired returns the number of recorded start attempts.
func (e *ExpirationPolicy) Fired() int { return int(e.fired.Load()) }

// Policy decides when capture sessions should run.
type Policy interface {
	// Source identifies the policy variant.
	Source() string
	// GetSchedule computes the next schedule. It never returns an empty slice.
	GetSchedule() []ScheduleEntry
	// NeedsRefresh pulls the latest settings into the policy and reports
	// whether any of them changed.
	NeedsRefresh() bool
	Expiration() *ExpirationPolicy
}

// Registrar accepts policies. The orchestrator implements it.
type Registrar interface {
	Register(p Policy)
}

// Options are shared by every policy constructor.
type Options struct {
	Settings settings.Provider
	// PollingInterval is how long an idle policy stands by before re-evaluating.
	PollingInterval time.Duration
}

// Base holds the fields common to every policy.
type Base struct {
	source     string
	settings   settings.Provider
	expiration *ExpirationPolicy

	mu              sync.Mutex
	profilerEnabled bool
	policyEnabled   bool
	duration        time.Duration
	cooldown        time.Duration
	pollingInterval time.Duration
}

func newBase(source string, opts Options, expiration *ExpirationPolicy) Base {
	return Base{
		source:          source,
		settings:        opts.Settings,
		expiration:      expiration,
		pollingInterval: opts.PollingInterval,
	}
}

// Source implements Policy.
func (b *Base) Source() string { return b.source }

// Expiration implements Policy.
func (b *Base) Expiration() *ExpirationPolicy { return b.expiration }

// ProfilingDuration returns the cached session length.
func (b *Base) ProfilingDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

// ProfilingCooldown returns the cached pause after a session.
func (b *Base) ProfilingCooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldown
}

// PollingInterval returns how long an idle policy stands by.
func (b *Base) PollingInterval() time.Duration { return b.pollingInterval }

// Enabled reports whether both the profiler and this policy are switched on.
func (b *Base) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profilerEnabled && b.policyEnabled
}

// refreshLocked compares the common fields with the given values, overwrites
// them and reports whether any differed. b.mu must be held.
func (b *Base) refreshLocked(profilerEnabled, policyEnabled bool, duration, cooldown time.Duration) bool {
	changed := b.profilerEnabled != profilerEnabled
	changed = b.policyEnabled != policyEnabled || changed
	changed = b.duration != duration || changed
	changed = b.cooldown != cooldown || changed

	b.profilerEnabled = profilerEnabled
	b.policyEnabled = policyEnabled
	b.duration = duration
	b.cooldown = cooldown
	return changed
}

func (b *Base) idleLocked() []ScheduleEntry {
	return []ScheduleEntry{{Duration: b.pollingInterval, Action: Standby}}
}
