package policy

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/coral-mesh/coral-autoprof/internal/constants"
)

// RandomSampling spreads sessions uniformly over a planning horizon so that
// a fixed fraction of wall time is spent profiling. Very short sessions plan
// over at most constants.MaxRandomSegments segments.
type RandomSampling struct {
	Base

	rng      *rand.Rand
	overhead float64
}

// NewRandomSampling creates the sampling policy. A nil rng uses a randomly
// seeded generator.
func NewRandomSampling(opts Options, rng *rand.Rand) *RandomSampling {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r := &RandomSampling{
		Base: newBase(SourceRandomSampling, opts, Unbounded()),
		rng:  rng,
	}
	r.NeedsRefresh()
	return r
}

// Overhead returns the cached fraction of time spent profiling.
func (r *RandomSampling) Overhead() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overhead
}

// GetSchedule implements Policy.
func (r *RandomSampling) GetSchedule() []ScheduleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.profilerEnabled || !r.policyEnabled || r.duration <= 0 {
		return r.idleLocked()
	}

	horizon := float64(constants.RandomPlanningHorizon)
	segments := int(math.Round(horizon / float64(r.duration)))
	if segments > constants.MaxRandomSegments {
		segments = constants.MaxRandomSegments
		horizon = float64(r.duration) * float64(segments)
	}
	target := int(math.Round(horizon * r.overhead / float64(r.duration)))
	if target > segments {
		target = segments
	}
	if target <= 0 {
		return r.idleLocked()
	}

	selected := selectSegments(r.rng, segments, target)

	schedule := make([]ScheduleEntry, 0, 2*target+1)
	skipped := 0
	flush := func() {
		if skipped > 0 {
			schedule = append(schedule, ScheduleEntry{
				Duration: r.duration * time.Duration(skipped),
				Action:   Standby,
			})
			skipped = 0
		}
	}

	for i := 0; i < segments; i++ {
		if !selected[i] {
			skipped++
			continue
		}
		flush()
		schedule = append(schedule,
			ScheduleEntry{Duration: r.duration, Action: StartProfilingSession},
			ScheduleEntry{Duration: r.cooldown, Action: Standby},
		)
	}
	flush()

	return schedule
}

// selectSegments draws target distinct indices in [0, segments), retrying on
// duplicates.
func selectSegments(rng *rand.Rand, segments, target int) []bool {
	selected := make([]bool, segments)
	for picked := 0; picked < target; {
		i := rng.IntN(segments)
		if selected[i] {
			continue
		}
		selected[i] = true
		picked++
	}
	return selected
}

// NeedsRefresh implements Policy.
func (r *RandomSampling) NeedsRefresh() bool {
	snap := r.settings.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := r.refreshLocked(snap.ProfilerEnabled, snap.Sampling.Enabled, snap.ProfilingDuration, snap.Sampling.Cooldown)
	changed = r.overhead != snap.Sampling.Overhead || changed
	r.overhead = snap.Sampling.Overhead
	return changed
}

// RegisterToOrchestrator hands the policy to r.
func (r *RandomSampling) RegisterToOrchestrator(reg Registrar) { reg.Register(r) }
