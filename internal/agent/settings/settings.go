// Package settings holds the profiler settings pushed by the control plane and
// the loop that polls for them.
package settings

import (
	"sync"
	"time"

	"github.com/coral-mesh/coral-autoprof/internal/config"
)

// Trigger holds the remote settings of a threshold trigger.
type Trigger struct {
	Enabled   bool
	Threshold float64
	Cooldown  time.Duration
}

// Sampling holds the remote settings of random sampling.
type Sampling struct {
	Enabled  bool
	Overhead float64
	Cooldown time.Duration
}

// Snapshot is a complete view of the settings at one point in time.
type Snapshot struct {
	AgentEnabled      bool
	ProfilerEnabled   bool
	ProfilingDuration time.Duration
	CPU               Trigger
	Memory            Trigger
	Sampling          Sampling
}

// FromConfig derives the snapshot used until the control plane answers.
func FromConfig(cfg *config.Config) Snapshot {
	p := cfg.Profiler
	return Snapshot{
		AgentEnabled:      cfg.Agent.InitialStatus != config.StatusInactive,
		ProfilerEnabled:   p.Enabled,
		ProfilingDuration: p.Duration,
		CPU: Trigger{
			Enabled:   p.CPU.Enabled,
			Threshold: p.CPU.Threshold,
			Cooldown:  p.CPU.Cooldown,
		},
		Memory: Trigger{
			Enabled:   p.Memory.Enabled,
			Threshold: p.Memory.Threshold,
			Cooldown:  p.Memory.Cooldown,
		},
		Sampling: Sampling{
			Enabled:  p.Sampling.Enabled,
			Overhead: p.Sampling.Overhead,
			Cooldown: p.Sampling.Cooldown,
		},
	}
}

// Provider exposes the current snapshot to the policies.
type Provider interface {
	Current() Snapshot
}

// Store keeps the latest snapshot. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	remote  bool
	updated time.Time
}

// NewStore creates a store seeded with the local snapshot.
func NewStore(initial Snapshot) *Store {
	return &Store{current: initial}
}

// Current returns the latest snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the snapshot with one received from the control plane.
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = snap
	s.remote = true
	s.updated = time.Now()
}

// HasRemote reports whether the control plane has delivered settings yet.
func (s *Store) HasRemote() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

// LastUpdate returns when remote settings were last applied.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
