// Package orchestrator is the single point through which scheduling policies
// start and stop capture sessions. It guarantees at most one session per
// process and runs the policy loops while the agent is active.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/coral-mesh/coral-autoprof/internal/agent/policy"
	"github.com/coral-mesh/coral-autoprof/internal/agent/status"
	"github.com/coral-mesh/coral-autoprof/internal/constants"
	guard "github.com/coral-mesh/coral-autoprof/internal/errors"
)

// ErrInactive is returned by Launch while the agent is inactive.
var ErrInactive = errors.New("orchestrator is inactive")

// SessionProvider owns the capture mechanism.
type SessionProvider interface {
	StartSession(ctx context.Context, source string) (bool, error)
	StopSession(ctx context.Context, source string) (bool, error)
	IsRunning() bool
}

// Config configures the orchestrator.
type Config struct {
	// StartLockTimeout bounds the wait for the lock on start. Contention is
	// the common case, so it is short.
	StartLockTimeout time.Duration
	// StopLockTimeout bounds the wait for the lock on stop, which may flush
	// a capture.
	StopLockTimeout time.Duration
	// InitialDelay postpones every policy loop at the start of a cycle.
	InitialDelay time.Duration
	// AllowCrash re-raises panics and unexpected errors from policy loops.
	AllowCrash bool
}

// DefaultConfig returns the default lock timeouts.
func DefaultConfig() Config {
	return Config{
		StartLockTimeout: constants.DefaultStartLockTimeout,
		StopLockTimeout:  constants.DefaultStopLockTimeout,
	}
}

type ownerRef struct {
	policy policy.Policy
}

// cycle is one Active period.
type cycle struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Orchestrator arbitrates capture sessions between policies.
type Orchestrator struct {
	provider SessionProvider
	cfg      Config
	logger   zerolog.Logger

	// lock guards owner transitions. Acquired with a bounded wait.
	lock  *semaphore.Weighted
	owner atomic.Pointer[ownerRef]

	mu       sync.Mutex
	policies []policy.Policy
	cycle    *cycle
}

// New creates an orchestrator over provider.
func New(provider SessionProvider, cfg Config, logger zerolog.Logger) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.StartLockTimeout <= 0 {
		cfg.StartLockTimeout = defaults.StartLockTimeout
	}
	if cfg.StopLockTimeout <= 0 {
		cfg.StopLockTimeout = defaults.StopLockTimeout
	}

	return &Orchestrator{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		lock:     semaphore.NewWeighted(1),
	}
}

// Register adds a policy. It starts right away when a cycle is running,
// otherwise with the next one.
func (o *Orchestrator) Register(p policy.Policy) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.policies = append(o.policies, p)
	o.logger.Debug().Str("policy", p.Source()).Msg("Registered policy")

	if c := o.activeCycleLocked(); c != nil {
		o.launchLocked(c, p, o.cfg.InitialDelay)
	}
}

// Launch runs p in the current cycle without registering it. Used for
// on-demand captures.
func (o *Orchestrator) Launch(p policy.Policy) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := o.activeCycleLocked()
	if c == nil {
		return ErrInactive
	}
	o.launchLocked(c, p, 0)
	return nil
}

// Policies returns the registered policies.
func (o *Orchestrator) Policies() []policy.Policy {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]policy.Policy(nil), o.policies...)
}

// Owner returns the policy holding the capture session, or nil.
func (o *Orchestrator) Owner() policy.Policy {
	if ref := o.owner.Load(); ref != nil {
		return ref.policy
	}
	return nil
}

// IsActive reports whether policy loops are running.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeCycleLocked() != nil
}

// Wait blocks until every loop of the current cycle has returned.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	c := o.cycle
	o.mu.Unlock()
	if c != nil {
		c.wg.Wait()
	}
}

// RequestStart implements policy.Admission.
func (o *Orchestrator) RequestStart(ctx context.Context, p policy.Policy) (bool, error) {
	logger := o.logger.With().Str("policy", p.Source()).Logger()

	acquired, err := o.acquire(ctx, o.cfg.StartLockTimeout)
	if err != nil {
		return false, err
	}
	if !acquired {
		logger.Debug().Dur("timeout", o.cfg.StartLockTimeout).Msg("Start denied, lock busy")
		return false, nil
	}
	defer o.release()

	if owner := o.Owner(); owner != nil {
		logger.Debug().Str("owner", owner.Source()).Msg("Start denied, session owned")
		return false, nil
	}

	started, err := o.provider.StartSession(ctx, p.Source())
	if err != nil {
		return false, fmt.Errorf("failed to start capture session for %s: %w", p.Source(), err)
	}
	if !started {
		logger.Debug().Msg("Start denied by capture provider")
		return false, nil
	}

	o.owner.Store(&ownerRef{policy: p})
	logger.Info().Msg("Capture session admitted")
	return true, nil
}

// RequestStop implements policy.Admission.
func (o *Orchestrator) RequestStop(ctx context.Context, p policy.Policy) (bool, error) {
	if o.Owner() != p {
		return false, nil
	}

	acquired, err := o.acquire(ctx, o.cfg.StopLockTimeout)
	if err != nil {
		return false, err
	}
	if !acquired {
		o.logger.Warn().
			Str("policy", p.Source()).
			Dur("timeout", o.cfg.StopLockTimeout).
			Msg("Stop denied, lock busy")
		return false, nil
	}
	defer o.release()

	if o.Owner() != p {
		return false, nil
	}
	return o.stopLocked(ctx, p)
}

// stopLocked stops the session owned by p. The lock must be held.
func (o *Orchestrator) stopLocked(ctx context.Context, p policy.Policy) (bool, error) {
	stopped, err := o.provider.StopSession(ctx, p.Source())
	if err != nil {
		if !o.provider.IsRunning() {
			o.owner.Store(nil)
		}
		return false, fmt.Errorf("failed to stop capture session for %s: %w", p.Source(), err)
	}
	if !stopped {
		if !o.provider.IsRunning() {
			o.owner.Store(nil)
		}
		return false, nil
	}

	o.owner.Store(nil)
	o.logger.Info().Str("policy", p.Source()).Msg("Capture session released")
	return true, nil
}

// acquire waits up to timeout for the lock. It returns false without an
// error on timeout and the context error when ctx ends first.
func (o *Orchestrator) acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := o.lock.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	return true, nil
}

func (o *Orchestrator) release() {
	o.lock.Release(1)
}

// OnStatusChanged implements status.Listener.
func (o *Orchestrator) OnStatusChanged(s status.Status) error {
	switch s {
	case status.Active:
		o.activate()
		return nil
	case status.Inactive:
		o.deactivate()
		return nil
	default:
		return fmt.Errorf("orchestrator: %w: %d", status.ErrUnknownStatus, int(s))
	}
}

func (o *Orchestrator) activate() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.activeCycleLocked() != nil {
		o.logger.Debug().Msg("Orchestrator already active")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &cycle{ctx: ctx, cancel: cancel}
	o.cycle = c

	for _, p := range o.policies {
		o.launchLocked(c, p, o.cfg.InitialDelay)
	}

	o.logger.Info().Int("policies", len(o.policies)).Msg("Orchestrator activated")
}

// deactivate cancels the cycle once, waits for the loops and releases a
// session left behind by a cancelled loop.
func (o *Orchestrator) deactivate() {
	o.mu.Lock()
	c := o.activeCycleLocked()
	if c == nil {
		o.mu.Unlock()
		o.logger.Debug().Msg("Orchestrator already inactive")
		return
	}
	c.cancel()
	o.mu.Unlock()

	c.wg.Wait()
	o.finalize()

	o.logger.Info().Msg("Orchestrator deactivated")
}

func (o *Orchestrator) finalize() {
	owner := o.Owner()
	if owner == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StopLockTimeout)
	defer cancel()

	acquired, err := o.acquire(ctx, o.cfg.StopLockTimeout)
	if err != nil || !acquired {
		o.logger.Error().Err(err).Str("policy", owner.Source()).Msg("Failed to finalize capture session")
		return
	}
	defer o.release()

	if o.Owner() != owner {
		return
	}
	if _, err := o.stopLocked(ctx, owner); err != nil {
		o.logger.Error().Err(err).Str("policy", owner.Source()).Msg("Failed to finalize capture session")
		return
	}
	o.logger.Debug().Str("policy", owner.Source()).Msg("Finalized capture session")
}

func (o *Orchestrator) activeCycleLocked() *cycle {
	if o.cycle == nil || o.cycle.ctx.Err() != nil {
		return nil
	}
	return o.cycle
}

func (o *Orchestrator) launchLocked(c *cycle, p policy.Policy, delay time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = guard.Guard(o.logger, o.cfg.AllowCrash, "policy_"+p.Source(), func() error {
			return policy.Run(c.ctx, p, o, policy.RunOptions{
				InitialDelay: delay,
				Logger:       o.logger,
			})
		})
	}()
}
