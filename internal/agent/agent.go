// Package agent wires the profiling scheduler together: baseline tracking,
// status, policies, admission control, capture and the session journal.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-autoprof/internal/agent/baseline"
	"github.com/coral-mesh/coral-autoprof/internal/agent/capture"
	"github.com/coral-mesh/coral-autoprof/internal/agent/journal"
	"github.com/coral-mesh/coral-autoprof/internal/agent/orchestrator"
	"github.com/coral-mesh/coral-autoprof/internal/agent/policy"
	"github.com/coral-mesh/coral-autoprof/internal/agent/settings"
	"github.com/coral-mesh/coral-autoprof/internal/agent/status"
	"github.com/coral-mesh/coral-autoprof/internal/config"
	"github.com/coral-mesh/coral-autoprof/internal/constants"
)

var (
	// ErrNotStarted is returned by operations that need a running agent.
	ErrNotStarted = errors.New("agent not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("agent already started")
	// ErrJournalDisabled is returned by Sessions when the journal is off.
	ErrJournalDisabled = errors.New("session journal disabled")
)

// Options replaces collaborators, mostly for tests and embedding.
type Options struct {
	// Mechanism defaults to a runtime/pprof CPU profiler.
	Mechanism capture.Mechanism
	// CPUSource and MemorySource default to gopsutil readings for the
	// configured scope.
	CPUSource    baseline.Source
	MemorySource baseline.Source
	// Reporter defaults to an HTTP reporter when a status endpoint is
	// configured.
	Reporter status.Reporter
	// Fetcher defaults to an HTTP fetcher when a settings endpoint is
	// configured.
	Fetcher settings.Fetcher
}

// Agent is an in-process profiling scheduler.
type Agent struct {
	id     string
	cfg    *config.Config
	opts   Options
	logger zerolog.Logger

	mu           sync.Mutex
	started      bool
	stopped      bool
	journal      *journal.Journal
	provider     *capture.Provider
	orchestrator *orchestrator.Orchestrator
	tracker      *baseline.Tracker
	store        *settings.Store
	machine      *status.Machine
	poller       *settings.Poller
}

// New creates an agent from a validated configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts Options) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	id := cfg.Agent.ID
	if id == "" {
		id = uuid.New().String()
	}

	return &Agent{
		id:     id,
		cfg:    cfg,
		opts:   opts,
		logger: logger.With().Str("agent_id", id).Logger(),
	}, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Start builds every component and publishes the initial status.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyStarted
	}

	if err := a.build(ctx); err != nil {
		_ = a.closeJournal()
		return err
	}

	if a.poller != nil {
		// Seed the store before the initial status is resolved.
		if _, err := a.poller.PollOnce(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Initial settings fetch failed, using local configuration")
		}
		a.poller.OnUpdate(a.machine.OnSettingsUpdated)
	}

	if err := a.machine.Initialize(ctx); err != nil {
		_ = a.closeJournal()
		return fmt.Errorf("failed to initialize status: %w", err)
	}

	if a.poller != nil {
		a.poller.Start(ctx)
	}

	a.started = true
	a.logger.Info().
		Str("status", a.machine.Current().String()).
		Int("policies", len(a.orchestrator.Policies())).
		Msg("Agent started")
	return nil
}

func (a *Agent) build(ctx context.Context) error {
	cfg := a.cfg

	var recorder capture.Recorder
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open session journal: %w", err)
		}
		a.journal = j
		recorder = j
	}

	mechanism := a.opts.Mechanism
	if mechanism == nil {
		mechanism = capture.NewPprofMechanism()
	}
	a.provider = capture.NewProvider(mechanism, cfg.Capture.OutputDir, recorder, a.logger)

	a.orchestrator = orchestrator.New(a.provider, orchestrator.Config{
		StartLockTimeout: constants.DefaultStartLockTimeout,
		StopLockTimeout:  constants.DefaultStopLockTimeout,
		InitialDelay:     cfg.Profiler.InitialDelay,
		AllowCrash:       cfg.Agent.AllowCrash,
	}, a.logger)

	cpuSrc, memSrc := a.opts.CPUSource, a.opts.MemorySource
	if cpuSrc == nil || memSrc == nil {
		defCPU, defMem, err := baseline.NewSources(ctx, cfg.Baseline.Scope)
		if err != nil {
			return fmt.Errorf("failed to create metric sources: %w", err)
		}
		if cpuSrc == nil {
			cpuSrc = defCPU
		}
		if memSrc == nil {
			memSrc = defMem
		}
	}
	a.tracker = baseline.NewTracker(baseline.Config{
		SampleInterval: cfg.Baseline.SampleInterval,
		Retention:      cfg.Baseline.Retention,
		Window:         cfg.Baseline.Window,
		AllowCrash:     cfg.Agent.AllowCrash,
	}, cpuSrc, memSrc, a.logger)
	a.tracker.OnChange(func(metric baseline.Metric, previous, current float64) {
		a.logger.Trace().
			Str("metric", string(metric)).
			Float64("previous", previous).
			Float64("current", current).
			Msg("Baseline moved")
	})

	local := settings.FromConfig(cfg)
	a.store = settings.NewStore(local)

	popts := a.policyOptions()
	policy.NewCPUTrigger(a.tracker, popts).RegisterToOrchestrator(a.orchestrator)
	policy.NewMemoryTrigger(a.tracker, popts).RegisterToOrchestrator(a.orchestrator)
	policy.NewRandomSampling(popts, nil).RegisterToOrchestrator(a.orchestrator)
	if cfg.Profiler.OneShot.Enabled {
		policy.NewOneShot(cfg.Profiler.Duration, popts).RegisterToOrchestrator(a.orchestrator)
	}

	reporter := a.opts.Reporter
	if reporter == nil {
		if cfg.Remote.StatusEndpoint != "" {
			reporter = status.NewHTTPReporter(cfg.Remote.StatusEndpoint, cfg.Remote.Timeout)
		} else {
			reporter = status.NopReporter{Logger: a.logger}
		}
	}

	initial, err := status.Parse(cfg.Agent.InitialStatus)
	if err != nil {
		return fmt.Errorf("invalid initial status: %w", err)
	}
	a.machine = status.NewMachine(status.Options{
		AgentID:           a.id,
		Initial:           initial,
		FollowRemote:      cfg.Agent.FollowRemoteStatus,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval,
		SendTimeout:       cfg.Remote.Timeout,
	}, reporter, a.store, a.logger)
	a.machine.Subscribe(a.tracker)
	a.machine.Subscribe(a.orchestrator)

	fetcher := a.opts.Fetcher
	if fetcher == nil && cfg.Remote.SettingsEndpoint != "" {
		fetcher = settings.NewHTTPFetcher(cfg.Remote.SettingsEndpoint, a.id, cfg.Remote.Timeout, local, a.logger)
	}
	if fetcher != nil {
		a.poller = settings.NewPoller(fetcher, a.store, cfg.Remote.UpdateFrequency, a.logger)
	}

	return nil
}

func (a *Agent) policyOptions() policy.Options {
	return policy.Options{
		Settings:        a.store,
		PollingInterval: a.cfg.Remote.UpdateFrequency,
	}
}

// Stop publishes Inactive, which stops every loop and finalizes a running
// capture, then releases the remaining resources. Stopping twice is a no-op.
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started || a.stopped {
		return nil
	}
	a.stopped = true

	a.logger.Info().Msg("Stopping agent")

	var errs []error
	if a.poller != nil {
		a.poller.Stop()
	}
	if err := a.machine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close status machine: %w", err))
	}
	if err := a.closeJournal(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info().Msg("Agent stopped")
	return errors.Join(errs...)
}

func (a *Agent) closeJournal() error {
	if a.journal == nil {
		return nil
	}
	err := a.journal.Close()
	a.journal = nil
	if err != nil {
		return fmt.Errorf("failed to close session journal: %w", err)
	}
	return nil
}

// ProfileNow captures one session of length d (the configured duration when
// d is zero) as soon as the capture is free. It fails while inactive.
func (a *Agent) ProfileNow(d time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started || a.stopped {
		return ErrNotStarted
	}
	if d <= 0 {
		d = a.store.Current().ProfilingDuration
	}

	if err := a.orchestrator.Launch(policy.NewOnDemand(d, a.policyOptions())); err != nil {
		return fmt.Errorf("failed to launch on-demand capture: %w", err)
	}
	a.logger.Info().Dur("duration", d).Msg("On-demand capture requested")
	return nil
}

// Status returns the current agent status.
func (a *Agent) Status() status.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.machine == nil {
		return status.Inactive
	}
	return a.machine.Current()
}

// SetStatus switches the agent on or off locally.
func (a *Agent) SetStatus(s status.Status) error {
	a.mu.Lock()
	machine := a.machine
	a.mu.Unlock()
	if machine == nil {
		return ErrNotStarted
	}
	return machine.SetStatus(s, "local")
}

// Baselines returns the current CPU and memory baselines.
func (a *Agent) Baselines() (cpu, memory float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tracker == nil {
		return 0, 0
	}
	return a.tracker.GetAverageCPUUsage(), a.tracker.GetAverageMemoryUsage()
}

// Sessions returns the most recent finished sessions.
func (a *Agent) Sessions(ctx context.Context, limit int) ([]journal.Session, error) {
	a.mu.Lock()
	j := a.journal
	a.mu.Unlock()
	if j == nil {
		return nil, ErrJournalDisabled
	}
	return j.List(ctx, limit)
}

// Owner returns the source of the policy holding the capture, or "".
func (a *Agent) Owner() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.orchestrator == nil {
		return ""
	}
	if p := a.orchestrator.Owner(); p != nil {
		return p.Source()
	}
	return ""
}
