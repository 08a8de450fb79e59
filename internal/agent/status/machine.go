package status

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-autoprof/internal/agent/settings"
	"github.com/coral-mesh/coral-autoprof/pkg/version"
)

// ErrAlreadyInitialized is returned by a second Initialize call.
var ErrAlreadyInitialized = errors.New("status machine already initialized")

// defaultSendTimeout bounds a single report delivery.
const defaultSendTimeout = 30 * time.Second

// Options configures a Machine.
type Options struct {
	AgentID string
	// Initial is the locally configured status.
	Initial Status
	// FollowRemote lets the settings' AgentEnabled flag drive the status.
	FollowRemote      bool
	HeartbeatInterval time.Duration
	SendTimeout       time.Duration
}

// SettingsView is the part of the settings store the machine reads.
type SettingsView interface {
	Current() settings.Snapshot
	HasRemote() bool
}

// Machine owns the agent status.
//
// Transitions are delivered synchronously to every listener in registration
// order on the goroutine that caused them. A failing listener is logged and
// does not prevent the others from running.
type Machine struct {
	opts     Options
	reporter Reporter
	settings SettingsView
	logger   zerolog.Logger
	hostname string

	mu          sync.Mutex
	current     Status
	listeners   []Listener
	initialized bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc

	heartbeatWG sync.WaitGroup
	sendWG      sync.WaitGroup
}

// NewMachine creates a status machine. The status is Inactive until Initialize.
func NewMachine(opts Options, reporter Reporter, view SettingsView, logger zerolog.Logger) *Machine {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	hostname, _ := os.Hostname()

	return &Machine{
		opts:     opts,
		reporter: reporter,
		settings: view,
		logger:   logger.With().Str("component", "status").Logger(),
		hostname: hostname,
		current:  Inactive,
	}
}

// Subscribe registers a listener. Listeners added after Initialize only see
// later transitions.
func (m *Machine) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Current returns the current status.
func (m *Machine) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Initialize resolves the initial status, publishes it to every listener
// exactly once and arms the heartbeat.
func (m *Machine) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	initial, source := m.initialStatus()
	m.current = initial
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info().
		Str("status", initial.String()).
		Str("source", source).
		Dur("heartbeat_interval", m.opts.HeartbeatInterval).
		Msg("Agent status initialized")

	m.notify(listeners, initial)

	m.heartbeatWG.Add(1)
	go m.heartbeatLoop()

	m.sendAsync(ReasonStartup)
	return nil
}

// initialStatus prefers remote settings when the agent follows them, then the
// local configuration. Must be called with m.mu held.
func (m *Machine) initialStatus() (Status, string) {
	if m.opts.FollowRemote && m.settings != nil && m.settings.HasRemote() {
		if m.settings.Current().AgentEnabled {
			return Active, "remote"
		}
		return Inactive, "remote"
	}
	if m.opts.Initial.Valid() {
		return m.opts.Initial, "local"
	}
	return Active, "default"
}

// SetStatus moves the machine to s and publishes the transition.
// Setting the current status again is a no-op.
func (m *Machine) SetStatus(s Status, reason string) error {
	if !s.Valid() {
		m.logger.Error().Int("status", int(s)).Str("reason", reason).Msg("Refusing unknown status")
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}

	m.mu.Lock()
	if m.current == s {
		m.mu.Unlock()
		return nil
	}
	previous := m.current
	m.current = s
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info().
		Str("from", previous.String()).
		Str("to", s.String()).
		Str("reason", reason).
		Msg("Agent status changed")

	m.notify(listeners, s)
	return nil
}

// OnSettingsUpdated is invoked after new remote settings were stored. It
// applies the remote switch when configured to and reports the status.
// Updates arriving after Close are ignored.
func (m *Machine) OnSettingsUpdated(_ context.Context, snap settings.Snapshot) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.logger.Debug().Msg("Ignoring settings update after close")
		return
	}

	if m.opts.FollowRemote {
		want := Inactive
		if snap.AgentEnabled {
			want = Active
		}
		_ = m.SetStatus(want, "remote settings")
	}
	m.sendAsync(ReasonSettingsUpdated)
}

// Close stops the heartbeat, publishes Inactive and waits for pending reports.
func (m *Machine) Close() error {
	m.mu.Lock()
	if !m.initialized || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.SetStatus(Inactive, "shutdown")

	m.send(ReasonShutdown)
	m.cancel()
	m.heartbeatWG.Wait()
	m.sendWG.Wait()
	return err
}

// Snapshot builds the report describing the current status.
func (m *Machine) Snapshot() Report {
	return Report{
		AgentID:   m.opts.AgentID,
		Status:    m.Current().String(),
		Version:   version.Version,
		PID:       os.Getpid(),
		Hostname:  m.hostname,
		Timestamp: time.Now().UTC(),
	}
}

func (m *Machine) notify(listeners []Listener, s Status) {
	for _, l := range listeners {
		if err := l.OnStatusChanged(s); err != nil {
			m.logger.Error().
				Err(err).
				Str("status", s.String()).
				Str("listener", fmt.Sprintf("%T", l)).
				Msg("Status listener failed")
		}
	}
}

// heartbeatLoop reports the status on every interval. The timer is rearmed
// after each attempt whatever its outcome.
func (m *Machine) heartbeatLoop() {
	defer m.heartbeatWG.Done()

	timer := time.NewTimer(m.opts.HeartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
			m.send(ReasonHeartbeat)
			timer.Reset(m.opts.HeartbeatInterval)
		}
	}
}

// sendAsync reports in the background unless the machine is closed. The
// WaitGroup is only grown under mu so that Close never races a late Add.
func (m *Machine) sendAsync(reason Reason) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.sendWG.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.sendWG.Done()
		m.send(reason)
	}()
}

// send delivers one report. Failures are logged and never propagate.
func (m *Machine) send(reason Reason) {
	if m.reporter == nil {
		return
	}

	m.mu.Lock()
	base := m.ctx
	m.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), m.opts.SendTimeout)
	defer cancel()

	report := m.Snapshot()
	report.Reason = reason
	if err := m.reporter.Send(ctx, report, reason); err != nil {
		m.logger.Warn().Err(err).Str("reason", string(reason)).Msg("Failed to report agent status")
		return
	}
	m.logger.Debug().Str("status", report.Status).Str("reason", string(reason)).Msg("Reported agent status")
}
