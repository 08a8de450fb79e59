package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-autoprof/internal/agent/settings"
	"github.com/coral-mesh/coral-autoprof/internal/config"
)

type recordingListener struct {
	mu   sync.Mutex
	seen []Status
	err  error
}

func (r *recordingListener) OnStatusChanged(s Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
	return r.err
}

func (r *recordingListener) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.seen...)
}

type mockReporter struct {
	mu         sync.Mutex
	reports    []Report
	shouldFail bool
	received   chan Reason
}

func newMockReporter() *mockReporter {
	return &mockReporter{received: make(chan Reason, 100)}
}

func (m *mockReporter) Send(_ context.Context, report Report, reason Reason) error {
	defer func() {
		select {
		case m.received <- reason:
		default:
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return errors.New("control plane unavailable")
	}
	m.reports = append(m.reports, report)
	return nil
}

func (m *mockReporter) awaitReason(t *testing.T, want Reason) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-m.received:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("no %s report received", want)
		}
	}
}

func (m *mockReporter) setFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
}

func newStore(remote *settings.Snapshot) *settings.Store {
	store := settings.NewStore(settings.FromConfig(config.Default()))
	if remote != nil {
		store.Update(*remote)
	}
	return store
}

func TestParse(t *testing.T) {
	s, err := Parse("Active")
	require.NoError(t, err)
	assert.Equal(t, Active, s)

	s, err = Parse("inactive")
	require.NoError(t, err)
	assert.Equal(t, Inactive, s)

	_, err = Parse("paused")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	assert.Equal(t, "status(9)", Status(9).String())
	assert.False(t, Status(9).Valid())
}

func TestMachine_InitializePublishesOnce(t *testing.T) {
	m := NewMachine(Options{Initial: Active, HeartbeatInterval: time.Hour}, newMockReporter(), newStore(nil), zerolog.Nop())
	first, second := &recordingListener{}, &recordingListener{}
	m.Subscribe(first)
	m.Subscribe(second)

	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	assert.Equal(t, []Status{Active}, first.statuses())
	assert.Equal(t, []Status{Active}, second.statuses())
	assert.Equal(t, Active, m.Current())

	assert.ErrorIs(t, m.Initialize(context.Background()), ErrAlreadyInitialized)
	assert.Len(t, first.statuses(), 1)
}

func TestMachine_InitialStatusResolution(t *testing.T) {
	disabled := settings.FromConfig(config.Default())
	disabled.AgentEnabled = false

	tests := []struct {
		name   string
		opts   Options
		remote *settings.Snapshot
		want   Status
	}{
		{"local active", Options{Initial: Active}, nil, Active},
		{"local inactive", Options{Initial: Inactive}, nil, Inactive},
		{"invalid local falls back to default", Options{Initial: Status(42)}, nil, Active},
		{"remote ignored unless followed", Options{Initial: Active}, &disabled, Active},
		{"remote followed", Options{Initial: Active, FollowRemote: true}, &disabled, Inactive},
		{"follow without remote uses local", Options{Initial: Inactive, FollowRemote: true}, nil, Inactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.HeartbeatInterval = time.Hour
			m := NewMachine(tt.opts, nil, newStore(tt.remote), zerolog.Nop())
			l := &recordingListener{}
			m.Subscribe(l)

			require.NoError(t, m.Initialize(context.Background()))
			defer m.Close()

			assert.Equal(t, []Status{tt.want}, l.statuses())
		})
	}
}

func TestMachine_SetStatus(t *testing.T) {
	m := NewMachine(Options{Initial: Active, HeartbeatInterval: time.Hour}, nil, newStore(nil), zerolog.Nop())
	l := &recordingListener{}
	m.Subscribe(l)
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, m.SetStatus(Active, "noop"))
	require.NoError(t, m.SetStatus(Inactive, "test"))
	require.NoError(t, m.SetStatus(Active, "test"))
	assert.ErrorIs(t, m.SetStatus(Status(5), "bogus"), ErrUnknownStatus)

	assert.Equal(t, []Status{Active, Inactive, Active}, l.statuses())

	require.NoError(t, m.Close())
	assert.Equal(t, []Status{Active, Inactive, Active, Inactive}, l.statuses())
	require.NoError(t, m.Close(), "second close is a no-op")
}

func TestMachine_FailingListenerDoesNotStopChain(t *testing.T) {
	m := NewMachine(Options{Initial: Active, HeartbeatInterval: time.Hour}, nil, newStore(nil), zerolog.Nop())
	failing := &recordingListener{err: errors.New("listener broke")}
	healthy := &recordingListener{}
	m.Subscribe(failing)
	m.Subscribe(healthy)

	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	assert.Equal(t, []Status{Active}, healthy.statuses())
}

func TestMachine_HeartbeatKeepsRunningAfterFailures(t *testing.T) {
	reporter := newMockReporter()
	reporter.setFailure(true)

	m := NewMachine(Options{AgentID: "agent-1", Initial: Active, HeartbeatInterval: 5 * time.Millisecond}, reporter, newStore(nil), zerolog.Nop())
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	reporter.awaitReason(t, ReasonHeartbeat)
	reporter.awaitReason(t, ReasonHeartbeat)

	reporter.setFailure(false)
	require.Eventually(t, func() bool {
		reporter.mu.Lock()
		defer reporter.mu.Unlock()
		for _, r := range reporter.reports {
			if r.Reason == ReasonHeartbeat {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	last := reporter.reports[len(reporter.reports)-1]
	assert.Equal(t, "agent-1", last.AgentID)
	assert.Equal(t, "active", last.Status)
}

func TestMachine_OnSettingsUpdated(t *testing.T) {
	reporter := newMockReporter()
	store := newStore(nil)
	m := NewMachine(Options{Initial: Active, HeartbeatInterval: time.Hour}, reporter, store, zerolog.Nop())
	l := &recordingListener{}
	m.Subscribe(l)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	snap := store.Current()
	snap.AgentEnabled = false
	m.OnSettingsUpdated(context.Background(), snap)

	reporter.awaitReason(t, ReasonSettingsUpdated)
	assert.Equal(t, Active, m.Current(), "status is republished unchanged when not following remote")
	assert.Equal(t, []Status{Active}, l.statuses())
}

func TestMachine_SettingsUpdateAfterClose(t *testing.T) {
	reporter := newMockReporter()
	store := newStore(nil)
	m := NewMachine(Options{Initial: Active, FollowRemote: true, HeartbeatInterval: time.Hour}, reporter, store, zerolog.Nop())
	l := &recordingListener{}
	m.Subscribe(l)
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Close())

	snap := store.Current()
	snap.AgentEnabled = true
	m.OnSettingsUpdated(context.Background(), snap)

	assert.Equal(t, Inactive, m.Current(), "a closed machine stays inactive")
	assert.Equal(t, []Status{Active, Inactive}, l.statuses())

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	for _, r := range reporter.reports {
		assert.NotEqual(t, ReasonSettingsUpdated, r.Reason)
	}
}

func TestMachine_OnSettingsUpdatedFollowRemote(t *testing.T) {
	store := newStore(nil)
	m := NewMachine(Options{Initial: Active, FollowRemote: true, HeartbeatInterval: time.Hour}, nil, store, zerolog.Nop())
	l := &recordingListener{}
	m.Subscribe(l)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	snap := store.Current()
	snap.AgentEnabled = false
	m.OnSettingsUpdated(context.Background(), snap)
	assert.Equal(t, Inactive, m.Current())

	snap.AgentEnabled = true
	m.OnSettingsUpdated(context.Background(), snap)
	assert.Equal(t, []Status{Active, Inactive, Active}, l.statuses())
}

func TestHTTPReporter(t *testing.T) {
	received := make(chan Report, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var report Report
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		received <- report
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	reporter := NewHTTPReporter(srv.URL, time.Second)
	err := reporter.Send(context.Background(), Report{AgentID: "agent-9", Status: "active"}, ReasonHeartbeat)
	require.NoError(t, err)

	got := <-received
	assert.Equal(t, "agent-9", got.AgentID)
	assert.Equal(t, ReasonHeartbeat, got.Reason)
}

func TestHTTPReporter_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPReporter(srv.URL, time.Second).Send(context.Background(), Report{}, ReasonHeartbeat)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
