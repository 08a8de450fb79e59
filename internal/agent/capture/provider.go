package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-autoprof/internal/agent/journal"
)

// Recorder receives every finished session.
type Recorder interface {
	Record(ctx context.Context, s journal.Session) error
}

type activeSession struct {
	id        string
	source    string
	path      string
	startedAt time.Time
}

// Provider wraps a Mechanism into sessions owned by a named source.
type Provider struct {
	mechanism Mechanism
	outputDir string
	recorder  Recorder
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	active *activeSession
	last   *journal.Session
}

// NewProvider creates a provider writing captures under outputDir. recorder
// may be nil.
func NewProvider(mechanism Mechanism, outputDir string, recorder Recorder, logger zerolog.Logger) *Provider {
	return &Provider{
		mechanism: mechanism,
		outputDir: outputDir,
		recorder:  recorder,
		logger:    logger.With().Str("component", "capture_provider").Logger(),
		now:       time.Now,
	}
}

// StartSession enables the capture for source. It returns false without an
// error when a session is already running.
func (p *Provider) StartSession(ctx context.Context, source string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		p.logger.Debug().
			Str("source", source).
			Str("owner", p.active.source).
			Msg("Capture session already running")
		return false, nil
	}

	id := uuid.New().String()
	path := filepath.Join(p.outputDir, fmt.Sprintf("%s-%s.pprof", source, id))

	if err := p.mechanism.EnableCapture(path); err != nil {
		return false, fmt.Errorf("failed to enable capture for %s: %w", source, err)
	}

	p.active = &activeSession{
		id:        id,
		source:    source,
		path:      path,
		startedAt: p.now(),
	}

	p.logger.Info().
		Str("session_id", id).
		Str("source", source).
		Str("path", path).
		Msg("Capture session started")
	return true, nil
}

// StopSession disables the capture started by source. It returns false
// without an error when source does not own the running session.
func (p *Provider) StopSession(ctx context.Context, source string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == nil || p.active.source != source {
		return false, nil
	}
	active := p.active

	pid, err := p.mechanism.DisableCapture()
	if err != nil {
		if c, ok := p.mechanism.(Capturing); !ok || !c.Capturing() {
			p.active = nil
			p.finish(ctx, active, 0, journal.StatusFailed)
		}
		return false, fmt.Errorf("failed to disable capture for %s: %w", source, err)
	}
	p.active = nil

	p.finish(ctx, active, pid, journal.StatusCompleted)
	return true, nil
}

// IsRunning reports whether a session is in progress.
func (p *Provider) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// LastSession returns the most recently finished session.
func (p *Provider) LastSession() (journal.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return journal.Session{}, false
	}
	return *p.last, true
}

// finish summarizes and records a session. Called with p.mu held.
func (p *Provider) finish(ctx context.Context, a *activeSession, pid int, status string) {
	s := journal.Session{
		ID:         a.id,
		Source:     a.source,
		Path:       a.path,
		PID:        pid,
		StartedAt:  a.startedAt,
		FinishedAt: p.now(),
		Status:     status,
	}

	if status == journal.StatusCompleted {
		count, err := countSamples(a.path)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", a.path).Msg("Failed to summarize capture")
		}
		s.SampleCount = count
	}
	p.last = &s

	p.logger.Info().
		Str("session_id", s.ID).
		Str("source", s.Source).
		Str("status", s.Status).
		Int64("samples", s.SampleCount).
		Dur("duration", s.Duration()).
		Msg("Capture session finished")

	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), s); err != nil {
		p.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to record capture session")
	}
}

// countSamples returns the total sample count of a pprof file.
func countSamples(path string) (int64, error) {
	// #nosec G304 - path was created by this provider.
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture: %w", err)
	}
	defer func() { _ = f.Close() }()

	prof, err := profile.Parse(f)
	if err != nil {
		return 0, fmt.Errorf("failed to parse pprof profile: %w", err)
	}

	var total int64
	for _, sample := range prof.Sample {
		if len(sample.Value) > 0 {
			total += sample.Value[0]
		}
	}
	return total, nil
}
