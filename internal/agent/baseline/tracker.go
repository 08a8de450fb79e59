package baseline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-autoprof/internal/agent/status"
	guard "github.com/coral-mesh/coral-autoprof/internal/errors"
)

// Metric names a tracked resource.
type Metric string

const (
	MetricCPU    Metric = "cpu"
	MetricMemory Metric = "memory"
)

// Source yields the next reading of a metric, as a percentage.
type Source interface {
	NextValue(ctx context.Context) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (float64, error)

// NextValue implements Source.
func (f SourceFunc) NextValue(ctx context.Context) (float64, error) { return f(ctx) }

// ChangeFunc is called when a published baseline moves.
type ChangeFunc func(metric Metric, previous, current float64)

// Config configures the tracker.
type Config struct {
	SampleInterval time.Duration
	Retention      time.Duration
	Window         time.Duration
	AllowCrash     bool
}

// Tracker samples CPU and memory while the agent is active and publishes the
// trailing-window mean of each.
type Tracker struct {
	cfg     Config
	sources map[Metric]Source
	logger  zerolog.Logger
	now     func() time.Time

	published map[Metric]*atomic.Uint64

	mu        sync.Mutex
	onChange  ChangeFunc
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	histories map[Metric]*RollingHistory
}

// NewTracker creates a tracker over the given sources.
func NewTracker(cfg Config, cpu, memory Source, logger zerolog.Logger) *Tracker {
	return &Tracker{
		cfg:     cfg,
		sources: map[Metric]Source{MetricCPU: cpu, MetricMemory: memory},
		logger:  logger.With().Str("component", "baseline_tracker").Logger(),
		now:     time.Now,
		published: map[Metric]*atomic.Uint64{
			MetricCPU:    new(atomic.Uint64),
			MetricMemory: new(atomic.Uint64),
		},
	}
}

// OnChange registers the callback invoked when a baseline changes.
func (t *Tracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// GetAverageCPUUsage returns the last published CPU baseline (0 before any sample).
func (t *Tracker) GetAverageCPUUsage() float64 { return t.Baseline(MetricCPU) }

// GetAverageMemoryUsage returns the last published memory baseline (0 before any sample).
func (t *Tracker) GetAverageMemoryUsage() float64 { return t.Baseline(MetricMemory) }

// Baseline returns the last published value for metric.
func (t *Tracker) Baseline(metric Metric) float64 {
	p, ok := t.published[metric]
	if !ok {
		return 0
	}
	return math.Float64frombits(p.Load())
}

// IsRunning reports whether the samplers are active.
func (t *Tracker) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// OnStatusChanged starts sampling on Active and stops it on Inactive.
func (t *Tracker) OnStatusChanged(s status.Status) error {
	switch s {
	case status.Active:
		t.start()
		return nil
	case status.Inactive:
		t.stop()
		return nil
	default:
		return fmt.Errorf("baseline tracker: %w: %d", status.ErrUnknownStatus, int(s))
	}
}

// start replaces both histories and launches one sampler per metric.
func (t *Tracker) start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.logger.Debug().Msg("Baseline tracker already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.histories = make(map[Metric]*RollingHistory, len(t.sources))
	t.running = true

	for metric, src := range t.sources {
		if src == nil {
			continue
		}
		hist := NewRollingHistory(t.cfg.Retention, t.cfg.SampleInterval)
		t.histories[metric] = hist

		t.wg.Add(1)
		go func(metric Metric, src Source, hist *RollingHistory) {
			defer t.wg.Done()
			_ = guard.Guard(t.logger, t.cfg.AllowCrash, "baseline_sampler_"+string(metric), func() error {
				t.sampleLoop(ctx, metric, src, hist)
				return nil
			})
		}(metric, src, hist)
	}

	t.logger.Info().
		Dur("sample_interval", t.cfg.SampleInterval).
		Dur("retention", t.cfg.Retention).
		Dur("window", t.cfg.Window).
		Msg("Baseline tracker started")
}

// stop halts sampling and drops the histories. Stopping twice is a no-op.
func (t *Tracker) stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		t.logger.Debug().Msg("Baseline tracker already stopped")
		return
	}
	t.cancel()
	t.running = false
	t.histories = nil
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info().Msg("Baseline tracker stopped")
}

func (t *Tracker) sampleLoop(ctx context.Context, metric Metric, src Source, hist *RollingHistory) {
	ticker := time.NewTicker(t.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sampleOnce(ctx, metric, src, hist)
		}
	}
}

// sampleOnce pulls one reading, folds it into the history and publishes the
// new mean when it differs from the last published one.
func (t *Tracker) sampleOnce(ctx context.Context, metric Metric, src Source, hist *RollingHistory) {
	value, err := src.NextValue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn().Err(err).Str("metric", string(metric)).Msg("Failed to sample metric")
		}
		return
	}

	now := t.now()
	hist.Add(now, value)

	avg, ok := hist.Average(now, t.cfg.Window)
	if !ok {
		return
	}

	published := t.published[metric]
	previous := math.Float64frombits(published.Load())
	if avg == previous {
		return
	}
	published.Store(math.Float64bits(avg))

	t.logger.Trace().
		Str("metric", string(metric)).
		Float64("previous", previous).
		Float64("baseline", avg).
		Msg("Baseline changed")

	t.mu.Lock()
	onChange := t.onChange
	t.mu.Unlock()
	if onChange != nil {
		onChange(metric, previous, avg)
	}
}
