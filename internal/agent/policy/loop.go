package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-autoprof/internal/constants"
	guard "github.com/coral-mesh/coral-autoprof/internal/errors"
)

// Admission arbitrates capture sessions between policies.
type Admission interface {
	// RequestStart returns false without an error when the session is busy.
	RequestStart(ctx context.Context, p Policy) (bool, error)
	// RequestStop returns false without an error when p is not the owner.
	RequestStop(ctx context.Context, p Policy) (bool, error)
}

// RunOptions configures the execution loop.
type RunOptions struct {
	InitialDelay time.Duration
	// IdleInterval is slept after a pass whose entries add up to no time.
	// Defaults to the policy's polling interval.
	IdleInterval time.Duration
	Logger       zerolog.Logger
}

type pollingIntervaler interface {
	PollingInterval() time.Duration
}

func (o RunOptions) idleInterval(p Policy) time.Duration {
	if o.IdleInterval > 0 {
		return o.IdleInterval
	}
	if pi, ok := p.(pollingIntervaler); ok && pi.PollingInterval() > 0 {
		return pi.PollingInterval()
	}
	return constants.DefaultConfigurationUpdateFrequency
}

// Run walks the schedules of p until ctx is cancelled or p expires.
// Cancellation is not an error.
func Run(ctx context.Context, p Policy, a Admission, opts RunOptions) error {
	logger := opts.Logger.With().Str("policy", p.Source()).Logger()

	if err := sleep(ctx, opts.InitialDelay); err != nil {
		logger.Trace().Msg("Policy loop cancelled during initial delay")
		return nil
	}

	logger.Debug().Msg("Policy loop started")

	for {
		if ctx.Err() != nil {
			logger.Trace().Msg("Policy loop cancelled")
			return nil
		}
		if p.Expiration().IsExpired() {
			logger.Debug().Int("fired", p.Expiration().Fired()).Msg("Policy expired")
			return nil
		}

		p.NeedsRefresh()
		schedule := p.GetSchedule()
		if len(schedule) == 0 {
			return fmt.Errorf("policy %s returned an empty schedule", p.Source())
		}

		logger.Debug().Int("entries", len(schedule)).Msg("Computed schedule")

		done, err := runSchedule(ctx, p, a, schedule, logger)
		if err != nil {
			logger.Trace().Msg("Policy loop cancelled")
			return nil
		}
		if !done {
			logger.Debug().Msg("Settings changed, discarding schedule")
			continue
		}

		if p.Expiration().IsExpired() {
			logger.Debug().Int("fired", p.Expiration().Fired()).Msg("Policy expired")
			return nil
		}

		if span(schedule) <= 0 {
			idle := opts.idleInterval(p)
			logger.Warn().Dur("idle", idle).Msg("Schedule takes no time, standing by")
			if err := sleep(ctx, idle); err != nil {
				logger.Trace().Msg("Policy loop cancelled")
				return nil
			}
		}
	}
}

// span is the total time a schedule takes, ignoring non-positive entries.
func span(schedule []ScheduleEntry) time.Duration {
	var total time.Duration
	for _, e := range schedule {
		if e.Duration > 0 {
			total += e.Duration
		}
	}
	return total
}

// runSchedule executes the entries in order. It returns false when a settings
// change invalidated the rest of the schedule, and an error only when ctx was
// cancelled.
func runSchedule(ctx context.Context, p Policy, a Admission, schedule []ScheduleEntry, logger zerolog.Logger) (bool, error) {
	for i, entry := range schedule {
		if i > 0 && p.NeedsRefresh() {
			return false, nil
		}

		switch entry.Action {
		case Standby:
			if err := sleep(ctx, entry.Duration); err != nil {
				return false, err
			}

		case StartProfilingSession:
			if err := profile(ctx, p, a, entry.Duration, logger); err != nil {
				return false, err
			}

		default:
			logger.Error().Int("action", int(entry.Action)).Msg("Unknown schedule action")
		}
	}
	return true, nil
}

// profile asks for a session, holds it for d and releases it. A denied start
// still waits for d.
func profile(ctx context.Context, p Policy, a Admission, d time.Duration, logger zerolog.Logger) error {
	p.Expiration().Record()

	started, err := a.RequestStart(ctx, p)
	switch {
	case err != nil && cancelled(ctx, err):
		return err
	case err != nil:
		logger.Error().Err(err).Msg("Failed to start capture session")
	case !started:
		logger.Debug().Msg("Capture session denied")
	default:
		logger.Debug().Dur("duration", d).Msg("Capture session started")
	}

	if err := sleep(ctx, d); err != nil {
		return err
	}

	stopped, err := a.RequestStop(ctx, p)
	switch {
	case err != nil && cancelled(ctx, err):
		return err
	case err != nil:
		logger.Error().Err(err).Msg("Failed to stop capture session")
	case stopped:
		logger.Debug().Msg("Capture session stopped")
	}
	return nil
}

// cancelled reports whether err was caused by ctx being cancelled.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && guard.IsCancellation(err)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
