package settings

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Listener is notified after the store has been updated with new settings.
type Listener func(ctx context.Context, snap Snapshot)

// Poller periodically fetches settings, stores changes and notifies listeners.
type Poller struct {
	fetcher  Fetcher
	store    *Store
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	listeners []Listener
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPoller creates a settings poller.
func NewPoller(fetcher Fetcher, store *Store, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "settings_poller").Logger(),
	}
}

// OnUpdate registers a listener.
func (p *Poller) OnUpdate(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Start begins polling in the background until Stop or ctx cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.logger.Info().Dur("interval", p.interval).Msg("Starting settings poller")

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.wg.Add(1)
	go p.pollLoop(ctx)
}

// Stop stops polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.logger.Info().Msg("Stopping settings poller")
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// PollOnce performs a single fetch. It reports whether settings changed.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	snap, changed, err := p.fetcher.Fetch(ctx)
	if err != nil || !changed {
		return false, err
	}

	p.store.Update(snap)

	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	for _, l := range listeners {
		l(ctx, snap)
	}
	return true, nil
}

// pollLoop polls immediately, then on every tick.
func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	changed, err := p.PollOnce(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		p.logger.Trace().Err(err).Msg("Settings poll cancelled")
	case err != nil:
		p.logger.Warn().Err(err).Msg("Settings poll failed")
	case changed:
		p.logger.Info().Msg("Applied new settings from control plane")
	}
}
