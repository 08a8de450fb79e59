package run

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
)

// slice is the scheduling quantum of a worker.
const slice = 100 * time.Millisecond

// workload burns a share of CPU in each worker by hashing a buffer.
type workload struct {
	workers int
	busy    float64

	units  atomic.Uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorkload(workers int, busy float64) *workload {
	if workers < 0 {
		workers = 0
	}
	return &workload{workers: workers, busy: busy}
}

// Start launches the workers.
func (w *workload) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.work(ctx, uint64(i))
	}
}

// Stop halts the workers and waits for them.
func (w *workload) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Units returns the number of hash rounds performed.
func (w *workload) Units() uint64 { return w.units.Load() }

func (w *workload) work(ctx context.Context, seed uint64) {
	defer w.wg.Done()

	buf := make([]byte, 4096)
	busyFor := time.Duration(float64(slice) * w.busy)
	idleFor := slice - busyFor

	for {
		deadline := time.Now().Add(busyFor)
		for time.Now().Before(deadline) {
			seed ^= xxh3.Hash(buf)
			binary.LittleEndian.PutUint64(buf, seed)
			w.units.Add(1)
		}

		if idleFor <= 0 {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(idleFor):
		}
	}
}
