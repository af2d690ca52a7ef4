package substrate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// GoroutineConfig parameterizes the cheap-task policy.
type GoroutineConfig struct {
	// MaxInFlight is an optional sanity ceiling on concurrent tasks.
	// Zero means unbounded: concurrency is limited only by external
	// resource contention (the client pool). Negative values make the
	// policy unconstructible and trigger the worker-pool fallback.
	MaxInFlight int
}

// Goroutine is the cheap-task substrate: every submission is scheduled
// independently on its own goroutine, with no queue and no worker ceiling.
type Goroutine struct {
	cfg GoroutineConfig

	// sem is nil when MaxInFlight is zero.
	sem chan struct{}

	inflight  atomic.Int32
	completed atomic.Int64

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

func newGoroutine(cfg GoroutineConfig) (*Goroutine, error) {
	if cfg.MaxInFlight < 0 {
		return nil, errors.Wrapf(errUnavailable, "invalid max in-flight %d", cfg.MaxInFlight)
	}

	g := &Goroutine{cfg: cfg}
	if cfg.MaxInFlight > 0 {
		g.sem = make(chan struct{}, cfg.MaxInFlight)
	}
	return g, nil
}

// NewGoroutine builds the cheap-task substrate directly, bypassing the
// factory fallback. Used by tests and the environment check.
func NewGoroutine(cfg GoroutineConfig) (*Goroutine, error) {
	return newGoroutine(cfg)
}

// Name implements Substrate.
func (g *Goroutine) Name() string {
	return string(PolicyGoroutine)
}

// Submit implements Substrate.
func (g *Goroutine) Submit(fn TaskFunc) *Handle {
	h := newHandle()

	g.closeMu.RLock()
	if g.closed {
		g.closeMu.RUnlock()
		h.complete(nil, ErrShutdown)
		return h
	}
	g.wg.Add(1)
	g.closeMu.RUnlock()

	go func() {
		defer g.wg.Done()

		if g.sem != nil {
			g.sem <- struct{}{}
			defer func() { <-g.sem }()
		}

		g.inflight.Add(1)
		runTask(fn, h)
		g.inflight.Add(-1)
		g.completed.Add(1)
	}()

	return h
}

// Shutdown stops accepting work and waits up to drain for in-flight tasks.
func (g *Goroutine) Shutdown(drain time.Duration) error {
	g.closeMu.Lock()
	g.closed = true
	g.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(drain)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrDrainTimeout
	}
}

// Stats implements Substrate. The cheap-task policy has no bounded state to
// report.
func (g *Goroutine) Stats() *Stats {
	return nil
}

var _ Substrate = (*Goroutine)(nil)
