// Package substrate provides the task execution substrates the benchmark
// compares: a bounded worker pool and cheap per-task goroutines.
//
// Both policies sit behind the same capability surface - submit work, get an
// awaitable handle, await with a timeout - so the processing core never
// knows which scheduling strategy is underneath. The policy is chosen once
// at construction, never re-checked per call.
package substrate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrTaskTimeout is returned by Await when the task did not complete within
// the allotted window. The task itself keeps running in the background; a
// timeout only stops the waiter from blocking further.
var ErrTaskTimeout = errors.New("substrate: task did not complete within timeout")

// ErrShutdown is returned for work submitted after Shutdown began.
var ErrShutdown = errors.New("substrate: shutting down, task rejected")

// ErrDrainTimeout is returned by Shutdown when in-flight tasks did not
// finish within the drain budget.
var ErrDrainTimeout = errors.New("substrate: drain timed out with tasks still running")

// errUnavailable marks a policy that cannot be constructed; the factory
// recovers it by falling back to a bounded worker pool.
var errUnavailable = errors.New("substrate: policy unavailable")

// TaskFunc is one unit of submitted work.
type TaskFunc func(ctx context.Context) (any, error)

// Substrate schedules submitted work concurrently.
type Substrate interface {
	// Submit schedules fn and returns immediately with an awaitable handle.
	// Submission never blocks indefinitely: the worker-pool policy runs the
	// task on the caller when saturated rather than queueing without bound.
	Submit(fn TaskFunc) *Handle

	// Shutdown stops accepting work and waits up to drain for in-flight
	// tasks to finish.
	Shutdown(drain time.Duration) error

	// Stats returns a point-in-time snapshot for the worker-pool policy and
	// nil for policies that have no bounded state worth reporting.
	Stats() *Stats

	// Name identifies the policy in metrics and reports.
	Name() string
}

// Stats is a point-in-time snapshot of a bounded substrate.
type Stats struct {
	CompletedTasks int64 `json:"completed_tasks"`
	QueueLength    int   `json:"queue_length"`
	PoolSize       int   `json:"pool_size"`
	ActiveWorkers  int   `json:"active_workers"`
}

// Handle is the awaitable result of one submitted task.
type Handle struct {
	done   chan struct{}
	result any
	err    error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// complete records the outcome and releases waiters. Called exactly once.
func (h *Handle) complete(result any, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// Await blocks until the task completes or timeout elapses. On timeout it
// returns ErrTaskTimeout without cancelling the underlying task.
func (h *Handle) Await(timeout time.Duration) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.result, h.err
	case <-timer.C:
		return nil, ErrTaskTimeout
	}
}

// Done reports completion without blocking.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Policy selects a scheduling strategy.
type Policy string

const (
	// PolicyWorkerPool is the bounded worker-pool strategy.
	PolicyWorkerPool Policy = "worker-pool"

	// PolicyGoroutine is the cheap-task strategy: one goroutine per
	// submission, no internal concurrency ceiling.
	PolicyGoroutine Policy = "goroutine"
)

// Config selects and parameterizes a substrate.
type Config struct {
	Policy     Policy
	WorkerPool WorkerPoolConfig
	Goroutine  GoroutineConfig
}

// DefaultConfig returns the substrate used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Policy:     PolicyWorkerPool,
		WorkerPool: DefaultWorkerPoolConfig(),
	}
}

// New builds the configured substrate. If the cheap-task policy cannot be
// constructed the factory degrades to a bounded worker pool instead of
// failing the caller.
func New(cfg Config) Substrate {
	switch cfg.Policy {
	case PolicyGoroutine:
		s, err := newGoroutine(cfg.Goroutine)
		if err != nil {
			log.WithError(err).Warn("falling back to bounded worker pool")
			return NewWorkerPool(DefaultWorkerPoolConfig())
		}
		return s
	case PolicyWorkerPool:
		return NewWorkerPool(cfg.WorkerPool)
	default:
		log.WithField("policy", cfg.Policy).Warn("unknown substrate policy, using bounded worker pool")
		return NewWorkerPool(cfg.WorkerPool)
	}
}

// runTask executes fn, converting panics into errors so one misbehaving
// task cannot sink the worker or the caller that ran it.
func runTask(fn TaskFunc, h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			h.complete(nil, errors.Errorf("task panicked: %v", r))
		}
	}()

	result, err := fn(context.Background())
	h.complete(result, err)
}
