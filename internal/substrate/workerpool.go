package substrate

import (
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPoolConfig parameterizes the bounded worker-pool policy.
type WorkerPoolConfig struct {
	// MinWorkers is the number of workers kept alive for the lifetime of
	// the pool.
	MinWorkers int

	// MaxWorkers bounds the total worker count. Workers above MinWorkers
	// are spawned on demand and reclaimed after IdleTimeout.
	MaxWorkers int

	// QueueSize bounds the backlog. When the queue is full and MaxWorkers
	// are running, the submitter executes the task itself.
	QueueSize int

	// IdleTimeout is how long an on-demand worker waits for work before
	// exiting.
	IdleTimeout time.Duration
}

// DefaultWorkerPoolConfig mirrors the sizing used by the benchmarks.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MinWorkers:  4,
		MaxWorkers:  32,
		QueueSize:   128,
		IdleTimeout: 30 * time.Second,
	}
}

func (c WorkerPoolConfig) withDefaults() WorkerPoolConfig {
	def := DefaultWorkerPoolConfig()
	if c.MinWorkers <= 0 {
		c.MinWorkers = def.MinWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	return c
}

type poolTask struct {
	fn     TaskFunc
	handle *Handle
}

// WorkerPool is the bounded-concurrency substrate: a fixed minimum of
// long-lived workers, on-demand workers up to a maximum, a bounded backlog,
// and run-on-caller once saturated. Saturation trades fairness for forward
// progress: the submitter is slowed down, but work is never dropped.
type WorkerPool struct {
	cfg   WorkerPoolConfig
	queue chan *poolTask

	workers   atomic.Int32
	active    atomic.Int32
	completed atomic.Int64

	// closeMu serializes Submit against closing the queue channel.
	closeMu sync.RWMutex
	closed  bool

	wg sync.WaitGroup
}

// NewWorkerPool starts the minimum worker set and returns the pool.
func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	cfg = cfg.withDefaults()
	p := &WorkerPool{
		cfg:   cfg,
		queue: make(chan *poolTask, cfg.QueueSize),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawn(nil, true)
	}

	return p
}

// Name implements Substrate.
func (p *WorkerPool) Name() string {
	return string(PolicyWorkerPool)
}

// Submit implements Substrate. The fast path enqueues; a full queue grows
// the pool up to MaxWorkers; a saturated pool runs the task on the caller.
func (p *WorkerPool) Submit(fn TaskFunc) *Handle {
	h := newHandle()
	t := &poolTask{fn: fn, handle: h}

	p.closeMu.RLock()
	if p.closed {
		p.closeMu.RUnlock()
		h.complete(nil, ErrShutdown)
		return h
	}

	select {
	case p.queue <- t:
		p.closeMu.RUnlock()
		return h
	default:
	}

	if p.tryGrow(t) {
		p.closeMu.RUnlock()
		return h
	}
	p.closeMu.RUnlock()

	// Saturated: run on the caller.
	p.execute(t)
	return h
}

// tryGrow spawns an on-demand worker seeded with t if the worker budget
// allows it.
func (p *WorkerPool) tryGrow(t *poolTask) bool {
	for {
		current := p.workers.Load()
		if int(current) >= p.cfg.MaxWorkers {
			return false
		}
		if p.workers.CompareAndSwap(current, current+1) {
			p.startWorker(t, false)
			return true
		}
	}
}

// spawn starts a worker, accounting for it first.
func (p *WorkerPool) spawn(seed *poolTask, core bool) {
	p.workers.Add(1)
	p.startWorker(seed, core)
}

func (p *WorkerPool) startWorker(seed *poolTask, core bool) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.workers.Add(-1)

		if seed != nil {
			p.execute(seed)
		}

		if core {
			for t := range p.queue {
				p.execute(t)
			}
			return
		}

		idle := time.NewTimer(p.cfg.IdleTimeout)
		defer idle.Stop()
		for {
			select {
			case t, ok := <-p.queue:
				if !ok {
					return
				}
				p.execute(t)
				if !idle.Stop() {
					<-idle.C
				}
				idle.Reset(p.cfg.IdleTimeout)
			case <-idle.C:
				return
			}
		}
	}()
}

func (p *WorkerPool) execute(t *poolTask) {
	p.active.Add(1)
	runTask(t.fn, t.handle)
	p.active.Add(-1)
	p.completed.Add(1)
}

// Shutdown stops accepting work, lets workers drain the backlog, and waits
// up to drain for them to exit.
func (p *WorkerPool) Shutdown(drain time.Duration) error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
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

// Stats implements Substrate.
func (p *WorkerPool) Stats() *Stats {
	return &Stats{
		CompletedTasks: p.completed.Load(),
		QueueLength:    len(p.queue),
		PoolSize:       int(p.workers.Load()),
		ActiveWorkers:  int(p.active.Load()),
	}
}

var _ Substrate = (*WorkerPool)(nil)
