// Package pool provides a bounded pool of reusable upstream client handles.
//
// The pool is the only shared resource in the system that requires
// exclusive-use discipline: one handle, one borrower at a time. It is built
// on go-commons-pool, which gives us lazy handle creation, blocking borrows
// and borrow timeouts via context deadlines.
package pool

import (
	"context"
	"time"

	commonspool "github.com/jolestar/go-commons-pool/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fanbench/fanbench/internal/client"
)

// ErrPoolTimeout is returned when a handle could not be acquired within the
// caller's wait budget. Callers recover it as a failed fetch; it is never
// fatal to a run.
var ErrPoolTimeout = errors.New("client pool: timed out waiting for a free handle")

// Factory builds one client handle. Handles are created lazily, up to the
// pool size, and reused indefinitely.
type Factory func() (client.Client, error)

// Config controls pool construction.
type Config struct {
	// Size is the fixed number of handles the pool may hold.
	Size int

	// AcquireTimeout is the default wait budget applied by With when the
	// caller's context carries no deadline of its own.
	AcquireTimeout time.Duration
}

// DefaultConfig returns the pool sizing used by the benchmarks.
func DefaultConfig() Config {
	return Config{
		Size:           10,
		AcquireTimeout: 5 * time.Second,
	}
}

// Status is a point-in-time view of pool occupancy.
// InUse + Available == Size whenever no acquisition is in flight.
type Status struct {
	Size      int `json:"size"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
}

// Pool is a fixed-size pool of client handles with blocking acquisition.
type Pool struct {
	cfg   Config
	inner *commonspool.ObjectPool
}

// New creates a pool of cfg.Size handles produced by factory.
func New(cfg Config, factory Factory) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}

	poolCfg := commonspool.NewDefaultPoolConfig()
	poolCfg.MaxTotal = cfg.Size
	poolCfg.MaxIdle = cfg.Size
	poolCfg.MinIdle = 0
	poolCfg.BlockWhenExhausted = true

	inner := commonspool.NewObjectPool(context.Background(),
		commonspool.NewPooledObjectFactorySimple(
			func(context.Context) (interface{}, error) {
				return factory()
			}), poolCfg)

	return &Pool{cfg: cfg, inner: inner}
}

// Acquire leases a handle, blocking until one frees up or the context
// expires. Exhaustion past the wait budget yields ErrPoolTimeout.
func (p *Pool) Acquire(ctx context.Context) (client.Client, error) {
	obj, err := p.inner.BorrowObject(ctx)
	if err != nil {
		if ctx.Err() != nil || isExhausted(err) {
			return nil, ErrPoolTimeout
		}
		return nil, errors.Wrap(err, "client pool: borrow failed")
	}
	return obj.(client.Client), nil
}

// Release returns a handle to the pool. It must be called on every exit
// path of the borrowing scope; prefer With, which guarantees it.
func (p *Pool) Release(c client.Client) {
	if err := p.inner.ReturnObject(context.Background(), c); err != nil {
		log.WithError(err).Error("client pool: failed to return handle")
	}
}

// With runs fn with a leased handle and releases it on every exit path,
// including when fn returns an error. If the caller's context has no
// deadline, the configured AcquireTimeout bounds the wait.
func (p *Pool) With(ctx context.Context, fn func(client.Client) error) error {
	acquireCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	c, err := p.Acquire(acquireCtx)
	if err != nil {
		return err
	}
	defer p.Release(c)

	return fn(c)
}

// Status reports current occupancy. Available counts handles that could be
// leased right now, whether or not they have been created yet.
func (p *Pool) Status() Status {
	inUse := p.inner.GetNumActive()
	return Status{
		Size:      p.cfg.Size,
		Available: p.cfg.Size - inUse,
		InUse:     inUse,
	}
}

// Close destroys the pool. Outstanding handles are invalidated on return.
func (p *Pool) Close() {
	p.inner.Close(context.Background())
}

// isExhausted reports whether err is commons-pool's exhaustion error.
func isExhausted(err error) bool {
	_, ok := errors.Cause(err).(*commonspool.NoSuchElementErr)
	return ok
}
