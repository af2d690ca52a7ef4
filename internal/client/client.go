// Package client provides the simulated upstream API used by the benchmark.
//
// The simulator reproduces the two properties that matter for concurrency
// benchmarking: request latency (configurable base + uniform jitter) and a
// configurable failure probability. Everything else about the upstream is
// opaque to the rest of the system.
package client

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Client is the upstream fetch capability the processing core depends on.
//
// A client handle is not safe for concurrent use; the resource pool
// guarantees exclusive use while a handle is leased.
type Client interface {
	// Fetch returns the payload for the given identifier from the named
	// source, or an error after the simulated latency has elapsed.
	Fetch(ctx context.Context, source, id string) (*Payload, error)
}

// Payload is the envelope returned by an upstream fetch.
type Payload struct {
	Source    string         `json:"source"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// SimulatedError is returned when the simulator decides a fetch fails.
type SimulatedError struct {
	Source string
	ID     string
}

func (e *SimulatedError) Error() string {
	return fmt.Sprintf("simulated upstream error from %s for id %s", e.Source, e.ID)
}

// Config controls the behaviour of a simulated client.
type Config struct {
	// BaseLatency is the minimum time every fetch takes.
	BaseLatency time.Duration

	// Jitter is the upper bound of the uniform random latency added on top
	// of BaseLatency.
	Jitter time.Duration

	// FailureRate is the probability in [0,1] that a fetch fails with a
	// SimulatedError after its latency has elapsed.
	FailureRate float64
}

// DefaultConfig returns the latency profile used by the benchmarks: a fast
// upstream with some spread in response times and no failures.
func DefaultConfig() Config {
	return Config{
		BaseLatency: 5 * time.Millisecond,
		Jitter:      15 * time.Millisecond,
		FailureRate: 0,
	}
}

// SimClient simulates an I/O-bound upstream API.
type SimClient struct {
	cfg Config

	// rand.Rand is not safe for concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a simulated client.
func New(cfg Config) *SimClient {
	return &SimClient{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch sleeps for the simulated latency, then either fails with a
// SimulatedError (per the configured failure rate) or returns a payload.
// The sleep is interruptible by the context.
func (c *SimClient) Fetch(ctx context.Context, source, id string) (*Payload, error) {
	delay := c.cfg.BaseLatency
	if c.cfg.Jitter > 0 {
		delay += c.randomJitter()
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if c.cfg.FailureRate > 0 && c.randomFloat() < c.cfg.FailureRate {
		return nil, &SimulatedError{Source: source, ID: id}
	}

	return &Payload{
		Source:    source,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"id":     id,
			"source": source,
			"value":  fmt.Sprintf("%s-data-%s", source, id),
		},
	}, nil
}

func (c *SimClient) randomJitter() time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return time.Duration(c.rng.Int63n(int64(c.cfg.Jitter)))
}

func (c *SimClient) randomFloat() float64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Float64()
}

var _ Client = (*SimClient)(nil)
