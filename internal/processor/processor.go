// Package processor implements the fan-out processing core: one unit fans
// out into two independent sub-fetches, and one batch fans out into one
// processing task per unit. All scheduling goes through the substrate; all
// upstream access goes through the client pool.
package processor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fanbench/fanbench/internal/client"
	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/pool"
	"github.com/fanbench/fanbench/internal/substrate"
	"github.com/fanbench/fanbench/internal/unit"
)

// The two upstream sources every unit fans out to.
const (
	SourcePrimary   = "primary"
	SourceSecondary = "secondary"
)

// Config parameterizes unit processing.
type Config struct {
	// FetchTimeout bounds the await on each sub-fetch. It must be shorter
	// than the batch timeout so unit-level timeout handling resolves first.
	FetchTimeout time.Duration
}

// DefaultConfig returns the timeouts used by the benchmarks.
func DefaultConfig() Config {
	return Config{FetchTimeout: 2 * time.Second}
}

// Processor resolves one work unit at a time: two sub-fetches through the
// substrate, both awaited under FetchTimeout, merged or converted into a
// typed failure. Process never returns an error; every outcome is a
// ProcessedUnit with exactly one variant populated.
type Processor struct {
	cfg     Config
	sub     substrate.Substrate
	clients *pool.Pool
	metrics *metrics.Collector
	impl    string
}

// New creates a processor bound to one substrate and one client pool.
func New(cfg Config, sub substrate.Substrate, clients *pool.Pool, collector *metrics.Collector) *Processor {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Processor{
		cfg:     cfg,
		sub:     sub,
		clients: clients,
		metrics: collector,
		impl:    sub.Name(),
	}
}

// Process fans the unit out into its primary and secondary sub-fetches and
// resolves them into exactly one outcome variant. A timeout on either fetch
// makes the whole unit a timeout failure and discards the sibling's result;
// any other sub-fetch error makes it a processing failure.
func (p *Processor) Process(ctx context.Context, u *unit.Unit) *ProcessedUnit {
	waiters := []struct {
		source string
		handle *substrate.Handle
	}{
		{SourcePrimary, p.sub.Submit(p.fetchTask(SourcePrimary, u.ID))},
		{SourceSecondary, p.sub.Submit(p.fetchTask(SourceSecondary, u.ID))},
	}

	results := make(map[string]*client.Payload, len(waiters))
	timedOut := false
	var fetchErr error

	// Await both before resolving; the two fetches are unordered relative
	// to each other.
	for _, w := range waiters {
		value, err := w.handle.Await(p.cfg.FetchTimeout)
		switch {
		case errors.Is(err, substrate.ErrTaskTimeout):
			timedOut = true
		case err != nil:
			if fetchErr == nil {
				fetchErr = errors.Wrapf(err, "source %s", w.source)
			}
		default:
			results[w.source] = value.(*client.Payload)
		}
	}

	if timedOut {
		// The still-running fetch records its timing later; the failure has
		// to be recorded here or the unit's timeout never reaches the stats.
		p.metrics.RecordError(p.impl,
			errors.Errorf("unit %s: sub-fetch exceeded %s", u.ID, p.cfg.FetchTimeout))
		log.WithFields(log.Fields{
			"unit_id": u.ID,
			"impl":    p.impl,
		}).Warn("sub-fetch timed out, unit discarded")
		return failure(u.ID, FailureTimeout,
			"sub-fetch exceeded "+p.cfg.FetchTimeout.String())
	}
	if fetchErr != nil {
		return failure(u.ID, FailureProcessing, fetchErr.Error())
	}

	return success(u.ID, results)
}

// fetchTask builds the submitted work for one sub-fetch: lease a client
// handle, fetch, and record the required timing and error samples. The
// timing sample is recorded for every attempt regardless of outcome.
func (p *Processor) fetchTask(source, id string) substrate.TaskFunc {
	return func(ctx context.Context) (any, error) {
		start := time.Now()

		var payload *client.Payload
		err := p.clients.With(ctx, func(c client.Client) error {
			var fetchErr error
			payload, fetchErr = c.Fetch(ctx, source, id)
			return fetchErr
		})

		p.metrics.RecordTiming(p.impl+"."+source, time.Since(start))
		if err != nil {
			p.metrics.RecordError(p.impl, errors.Wrapf(err, "source %s", source))
			return nil, err
		}
		return payload, nil
	}
}

// Substrate returns the substrate this processor schedules on.
func (p *Processor) Substrate() substrate.Substrate {
	return p.sub
}

// ImplName returns the metrics namespace for this processor's substrate.
func (p *Processor) ImplName() string {
	return p.impl
}
