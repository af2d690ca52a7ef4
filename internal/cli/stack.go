package cli

import (
	"time"

	"github.com/pkg/errors"

	"github.com/fanbench/fanbench/internal/client"
	"github.com/fanbench/fanbench/internal/config"
	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/pool"
	"github.com/fanbench/fanbench/internal/processor"
	"github.com/fanbench/fanbench/internal/substrate"
)

// stack is one fully-wired processing pipeline for a single policy:
// client pool -> substrate -> unit processor -> batch driver.
type stack struct {
	pool   *pool.Pool
	sub    substrate.Substrate
	driver *processor.BatchDriver
	impl   string
}

func buildStack(cfg *config.Config, policy substrate.Policy, collector *metrics.Collector) *stack {
	clientCfg := client.Config{
		BaseLatency: cfg.Client.BaseLatency.Std(),
		Jitter:      cfg.Client.Jitter.Std(),
		FailureRate: cfg.Client.FailureRate,
	}

	clientPool := pool.New(pool.Config{
		Size:           cfg.Pool.Size,
		AcquireTimeout: cfg.Pool.AcquireTimeout.Std(),
	}, func() (client.Client, error) {
		return client.New(clientCfg), nil
	})

	sub := substrate.New(substrate.Config{
		Policy: policy,
		WorkerPool: substrate.WorkerPoolConfig{
			MinWorkers:  cfg.Substrate.MinWorkers,
			MaxWorkers:  cfg.Substrate.MaxWorkers,
			QueueSize:   cfg.Substrate.QueueSize,
			IdleTimeout: cfg.Substrate.IdleTimeout.Std(),
		},
		Goroutine: substrate.GoroutineConfig{
			MaxInFlight: cfg.Substrate.MaxInFlight,
		},
	})

	proc := processor.New(processor.Config{
		FetchTimeout: cfg.Processor.FetchTimeout.Std(),
	}, sub, clientPool, collector)

	driver := processor.NewBatchDriver(processor.BatchConfig{
		BatchTimeout:  cfg.Processor.BatchTimeout.Std(),
		StrictPartial: cfg.Processor.StrictPartial,
	}, proc, collector)

	return &stack{
		pool:   clientPool,
		sub:    sub,
		driver: driver,
		impl:   sub.Name(),
	}
}

func (s *stack) close() error {
	err := s.sub.Shutdown(10 * time.Second)
	s.pool.Close()
	return err
}

// parsePolicies expands the --policy flag value.
func parsePolicies(value string) ([]substrate.Policy, error) {
	switch value {
	case "both", "":
		return []substrate.Policy{substrate.PolicyWorkerPool, substrate.PolicyGoroutine}, nil
	case string(substrate.PolicyWorkerPool):
		return []substrate.Policy{substrate.PolicyWorkerPool}, nil
	case string(substrate.PolicyGoroutine):
		return []substrate.Policy{substrate.PolicyGoroutine}, nil
	default:
		return nil, errors.Errorf("unknown policy %q (want worker-pool, goroutine or both)", value)
	}
}
