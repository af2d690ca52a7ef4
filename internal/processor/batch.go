package processor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fanbench/fanbench/internal/substrate"
	"github.com/fanbench/fanbench/internal/unit"
)

// BatchConfig parameterizes batch processing.
type BatchConfig struct {
	// BatchTimeout bounds the await on each unit's processing task. It is
	// longer than the processor's fetch timeout so unit-level timeouts
	// resolve into failure records before the batch-level await gives up.
	BatchTimeout time.Duration

	// StrictPartial surfaces the results collected before a batch-level
	// failure instead of degrading the whole batch to an empty result.
	StrictPartial bool
}

// DefaultBatchConfig returns the batch policy used by the benchmarks.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{BatchTimeout: 10 * time.Second}
}

// BatchEvent is the aggregate performance event emitted once per
// successfully completed batch.
type BatchEvent struct {
	Impl        string
	TotalUnits  int
	Duration    time.Duration
	AvgPerUnit  time.Duration
	Substrate   *substrate.Stats // nil for the cheap-task policy
	CompletedAt time.Time
}

// BatchDriver fans a batch out into one processing task per unit and
// collects the outcomes in submission order.
//
// A batch-level await failure does not fail the caller: the driver logs it,
// records an error sample, and returns an empty result for the entire
// batch. Callers see "zero units processed", distinguishable from "all
// units failed" only through logs and metrics. StrictPartial opts into
// surfacing partial results instead.
type BatchDriver struct {
	cfg       BatchConfig
	proc      *Processor
	collector metricsRecorder

	// OnBatchComplete, when set, observes the aggregate event for each
	// completed batch.
	OnBatchComplete func(BatchEvent)
}

// metricsRecorder is the slice of the collector the driver needs.
type metricsRecorder interface {
	RecordTiming(op string, d time.Duration)
	RecordError(impl string, err error)
}

// NewBatchDriver creates a driver around an existing unit processor.
func NewBatchDriver(cfg BatchConfig, proc *Processor, collector metricsRecorder) *BatchDriver {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchConfig().BatchTimeout
	}
	return &BatchDriver{cfg: cfg, proc: proc, collector: collector}
}

// ProcessBatch submits one processing task per unit (full fan-out, no
// chunking) and awaits each result in submission order. Completion order
// across units is unspecified; the returned slice is in submission order.
func (d *BatchDriver) ProcessBatch(ctx context.Context, units []*unit.Unit) []*ProcessedUnit {
	if len(units) == 0 {
		return []*ProcessedUnit{}
	}

	impl := d.proc.ImplName()
	sub := d.proc.Substrate()
	start := time.Now()

	handles := make([]*substrate.Handle, len(units))
	for i, u := range units {
		u := u
		handles[i] = sub.Submit(func(taskCtx context.Context) (any, error) {
			return d.proc.Process(taskCtx, u), nil
		})
	}

	results := make([]*ProcessedUnit, 0, len(units))
	for i, h := range handles {
		value, err := h.Await(d.cfg.BatchTimeout)
		if err != nil {
			batchErr := errors.Wrapf(err, "batch await for unit %s", units[i].ID)
			log.WithError(batchErr).WithFields(log.Fields{
				"impl":        impl,
				"total_units": len(units),
				"resolved":    len(results),
			}).Error("batch-level failure")
			d.collector.RecordError(impl, batchErr)

			if !d.cfg.StrictPartial {
				return []*ProcessedUnit{}
			}
			results = append(results, failureFromBatchErr(units[i].ID, err))
			continue
		}
		results = append(results, value.(*ProcessedUnit))
	}

	total := time.Since(start)
	d.collector.RecordTiming(impl+".batch", total)

	event := BatchEvent{
		Impl:        impl,
		TotalUnits:  len(units),
		Duration:    total,
		AvgPerUnit:  total / time.Duration(len(units)),
		Substrate:   sub.Stats(),
		CompletedAt: time.Now().UTC(),
	}

	fields := log.Fields{
		"impl":        event.Impl,
		"total_units": event.TotalUnits,
		"duration_ms": float64(event.Duration) / float64(time.Millisecond),
		"avg_unit_ms": float64(event.AvgPerUnit) / float64(time.Millisecond),
	}
	if event.Substrate != nil {
		fields["completed_tasks"] = event.Substrate.CompletedTasks
		fields["queue_length"] = event.Substrate.QueueLength
		fields["pool_size"] = event.Substrate.PoolSize
		fields["active_workers"] = event.Substrate.ActiveWorkers
	}
	log.WithFields(fields).Info("batch complete")

	if d.OnBatchComplete != nil {
		d.OnBatchComplete(event)
	}

	return results
}

func failureFromBatchErr(unitID string, err error) *ProcessedUnit {
	kind := FailureProcessing
	if errors.Is(err, substrate.ErrTaskTimeout) {
		kind = FailureTimeout
	}
	return failure(unitID, kind, err.Error())
}
