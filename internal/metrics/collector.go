// Package metrics collects timing, memory and error samples from concurrent
// writers and derives summary statistics on demand.
//
// The collector is constructed explicitly and passed by reference to the
// components that write to it; its lifecycle is create, concurrent writes,
// snapshot, reset. Sample sequences are append-only while a run is in
// flight and are only read or reset between runs.
package metrics

import (
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrorSample records one failure observation.
type ErrorSample struct {
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	TraceHead string    `json:"trace_head"`
}

// Collector is the process-wide sample store for one benchmark run.
//
// Timing samples are keyed by operation name; the convention is
// "<impl>.<operation>" (for example "worker-pool.primary"), which lets the
// error-rate calculation attribute operations to an implementation.
type Collector struct {
	mu      sync.Mutex
	timings map[string][]time.Duration
	memory  map[string][]uint64
	errors  map[string][]ErrorSample
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.reset()
	return c
}

func (c *Collector) reset() {
	c.timings = make(map[string][]time.Duration)
	c.memory = make(map[string][]uint64)
	c.errors = make(map[string][]ErrorSample)
}

// RecordTiming appends one duration sample for op.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	c.mu.Lock()
	c.timings[op] = append(c.timings[op], d)
	c.mu.Unlock()
}

// RecordMemory samples the current heap allocation and appends it under
// impl. Heap-allocated bytes are the portable Go measure of what a run
// costs in memory; there is no per-OS resident-size probe here.
func (c *Collector) RecordMemory(impl string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	c.mu.Lock()
	c.memory[impl] = append(c.memory[impl], ms.HeapAlloc)
	c.mu.Unlock()
}

// RecordError appends one failure sample for impl.
func (c *Collector) RecordError(impl string, err error) {
	if err == nil {
		return
	}
	sample := ErrorSample{
		Time:      time.Now(),
		Message:   err.Error(),
		TraceHead: traceHead(err),
	}

	c.mu.Lock()
	c.errors[impl] = append(c.errors[impl], sample)
	c.mu.Unlock()
}

// traceHead keeps the first line of the error's verbose rendering, enough
// to locate the failure without storing whole stack traces per sample.
func traceHead(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

// TimingCount returns the number of samples recorded for op.
func (c *Collector) TimingCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timings[op])
}

// Timings returns a copy of the samples recorded for op, in append order.
func (c *Collector) Timings(op string) []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timings[op]))
	copy(out, c.timings[op])
	return out
}

// Reset drops all samples. Only call between runs.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
}

// TimingStats summarizes one operation's samples in milliseconds.
type TimingStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// MemoryStats summarizes one implementation's heap samples in bytes.
type MemoryStats struct {
	Count int     `json:"count"`
	Min   uint64  `json:"min"`
	Max   uint64  `json:"max"`
	Avg   float64 `json:"avg"`
}

// ErrorStats summarizes one implementation's failures. Rate is the percent
// of that implementation's recorded operations that failed.
type ErrorStats struct {
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}

// Summary is the cross-cutting rollup of a statistics snapshot.
type Summary struct {
	Operations   int `json:"operations"`
	TotalSamples int `json:"total_samples"`
	TotalErrors  int `json:"total_errors"`
}

// Statistics is a derived, point-in-time view of all samples.
type Statistics struct {
	Timings    map[string]TimingStats `json:"timings"`
	Memory     map[string]MemoryStats `json:"memory"`
	ErrorRates map[string]ErrorStats  `json:"error_rates"`
	Summary    Summary                `json:"summary"`
}

// Statistics computes min/max/avg and interpolated p95/p99 for every
// operation, memory rollups per implementation, and per-implementation
// error rates.
func (c *Collector) Statistics() *Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &Statistics{
		Timings:    make(map[string]TimingStats, len(c.timings)),
		Memory:     make(map[string]MemoryStats, len(c.memory)),
		ErrorRates: make(map[string]ErrorStats, len(c.errors)),
	}

	// Per-impl operation counts for error-rate denominators, keyed by the
	// "<impl>." prefix of each timing op.
	implOps := make(map[string]int)

	for op, samples := range c.timings {
		ms := toMillis(samples)
		sort.Float64s(ms)

		stats.Timings[op] = TimingStats{
			Count: len(ms),
			Min:   first(ms),
			Max:   last(ms),
			Avg:   mean(ms),
			P95:   Percentile(ms, 95),
			P99:   Percentile(ms, 99),
		}
		stats.Summary.TotalSamples += len(ms)

		if i := strings.IndexByte(op, '.'); i > 0 {
			implOps[op[:i]] += len(samples)
		} else {
			implOps[op] += len(samples)
		}
	}
	stats.Summary.Operations = len(c.timings)

	for impl, samples := range c.memory {
		stats.Memory[impl] = memoryStats(samples)
	}

	for impl, samples := range c.errors {
		count := len(samples)
		stats.Summary.TotalErrors += count

		// Every attempt records a timing sample, so the implementation's
		// timing count is the attempt denominator.
		total := implOps[impl]
		if total == 0 {
			total = count
		}
		rate := float64(count) / float64(total) * 100
		if rate > 100 {
			rate = 100
		}
		stats.ErrorRates[impl] = ErrorStats{Count: count, Rate: rate}
	}

	return stats
}

// Percentile computes the p-th percentile of an already-sorted sequence by
// linear interpolation between order statistics. An empty sequence yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	k := (p / 100) * float64(n-1)
	lower := math.Floor(k)
	upper := math.Ceil(k)
	if lower == upper {
		return sorted[int(k)]
	}
	return sorted[int(lower)]*(upper-k) + sorted[int(upper)]*(k-lower)
}

func toMillis(samples []time.Duration) []float64 {
	out := make([]float64, len(samples))
	for i, d := range samples {
		out[i] = float64(d) / float64(time.Millisecond)
	}
	return out
}

func memoryStats(samples []uint64) MemoryStats {
	if len(samples) == 0 {
		return MemoryStats{}
	}
	min, max := samples[0], samples[0]
	var sum float64
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += float64(s)
	}
	return MemoryStats{
		Count: len(samples),
		Min:   min,
		Max:   max,
		Avg:   sum / float64(len(samples)),
	}
}

func first(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[0]
}

func last(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)-1]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
