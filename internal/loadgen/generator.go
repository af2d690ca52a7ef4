// Package loadgen drives ramped multi-user load against the batch driver
// and summarizes throughput, error rate and latency percentiles per run.
package loadgen

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/processor"
)

// State is the lifecycle state of one load run.
type State int32

const (
	StateIdle State = iota
	StateRampingUp
	StateSteady
	StateStopping
	StateReported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRampingUp:
		return "ramping-up"
	case StateSteady:
		return "steady"
	case StateStopping:
		return "stopping"
	case StateReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Config parameterizes the generator independently of any one profile.
type Config struct {
	// UnitsPerUser is the size of each user's fixed unit set.
	UnitsPerUser int

	// ThinkTimeMax bounds the uniform random pause between iterations.
	ThinkTimeMax time.Duration

	// Progress receives the monitor's one-line-per-second output.
	// Defaults to stdout; tests pass io.Discard.
	Progress io.Writer
}

// DefaultConfig returns the run shape used by the benchmarks.
func DefaultConfig() Config {
	return Config{
		UnitsPerUser: 5,
		ThinkTimeMax: 500 * time.Millisecond,
	}
}

// Summary is the per-profile, per-implementation result of one run.
// Latency values are milliseconds; ErrorRate is a percentage in [0,100].
type Summary struct {
	Profile       string         `json:"profile"`
	Impl          string         `json:"implementation"`
	Throughput    float64        `json:"throughput"`
	ErrorRate     float64        `json:"error_rate"`
	Latency       LatencySummary `json:"latency"`
	TotalRequests int64          `json:"total_requests"`
	TotalErrors   int64          `json:"total_errors"`
	Duration      int            `json:"duration"`
}

// LatencySummary holds the reported percentile set in milliseconds.
type LatencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Generator orchestrates one population of virtual users per Run call.
//
// Users are started on a linear ramp, loop batch calls with random think
// time, and observe the shared stop signal only between iterations: an
// in-flight batch is never interrupted. A monitor goroutine computes live
// throughput and error rate once per second and fires the stop signal when
// the profile's duration elapses.
type Generator struct {
	cfg       Config
	driver    *processor.BatchDriver
	collector *metrics.Collector
	impl      string

	state     atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64

	// Live latency view for the monitor line. The reported percentiles
	// come from the collector's raw samples, not from this histogram.
	histMu sync.Mutex
	hist   *hdrhistogram.Histogram
}

// New creates a generator around one batch driver.
func New(cfg Config, driver *processor.BatchDriver, collector *metrics.Collector, impl string) *Generator {
	def := DefaultConfig()
	if cfg.UnitsPerUser <= 0 {
		cfg.UnitsPerUser = def.UnitsPerUser
	}
	if cfg.ThinkTimeMax <= 0 {
		cfg.ThinkTimeMax = def.ThinkTimeMax
	}
	if cfg.Progress == nil {
		cfg.Progress = os.Stdout
	}
	return &Generator{
		cfg:       cfg,
		driver:    driver,
		collector: collector,
		impl:      impl,
		// 1us to 10min, 3 significant figures.
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// State returns the current run state.
func (g *Generator) State() State {
	return State(g.state.Load())
}

// Run executes one profile to completion and returns its summary. All
// failures inside the run are converted to metrics and log lines; Run
// itself never fails.
func (g *Generator) Run(ctx context.Context, profile Profile) *Summary {
	g.completed.Store(0)
	g.failed.Store(0)
	g.histMu.Lock()
	g.hist.Reset()
	g.histMu.Unlock()

	users := newVirtualUsers(profile.Users, g.cfg.UnitsPerUser)
	stopCh := make(chan struct{})
	start := time.Now()

	g.state.Store(int32(StateRampingUp))
	log.WithFields(log.Fields{
		"profile": profile.Name,
		"impl":    g.impl,
		"users":   profile.Users,
		"ramp_up": profile.RampUp,
	}).Info("load run starting")

	var wg sync.WaitGroup
	for i, vu := range users {
		wg.Add(1)
		go g.runUser(ctx, &wg, vu, stagger(i, profile.Users, profile.RampUp), stopCh)
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		g.monitor(ctx, profile, start, stopCh)
	}()

	<-monitorDone
	g.state.Store(int32(StateStopping))
	wg.Wait()

	summary := g.summarize(profile, time.Since(start))
	g.state.Store(int32(StateReported))

	log.WithFields(log.Fields{
		"profile":        profile.Name,
		"impl":           g.impl,
		"total_requests": summary.TotalRequests,
		"throughput":     summary.Throughput,
		"error_rate":     summary.ErrorRate,
	}).Info("load run finished")

	return summary
}

// stagger returns user i's start delay on the linear ramp: user i of n
// starts after rampUp * i / n, so every start falls inside the ramp window.
func stagger(i, users int, rampUp time.Duration) time.Duration {
	if users <= 0 {
		return 0
	}
	return rampUp * time.Duration(i) / time.Duration(users)
}

// runUser drives one virtual user: staggered start, then iterate until the
// stop signal is observed between iterations.
func (g *Generator) runUser(ctx context.Context, wg *sync.WaitGroup, vu *VirtualUser, stagger time.Duration, stopCh <-chan struct{}) {
	defer wg.Done()

	if stagger > 0 {
		timer := time.NewTimer(stagger)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		iterStart := time.Now()
		results := g.driver.ProcessBatch(ctx, vu.Units)
		elapsed := time.Since(iterStart)

		g.completed.Add(1)
		g.collector.RecordTiming(g.impl+".request", elapsed)
		g.recordLive(elapsed)

		if len(results) == 0 && len(vu.Units) > 0 {
			g.failed.Add(1)
			g.collector.RecordError(g.impl,
				errors.Errorf("user %s: batch degraded to empty result", vu.ID))
		}

		think := time.Duration(rng.Int63n(int64(g.cfg.ThinkTimeMax)))
		timer := time.NewTimer(think)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// monitor polls once per second, prints live throughput and error rate, and
// fires the stop signal when the profile's duration elapses.
func (g *Generator) monitor(ctx context.Context, profile Profile, start time.Time, stopCh chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(stopCh)
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			g.collector.RecordMemory(g.impl)

			if g.State() == StateRampingUp && elapsed >= profile.RampUp {
				g.state.Store(int32(StateSteady))
			}

			completed := g.completed.Load()
			failed := g.failed.Load()
			throughput := float64(completed) / elapsed.Seconds()
			errorRate := 0.0
			if completed > 0 {
				errorRate = float64(failed) / float64(completed) * 100
			}

			fmt.Fprintf(g.cfg.Progress,
				"[%s/%s] t=%3.0fs state=%-10s requests=%-6d rps=%6.1f errors=%.1f%% p95=%.1fms\n",
				profile.Name, g.impl, elapsed.Seconds(), g.State(),
				completed, throughput, errorRate, g.liveP95())

			if elapsed >= profile.Duration {
				close(stopCh)
				return
			}
		}
	}
}

func (g *Generator) recordLive(d time.Duration) {
	g.histMu.Lock()
	defer g.histMu.Unlock()
	// RecordValue only fails outside the histogram's range; clamping those
	// samples to the bounds is fine for a live progress view.
	_ = g.hist.RecordValue(d.Microseconds())
}

func (g *Generator) liveP95() float64 {
	g.histMu.Lock()
	defer g.histMu.Unlock()
	return float64(g.hist.ValueAtQuantile(95)) / 1000
}

// summarize derives the final report from the collector's raw samples.
func (g *Generator) summarize(profile Profile, elapsed time.Duration) *Summary {
	completed := g.completed.Load()
	failed := g.failed.Load()

	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(completed) / elapsed.Seconds()
	}
	errorRate := 0.0
	if completed > 0 {
		errorRate = float64(failed) / float64(completed) * 100
	}

	samples := g.collector.Timings(g.impl + ".request")
	ms := make([]float64, len(samples))
	for i, d := range samples {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(ms)

	latency := LatencySummary{
		P50: metrics.Percentile(ms, 50),
		P90: metrics.Percentile(ms, 90),
		P95: metrics.Percentile(ms, 95),
		P99: metrics.Percentile(ms, 99),
	}
	if len(ms) > 0 {
		latency.Min = ms[0]
		latency.Max = ms[len(ms)-1]
		var sum float64
		for _, v := range ms {
			sum += v
		}
		latency.Avg = sum / float64(len(ms))
	}

	return &Summary{
		Profile:       profile.Name,
		Impl:          g.impl,
		Throughput:    throughput,
		ErrorRate:     errorRate,
		Latency:       latency,
		TotalRequests: completed,
		TotalErrors:   failed,
		Duration:      int(profile.Duration.Seconds()),
	}
}
