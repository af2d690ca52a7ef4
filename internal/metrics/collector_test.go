package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"median of five", []float64{10, 20, 30, 40, 50}, 50, 30},
		{"empty", nil, 50, 0},
		{"empty p99", nil, 99, 0},
		{"single sample", []float64{5}, 99, 5},
		{"p0 is min", []float64{10, 20, 30}, 0, 10},
		{"p100 is max", []float64{10, 20, 30}, 100, 30},
		{"interpolated", []float64{10, 20}, 75, 17.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if got != tt.want {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestCollector_RecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming("impl.op", 10*time.Millisecond)
	c.RecordTiming("impl.op", 30*time.Millisecond)
	c.RecordTiming("impl.op", 20*time.Millisecond)

	stats := c.Statistics()
	ts, ok := stats.Timings["impl.op"]
	if !ok {
		t.Fatal("no stats for impl.op")
	}
	if ts.Count != 3 {
		t.Errorf("Count = %d, want 3", ts.Count)
	}
	if ts.Min != 10 {
		t.Errorf("Min = %v, want 10", ts.Min)
	}
	if ts.Max != 30 {
		t.Errorf("Max = %v, want 30", ts.Max)
	}
	if ts.Avg != 20 {
		t.Errorf("Avg = %v, want 20", ts.Avg)
	}
}

func TestCollector_ConcurrentAppends(t *testing.T) {
	const writers = 8
	const perWriter = 500

	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				c.RecordTiming("impl.op", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := c.TimingCount("impl.op"); got != writers*perWriter {
		t.Errorf("TimingCount = %d, want %d", got, writers*perWriter)
	}
}

func TestCollector_ErrorRate(t *testing.T) {
	c := NewCollector()

	// 8 attempts for the impl across two operations, 2 failures.
	for i := 0; i < 5; i++ {
		c.RecordTiming("impl.primary", time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		c.RecordTiming("impl.secondary", time.Millisecond)
	}
	c.RecordError("impl", errors.New("boom"))
	c.RecordError("impl", errors.New("boom again"))

	stats := c.Statistics()
	es, ok := stats.ErrorRates["impl"]
	if !ok {
		t.Fatal("no error stats for impl")
	}
	if es.Count != 2 {
		t.Errorf("Count = %d, want 2", es.Count)
	}
	if es.Rate != 25 {
		t.Errorf("Rate = %v, want 25", es.Rate)
	}
}

func TestCollector_ErrorsWithoutTimings(t *testing.T) {
	c := NewCollector()
	c.RecordError("impl", errors.New("boom"))

	es := c.Statistics().ErrorRates["impl"]
	if es.Count != 1 {
		t.Errorf("Count = %d, want 1", es.Count)
	}
	if es.Rate != 100 {
		t.Errorf("Rate = %v, want 100", es.Rate)
	}
}

func TestCollector_RecordMemory(t *testing.T) {
	c := NewCollector()
	c.RecordMemory("impl")
	c.RecordMemory("impl")

	ms, ok := c.Statistics().Memory["impl"]
	if !ok {
		t.Fatal("no memory stats for impl")
	}
	if ms.Count != 2 {
		t.Errorf("Count = %d, want 2", ms.Count)
	}
	if ms.Min == 0 || ms.Max == 0 {
		t.Errorf("heap samples should be non-zero, got min=%d max=%d", ms.Min, ms.Max)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RecordTiming("impl.op", time.Millisecond)
	c.RecordError("impl", errors.New("boom"))
	c.RecordMemory("impl")

	c.Reset()

	stats := c.Statistics()
	if len(stats.Timings) != 0 || len(stats.ErrorRates) != 0 || len(stats.Memory) != 0 {
		t.Errorf("Reset left samples behind: %+v", stats)
	}
}

func TestCollector_TraceHeadKeepsFirstLine(t *testing.T) {
	c := NewCollector()
	c.RecordError("impl", errors.New("first line\nsecond line"))

	c.mu.Lock()
	sample := c.errors["impl"][0]
	c.mu.Unlock()

	if sample.TraceHead != "first line" {
		t.Errorf("TraceHead = %q, want %q", sample.TraceHead, "first line")
	}
}

func TestCollector_StatisticsSummary(t *testing.T) {
	c := NewCollector()
	c.RecordTiming("a.op", time.Millisecond)
	c.RecordTiming("b.op", time.Millisecond)
	c.RecordError("a", errors.New("boom"))

	s := c.Statistics().Summary
	if s.Operations != 2 {
		t.Errorf("Operations = %d, want 2", s.Operations)
	}
	if s.TotalSamples != 2 {
		t.Errorf("TotalSamples = %d, want 2", s.TotalSamples)
	}
	if s.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", s.TotalErrors)
	}
}
