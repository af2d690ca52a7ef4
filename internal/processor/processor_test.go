package processor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/fanbench/fanbench/internal/client"
	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/pool"
	"github.com/fanbench/fanbench/internal/substrate"
	"github.com/fanbench/fanbench/internal/unit"
)

// stubClient scripts upstream behaviour per source.
type stubClient struct {
	fetch func(ctx context.Context, source, id string) (*client.Payload, error)
}

func (s *stubClient) Fetch(ctx context.Context, source, id string) (*client.Payload, error) {
	return s.fetch(ctx, source, id)
}

func okPayload(source, id string) (*client.Payload, error) {
	return &client.Payload{Source: source, ID: id, Timestamp: time.Now().UTC()}, nil
}

type testHarness struct {
	proc      *Processor
	collector *metrics.Collector
	impl      string
}

func newHarness(t *testing.T, cfg Config, fetch func(ctx context.Context, source, id string) (*client.Payload, error)) *testHarness {
	t.Helper()

	sub := substrate.NewWorkerPool(substrate.WorkerPoolConfig{
		MinWorkers: 2, MaxWorkers: 8, QueueSize: 16,
	})
	t.Cleanup(func() { sub.Shutdown(2 * time.Second) })

	clients := pool.New(pool.Config{Size: 4, AcquireTimeout: time.Second},
		func() (client.Client, error) {
			return &stubClient{fetch: fetch}, nil
		})
	t.Cleanup(clients.Close)

	collector := metrics.NewCollector()
	return &testHarness{
		proc:      New(cfg, sub, clients, collector),
		collector: collector,
		impl:      sub.Name(),
	}
}

func TestProcessor_MergesBothSources(t *testing.T) {
	h := newHarness(t, Config{FetchTimeout: time.Second}, func(ctx context.Context, source, id string) (*client.Payload, error) {
		return okPayload(source, id)
	})

	u := &unit.Unit{ID: "u-1", Kind: "benchmark", Timestamp: time.Now()}
	pu := h.proc.Process(context.Background(), u)

	if pu.Failed() {
		t.Fatalf("Process failed: %v", pu.Err)
	}
	if pu.UnitID != "u-1" {
		t.Errorf("UnitID = %q, want u-1", pu.UnitID)
	}
	if pu.ProcessedAt.IsZero() {
		t.Error("ProcessedAt not set on success")
	}
	for _, source := range []string{SourcePrimary, SourceSecondary} {
		p, ok := pu.Results[source]
		if !ok {
			t.Fatalf("missing %s payload", source)
		}
		if p.Source != source || p.ID != "u-1" {
			t.Errorf("%s payload = %+v", source, p)
		}
	}
}

func TestProcessor_TimeoutDiscardsSibling(t *testing.T) {
	h := newHarness(t, Config{FetchTimeout: 50 * time.Millisecond}, func(ctx context.Context, source, id string) (*client.Payload, error) {
		if source == SourceSecondary {
			time.Sleep(300 * time.Millisecond)
		}
		return okPayload(source, id)
	})

	pu := h.proc.Process(context.Background(), &unit.Unit{ID: "u-2"})

	if !pu.Failed() {
		t.Fatal("Process succeeded despite a timed-out sub-fetch")
	}
	if pu.Err.Kind != FailureTimeout {
		t.Errorf("Kind = %q, want %q", pu.Err.Kind, FailureTimeout)
	}
	if pu.Results != nil {
		t.Errorf("failure carried a partial merge: %v", pu.Results)
	}
	if pu.ProcessedAt != (time.Time{}) {
		t.Error("ProcessedAt set on failure")
	}
}

func TestProcessor_TimeoutRecordsErrorSample(t *testing.T) {
	h := newHarness(t, Config{FetchTimeout: 50 * time.Millisecond}, func(ctx context.Context, source, id string) (*client.Payload, error) {
		if source == SourceSecondary {
			time.Sleep(300 * time.Millisecond)
		}
		return okPayload(source, id)
	})

	pu := h.proc.Process(context.Background(), &unit.Unit{ID: "u-6"})
	if !pu.Failed() || pu.Err.Kind != FailureTimeout {
		t.Fatalf("outcome = %+v, want timeout failure", pu.Err)
	}

	// The slow fetch itself succeeds later and records only a timing, so the
	// unit's timeout must surface as an error sample of its own.
	stats := h.collector.Statistics()
	es, ok := stats.ErrorRates[h.impl]
	if !ok {
		t.Fatal("timed-out unit recorded no error sample")
	}
	if es.Count != 1 {
		t.Errorf("error count = %d, want 1", es.Count)
	}
}

func TestProcessor_FetchErrorBecomesProcessingFailure(t *testing.T) {
	h := newHarness(t, Config{FetchTimeout: time.Second}, func(ctx context.Context, source, id string) (*client.Payload, error) {
		if source == SourceSecondary {
			return nil, errors.New("upstream said no")
		}
		return okPayload(source, id)
	})

	pu := h.proc.Process(context.Background(), &unit.Unit{ID: "u-3"})

	if !pu.Failed() {
		t.Fatal("Process succeeded despite a failed sub-fetch")
	}
	if pu.Err.Kind != FailureProcessing {
		t.Errorf("Kind = %q, want %q", pu.Err.Kind, FailureProcessing)
	}
	if pu.Results != nil {
		t.Errorf("failure carried a partial merge: %v", pu.Results)
	}
}

func TestProcessor_TimeoutWinsOverError(t *testing.T) {
	h := newHarness(t, Config{FetchTimeout: 50 * time.Millisecond}, func(ctx context.Context, source, id string) (*client.Payload, error) {
		if source == SourcePrimary {
			return nil, errors.New("upstream said no")
		}
		time.Sleep(300 * time.Millisecond)
		return okPayload(source, id)
	})

	pu := h.proc.Process(context.Background(), &unit.Unit{ID: "u-4"})

	if !pu.Failed() {
		t.Fatal("Process succeeded")
	}
	if pu.Err.Kind != FailureTimeout {
		t.Errorf("Kind = %q, want %q when a timeout and an error coincide", pu.Err.Kind, FailureTimeout)
	}
}

func TestProcessor_RecordsTimingPerAttempt(t *testing.T) {
	h := newHarness(t, Config{FetchTimeout: time.Second}, func(ctx context.Context, source, id string) (*client.Payload, error) {
		if source == SourceSecondary {
			return nil, errors.New("upstream said no")
		}
		return okPayload(source, id)
	})

	h.proc.Process(context.Background(), &unit.Unit{ID: "u-5"})

	if n := h.collector.TimingCount(h.impl + "." + SourcePrimary); n != 1 {
		t.Errorf("primary timing count = %d, want 1", n)
	}
	// The failed attempt still records its timing sample.
	if n := h.collector.TimingCount(h.impl + "." + SourceSecondary); n != 1 {
		t.Errorf("secondary timing count = %d, want 1", n)
	}

	stats := h.collector.Statistics()
	es, ok := stats.ErrorRates[h.impl]
	if !ok {
		t.Fatal("no error sample recorded for the failed fetch")
	}
	if es.Count != 1 {
		t.Errorf("error count = %d, want 1", es.Count)
	}
}

func TestUnitError_Message(t *testing.T) {
	e := &UnitError{Kind: FailureTimeout, UnitID: "u-9", Message: "sub-fetch exceeded 2s"}
	want := "unit u-9 failed (timeout): sub-fetch exceeded 2s"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}
