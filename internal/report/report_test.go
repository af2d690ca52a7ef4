package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fanbench/fanbench/internal/loadgen"
)

func sampleSummary(profile, impl string) *loadgen.Summary {
	return &loadgen.Summary{
		Profile:       profile,
		Impl:          impl,
		Throughput:    12.5,
		ErrorRate:     1.5,
		TotalRequests: 250,
		TotalErrors:   4,
		Duration:      30,
		Latency:       loadgen.LatencySummary{Min: 1, Max: 90, Avg: 14, P50: 11, P90: 30, P95: 42, P99: 80},
	}
}

func TestDocument_Add(t *testing.T) {
	doc := NewDocument(map[string]any{"pool_size": 10})

	doc.Add(sampleSummary("light", "worker-pool"))
	doc.Add(sampleSummary("light", "goroutine"))
	doc.Add(sampleSummary("medium", "worker-pool"))

	if len(doc.Results) != 2 {
		t.Errorf("profiles = %d, want 2", len(doc.Results))
	}
	if len(doc.Results["light"]) != 2 {
		t.Errorf("light impls = %d, want 2", len(doc.Results["light"]))
	}
	if doc.Results["medium"]["worker-pool"].TotalRequests != 250 {
		t.Error("summary not stored under its profile and implementation")
	}
	if doc.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestWriter_WriteRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	doc := NewDocument(map[string]any{"pool_size": 10})
	doc.Add(sampleSummary("light", "worker-pool"))

	path, err := NewWriter(dir).Write(doc)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "results_") || !strings.HasSuffix(name, ".json") {
		t.Errorf("file name = %q, want results_<timestamp>.json", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}

	var got Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	s := got.Results["light"]["worker-pool"]
	if s == nil {
		t.Fatal("summary missing after round trip")
	}
	if s.Throughput != 12.5 || s.Latency.P95 != 42 {
		t.Errorf("summary = %+v", s)
	}
	if got.Configuration["pool_size"] != float64(10) {
		t.Errorf("configuration = %v", got.Configuration)
	}
}

func TestWriter_EmptyDirDefaults(t *testing.T) {
	w := NewWriter("")
	if w.dir != "results" {
		t.Errorf("dir = %q, want results", w.dir)
	}
}
