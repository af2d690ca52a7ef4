package cli

import (
	"context"
	"testing"
	"time"

	"github.com/fanbench/fanbench/internal/config"
	"github.com/fanbench/fanbench/internal/metrics"
	"github.com/fanbench/fanbench/internal/substrate"
	"github.com/fanbench/fanbench/internal/unit"
)

func TestParsePolicies(t *testing.T) {
	tests := []struct {
		value   string
		want    []substrate.Policy
		wantErr bool
	}{
		{"both", []substrate.Policy{substrate.PolicyWorkerPool, substrate.PolicyGoroutine}, false},
		{"", []substrate.Policy{substrate.PolicyWorkerPool, substrate.PolicyGoroutine}, false},
		{"worker-pool", []substrate.Policy{substrate.PolicyWorkerPool}, false},
		{"goroutine", []substrate.Policy{substrate.PolicyGoroutine}, false},
		{"threads", nil, true},
	}

	for _, tt := range tests {
		got, err := parsePolicies(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePolicies(%q) accepted an unknown policy", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePolicies(%q): %v", tt.value, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parsePolicies(%q) = %v, want %v", tt.value, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parsePolicies(%q)[%d] = %v, want %v", tt.value, i, got[i], tt.want[i])
			}
		}
	}
}

func TestBuildStack_ProcessesABatch(t *testing.T) {
	testCfg := config.Default()
	testCfg.Client.BaseLatency = config.Duration(time.Millisecond)
	testCfg.Client.Jitter = 0
	testCfg.Client.FailureRate = 0

	for _, policy := range []substrate.Policy{substrate.PolicyWorkerPool, substrate.PolicyGoroutine} {
		collector := metrics.NewCollector()
		s := buildStack(testCfg, policy, collector)

		if s.impl != string(policy) {
			t.Errorf("impl = %q, want %q", s.impl, policy)
		}

		results := s.driver.ProcessBatch(context.Background(), unit.Generate(5))
		if len(results) != 5 {
			t.Errorf("%s: processed %d units, want 5", policy, len(results))
		}
		for _, r := range results {
			if r.Failed() {
				t.Errorf("%s: unit %s failed: %v", policy, r.UnitID, r.Err)
			}
		}

		if err := s.close(); err != nil {
			t.Errorf("%s: close: %v", policy, err)
		}
	}
}

func TestSelectProfiles(t *testing.T) {
	orig := cfg
	cfg = config.Default()
	defer func() { cfg = orig }()

	all, err := selectProfiles("")
	if err != nil {
		t.Fatalf("selectProfiles(\"\"): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want the 3 built-ins", len(all))
	}

	some, err := selectProfiles("light, heavy")
	if err != nil {
		t.Fatalf("selectProfiles: %v", err)
	}
	if len(some) != 2 || some[0].Name != "light" || some[1].Name != "heavy" {
		t.Errorf("selected = %+v", some)
	}

	if _, err := selectProfiles("light,nope"); err == nil {
		t.Error("selectProfiles accepted an unknown profile name")
	}
}
