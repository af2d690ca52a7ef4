package unit

import "testing"

func TestGenerate(t *testing.T) {
	units := Generate(10)
	if len(units) != 10 {
		t.Fatalf("len = %d, want 10", len(units))
	}

	seen := make(map[string]bool, len(units))
	for i, u := range units {
		if u.ID == "" {
			t.Errorf("units[%d] has empty ID", i)
		}
		if seen[u.ID] {
			t.Errorf("duplicate unit ID %s", u.ID)
		}
		seen[u.ID] = true
		if u.Kind == "" {
			t.Errorf("units[%d] has empty Kind", i)
		}
		if u.Timestamp.IsZero() {
			t.Errorf("units[%d] has zero Timestamp", i)
		}
	}
}

func TestGenerate_Empty(t *testing.T) {
	if units := Generate(0); len(units) != 0 {
		t.Errorf("Generate(0) returned %d units", len(units))
	}
	if units := Generate(-1); len(units) != 0 {
		t.Errorf("Generate(-1) returned %d units", len(units))
	}
}
