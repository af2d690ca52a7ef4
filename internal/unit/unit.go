// Package unit defines the work units the benchmark processes.
package unit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Unit is one logical item of work. Processing a unit requires two
// independent upstream sub-fetches before it counts as done.
//
// Units are immutable once created: the generator builds them and everything
// downstream reads them.
type Unit struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Generate produces n work units with unique IDs. Negative counts yield an
// empty slice.
func Generate(n int) []*Unit {
	if n < 0 {
		n = 0
	}
	units := make([]*Unit, 0, n)
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		units = append(units, &Unit{
			ID:        uuid.NewString(),
			Kind:      "fanout",
			Timestamp: now,
			Metadata: map[string]any{
				"sequence": i,
				"label":    fmt.Sprintf("unit-%d", i),
			},
		})
	}
	return units
}
