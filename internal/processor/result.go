package processor

import (
	"fmt"
	"time"

	"github.com/fanbench/fanbench/internal/client"
)

// FailureKind classifies why a unit failed.
type FailureKind string

const (
	// FailureTimeout means a sub-fetch exceeded its await window.
	FailureTimeout FailureKind = "timeout"

	// FailureProcessing means a sub-fetch surfaced any other error.
	FailureProcessing FailureKind = "processing_error"
)

// UnitError is the typed failure record for one unit.
type UnitError struct {
	Kind    FailureKind `json:"kind"`
	UnitID  string      `json:"unit_id"`
	Message string      `json:"message"`
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s failed (%s): %s", e.UnitID, e.Kind, e.Message)
}

// ProcessedUnit is the outcome of processing one work unit. Err == nil means
// success, in which case Results holds both sub-fetch payloads keyed by
// source and ProcessedAt is set. Err != nil means failure, in which case
// Results is nil; there is never a partial merge.
type ProcessedUnit struct {
	UnitID      string                     `json:"unit_id"`
	Results     map[string]*client.Payload `json:"results,omitempty"`
	ProcessedAt time.Time                  `json:"processed_at,omitempty"`
	Err         *UnitError                 `json:"error,omitempty"`
}

// Failed reports whether the unit resolved to the failure variant.
func (pu *ProcessedUnit) Failed() bool {
	return pu.Err != nil
}

func success(unitID string, results map[string]*client.Payload) *ProcessedUnit {
	return &ProcessedUnit{
		UnitID:      unitID,
		Results:     results,
		ProcessedAt: time.Now().UTC(),
	}
}

func failure(unitID string, kind FailureKind, message string) *ProcessedUnit {
	return &ProcessedUnit{
		UnitID: unitID,
		Err:    &UnitError{Kind: kind, UnitID: unitID, Message: message},
	}
}
