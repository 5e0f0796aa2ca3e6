// Package history keeps a record of every sweep on disk so reports and
// charts can be regenerated without re-running the solver.
package history

import (
	"time"

	"github.com/jamesainslie/resweep/pkg/resweep/output"
)

// Status summarises how a sweep ended.
type Status string

const (
	// StatusComplete means the sweep covered the whole range.
	StatusComplete Status = "complete"
	// StatusPartial means the sweep failed after finding at least one resonance.
	StatusPartial Status = "partial"
	// StatusFailed means the sweep failed with nothing to show.
	StatusFailed Status = "failed"
)

// Record is one saved sweep.
type Record struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    Status         `json:"status"`
	Report    *output.Result `json:"report"`
}

// StatusOf classifies a report.
func StatusOf(r *output.Result) Status {
	switch {
	case r.Complete:
		return StatusComplete
	case len(r.Resonances) > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
