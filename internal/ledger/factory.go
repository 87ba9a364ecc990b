// Package ledger creates occurrences and drives their open/closed state
// machine. Every function here is pure: inputs are never mutated, new
// slices are returned, and all money stays in integer cents.
package ledger

import (
	"sort"

	"github.com/google/uuid"

	"mensile/internal/core"
)

// Generate builds one open occurrence per due date, sequenced 1..N in date
// order. The per-occurrence amount is the template amount; dates are assumed
// ascending as the schedule package produces them.
func Generate(dates []core.Date, amount core.Money) []core.Occurrence {
	occs := make([]core.Occurrence, 0, len(dates))
	for i, d := range dates {
		occs = append(occs, core.Occurrence{
			ID:             uuid.NewString(),
			Sequence:       i + 1,
			ExpectedDate:   d,
			ExpectedAmount: amount,
		})
	}
	return occs
}

// NewAdhoc creates a single manually added occurrence. Sequence is left at 0
// until the owning set is resequenced.
func NewAdhoc(date core.Date, amount core.Money) core.Occurrence {
	return core.Occurrence{
		ID:             uuid.NewString(),
		ExpectedDate:   date,
		ExpectedAmount: amount,
		IsAdhoc:        true,
	}
}

// Resequence returns a new slice sorted by expected date ascending, with
// sequence numbers reassigned 1..N. The sort is stable, so occurrences
// sharing a date keep their relative order; applying Resequence to an
// already ordered set is a no-op apart from the copy.
func Resequence(occs []core.Occurrence) []core.Occurrence {
	out := make([]core.Occurrence, len(occs))
	copy(out, occs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpectedDate.Before(out[j].ExpectedDate)
	})
	for i := range out {
		out[i].Sequence = i + 1
	}
	return out
}
