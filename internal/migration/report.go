package migration

import (
	"fmt"
	"time"

	"locagest/internal/core"
	"locagest/internal/summary"
)

// Entry is the outcome for one contract.
type Entry struct {
	ContractID     string
	ContractNumber string
	// Before is the cached display state read from the store; nil when the
	// contract was never migrated.
	Before *core.DerivedFields
	// After is nil when the computation failed.
	After   *core.DerivedFields
	Changed bool
	Written bool
	Err     error
}

// SnapshotInfo describes the export taken before the first write.
type SnapshotInfo struct {
	ID        string
	Path      string
	TakenAt   time.Time
	Contracts int
	Payments  int
}

// Report enumerates what a run corrected and what it could not process.
type Report struct {
	RunID      string
	DryRun     bool
	AsOf       core.Date
	Mode       summary.AdvanceMode
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry
	Snapshot   *SnapshotInfo

	Total     int
	Changed   int
	Unchanged int
	Written   int
	Errors    int
}

func (r *Report) add(e Entry) {
	r.Entries = append(r.Entries, e)
	r.Total++
	switch {
	case e.Err != nil:
		r.Errors++
	case e.Changed:
		r.Changed++
	default:
		r.Unchanged++
	}
	if e.Written {
		r.Written++
	}
}

// Failed returns the entries that carry an error.
func (r *Report) Failed() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// ChangedIDs lists the contracts whose cached fields were (or, in a dry run,
// would be) rewritten.
func (r *Report) ChangedIDs() []string {
	var out []string
	for _, e := range r.Entries {
		if e.Changed && e.Err == nil {
			out = append(out, e.ContractID)
		}
	}
	return out
}

// Duration of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary is the operator-facing one-liner.
func (r *Report) Summary() string {
	if r.DryRun {
		return fmt.Sprintf("%d contracts would be recalculated, %d errors (dry run)", r.Changed, r.Errors)
	}
	return fmt.Sprintf("%d contracts recalculated, %d errors", r.Written, r.Errors)
}
