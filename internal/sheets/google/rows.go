package google

import (
	"time"

	"locagest/internal/migration"
	ports "locagest/internal/sheets"
)

const timestampLayout = "2006-01-02 15:04:05"

// migrationRows renders a run as sheet rows. Amounts are written as decimal
// strings so USER_ENTERED parses them as numbers.
func migrationRows(r *migration.Report) [][]any {
	mode := "appliqué"
	if r.DryRun {
		mode = "simulation"
	}
	rows := [][]any{{
		r.FinishedAt.UTC().Format(timestampLayout),
		"migration",
		r.RunID,
		r.AsOf.String(),
		string(r.Mode),
		mode,
		r.Total,
		r.Changed,
		r.Written,
		r.Errors,
	}}
	for _, e := range r.Failed() {
		rows = append(rows, []any{
			r.FinishedAt.UTC().Format(timestampLayout),
			"erreur",
			r.RunID,
			e.ContractNumber,
			e.ContractID,
			e.Err.Error(),
		})
	}
	return rows
}

// outstandingRows lists the contracts not yet settled, most overdue first as
// provided by the caller.
func outstandingRows(r ports.OutstandingReport) [][]any {
	at := r.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC().Format(timestampLayout)

	rows := make([][]any, 0, len(r.Lines))
	for _, l := range r.Lines {
		if l.Settled() {
			continue
		}
		rows = append(rows, []any{
			ts,
			r.AsOf.String(),
			l.ContractNumber,
			l.CustomerName,
			l.EndDate.String(),
			string(l.Statut),
			l.Total.String(),
			l.TotalPaid.String(),
			l.Remaining.String(),
			l.OverdueDays,
		})
	}
	return rows
}
