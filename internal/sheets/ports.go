package sheets

import (
	"context"
	"time"

	"locagest/internal/core"
	"locagest/internal/migration"
	"locagest/internal/summary"
)

// OutstandingLine is one contract that still owes money.
type OutstandingLine struct {
	ContractID     string
	ContractNumber string
	CustomerName   string
	EndDate        core.Date
	Statut         summary.Label
	Total          core.Money
	TotalPaid      core.Money
	Remaining      core.Money
	OverdueDays    int
}

// Settled reports whether the line is paid within the one-cent tolerance.
func (l OutstandingLine) Settled() bool {
	return l.Statut == summary.LabelPaye || !l.Remaining.IsPositive()
}

// OutstandingReport is the periodic receivables report.
type OutstandingReport struct {
	AsOf        core.Date
	GeneratedAt time.Time
	Counters    summary.Counters
	Lines       []OutstandingLine
}

// Ports for outbound adapters.
type (
	// ReportPublisher appends reports to an external sheet and returns a
	// reference to the written range.
	ReportPublisher interface {
		PublishMigrationReport(ctx context.Context, r *migration.Report) (rowRef string, err error)
		PublishOutstandingReport(ctx context.Context, r OutstandingReport) (rowRef string, err error)
	}
)
