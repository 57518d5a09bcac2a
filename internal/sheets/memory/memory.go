package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"locagest/internal/migration"
	"locagest/internal/sheets"
)

var _ sheets.ReportPublisher = (*Publisher)(nil)

// Publisher keeps published reports in memory. It backs the CLI when no
// spreadsheet is configured and the service tests.
type Publisher struct {
	mu          sync.Mutex
	migrations  []migration.Report
	outstanding []sheets.OutstandingReport
}

func New() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishMigrationReport(_ context.Context, r *migration.Report) (string, error) {
	if r == nil {
		return "", errors.New("nil migration report")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.migrations = append(p.migrations, *r)
	return fmt.Sprintf("mem:migration:%d", len(p.migrations)), nil
}

func (p *Publisher) PublishOutstandingReport(_ context.Context, r sheets.OutstandingReport) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outstanding = append(p.outstanding, r)
	return fmt.Sprintf("mem:outstanding:%d", len(p.outstanding)), nil
}

// MigrationReports returns copies of every migration report received.
func (p *Publisher) MigrationReports() []migration.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]migration.Report(nil), p.migrations...)
}

// OutstandingReports returns every outstanding report received.
func (p *Publisher) OutstandingReports() []sheets.OutstandingReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sheets.OutstandingReport(nil), p.outstanding...)
}
