package memory

import (
	"context"
	"testing"

	"locagest/internal/core"
	"locagest/internal/migration"
	"locagest/internal/sheets"
)

func TestPublisherRecordsMigrationReports(t *testing.T) {
	p := New()

	ref, err := p.PublishMigrationReport(context.Background(), &migration.Report{RunID: "run-1", Total: 3})
	if err != nil || ref != "mem:migration:1" {
		t.Fatalf("unexpected publish: ref=%q err=%v", ref, err)
	}
	if _, err := p.PublishMigrationReport(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil report")
	}

	got := p.MigrationReports()
	if len(got) != 1 || got[0].RunID != "run-1" {
		t.Fatalf("unexpected reports: %+v", got)
	}
}

func TestPublisherRecordsOutstandingReports(t *testing.T) {
	p := New()
	report := sheets.OutstandingReport{
		AsOf:  core.NewDate(2026, 3, 1),
		Lines: []sheets.OutstandingLine{{ContractNumber: "C-1", Remaining: core.Money{Cents: 5000}}},
	}

	for i, want := range []string{"mem:outstanding:1", "mem:outstanding:2"} {
		ref, err := p.PublishOutstandingReport(context.Background(), report)
		if err != nil || ref != want {
			t.Fatalf("publish %d: ref=%q err=%v", i, ref, err)
		}
	}
	if n := len(p.OutstandingReports()); n != 2 {
		t.Fatalf("expected 2 reports, got %d", n)
	}
}
