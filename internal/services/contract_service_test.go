package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locagest/internal/amqp"
	"locagest/internal/core"
	"locagest/internal/export"
	sheetsmem "locagest/internal/sheets/memory"
	"locagest/internal/store/memory"
	"locagest/internal/summary"
)

var today = core.NewDate(2024, 6, 15)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []*amqp.SummariesInvalidatedMessage
	err  error
}

func (n *recordingNotifier) PublishSummariesInvalidated(_ context.Context, msg *amqp.SummariesInvalidatedMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) messages() []*amqp.SummariesInvalidatedMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*amqp.SummariesInvalidatedMessage(nil), n.msgs...)
}

func rental(id string, status core.ContractStatus, start, end core.Date, units int64) core.Contract {
	total := core.Money{Cents: units * 100}
	return core.Contract{
		ID:             id,
		ContractNumber: "CTR-" + id,
		CustomerName:   "Client " + id,
		StartDate:      start,
		EndDate:        end,
		TotalAmount:    &total,
		Status:         status,
	}
}

func cash(id, contractID string, units int64) core.Payment {
	return core.Payment{
		ID:          id,
		ContractID:  contractID,
		Amount:      core.Money{Cents: units * 100},
		Method:      core.MethodCash,
		PaymentDate: core.NewDate(2024, 6, 1),
	}
}

type fixture struct {
	svc      *ContractService
	store    *memory.Store
	notifier *recordingNotifier
	reports  *sheetsmem.Publisher
}

// newFixture seeds three contracts as of 2024-06-15:
// paid (settled), late (ended 06-10, nothing paid) and partial (running,
// 100 of 500 paid).
func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New(
		[]core.Contract{
			rental("paid", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 300),
			rental("late", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 10), 1000),
			rental("partial", core.StatusOuvert, core.NewDate(2024, 6, 10), core.NewDate(2024, 6, 20), 500),
		},
		[]core.Payment{
			cash("p1", "paid", 300),
			cash("p2", "partial", 100),
		},
	)
	notifier := &recordingNotifier{}
	reports := sheetsmem.New()
	svc := NewContractService(st, summary.NewCalculator(summary.FixedClock(today)),
		WithInvalidationPublisher(notifier),
		WithReportPublisher(reports),
		WithSnapshotSink(export.NewFileSink(t.TempDir())),
	)
	return fixture{svc: svc, store: st, notifier: notifier, reports: reports}
}

func ids(views []ContractView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Contract.ID
	}
	return out
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.Summary(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, summary.LabelImpaye, v.Summary.Statut)
	assert.Equal(t, 5, v.Summary.OverdueDays)
	assert.Equal(t, 10, v.Summary.DurationDays)

	_, err = f.svc.Summary(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSummaries_Filter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		filter summary.Label
		want   []string
	}{
		{"", []string{"paid", "late", "partial"}},
		{summary.LabelPaye, []string{"paid"}},
		{summary.LabelImpaye, []string{"late"}},
		{summary.LabelEnAttente, []string{"partial"}},
		{summary.LabelProlonge, []string{"late"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			views, err := f.svc.Summaries(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(views))
		})
	}
}

func TestSummaries_SkipsBrokenContracts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateContract(ctx, rental("ok", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 30), 100))
	require.NoError(t, err)
	broken, err := f.store.GetContract(ctx, "ok")
	require.NoError(t, err)
	broken.EndDate = core.NewDate(2024, 5, 1)
	_, err = f.store.UpdateContract(ctx, broken)
	require.NoError(t, err)

	views, err := f.svc.Summaries(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"paid", "late", "partial"}, ids(views))
}

func TestCounters(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 1, c.ByLabel[summary.LabelPaye])
	assert.Equal(t, 1, c.ByLabel[summary.LabelImpaye])
	assert.Equal(t, 1, c.ByLabel[summary.LabelEnAttente])
	assert.Equal(t, 1, c.ByLabel[summary.LabelProlonge])
	assert.Equal(t, 1, c.Overdue)
	assert.Equal(t, core.Money{Cents: 140000}, c.Outstanding)
	assert.Equal(t, core.Money{Cents: 40000}, c.Collected)
}

func TestRecordPayment_InvalidatesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.svc.Summary(ctx, "partial")
	require.NoError(t, err)
	require.Equal(t, summary.LabelEnAttente, before.Summary.Statut)
	require.Equal(t, 1, f.svc.Cache().Stats().Size)

	saved, err := f.svc.RecordPayment(ctx, cash("", "partial", 400))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 0, f.svc.Cache().Stats().Size)

	after, err := f.svc.Summary(ctx, "partial")
	require.NoError(t, err)
	assert.Equal(t, summary.LabelPaye, after.Summary.Statut)
	assert.True(t, after.Summary.IsFullyPaid)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, amqp.ReasonPayment, msgs[0].Reason)
	assert.Equal(t, []string{"partial"}, msgs[0].ContractIDs)
}

func TestRecordPayment_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordPayment(ctx, cash("", "ghost", 10))
	assert.ErrorIs(t, err, core.ErrNotFound)

	bad := cash("", "late", 10)
	bad.Amount = core.Money{Cents: -1}
	_, err = f.svc.RecordPayment(ctx, bad)
	assert.ErrorIs(t, err, core.ErrInvalidPayment)
	assert.Empty(t, f.notifier.messages())
}

func TestRecordPayment_NotifierFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")

	_, err := f.svc.RecordPayment(context.Background(), cash("", "late", 1000))
	require.NoError(t, err)

	v, err := f.svc.Summary(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, summary.LabelPaye, v.Summary.Statut)
	assert.Equal(t, 0, v.Summary.OverdueDays)
	assert.Equal(t, 5, v.Summary.ExtensionDays)
}

func TestUpdateChequeStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cheque := core.Payment{
		ContractID:         "late",
		Amount:             core.Money{Cents: 20000},
		Method:             core.MethodCheque,
		PaymentDate:        core.NewDate(2024, 6, 12),
		CheckReference:     "CHQ-1",
		CheckDirection:     core.ChequeReceived,
		CheckDepositStatus: core.ChequeNotDeposited,
	}
	saved, err := f.svc.RecordPayment(ctx, cheque)
	require.NoError(t, err)

	v, err := f.svc.Summary(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, core.Money{Cents: 20000}, v.Summary.Breakdown.PendingCheques)

	deposit := core.NewDate(2024, 6, 14)
	updated, err := f.svc.UpdateChequeStatus(ctx, saved.ID, core.ChequeDeposited, &deposit)
	require.NoError(t, err)
	assert.Equal(t, core.ChequeDeposited, updated.CheckDepositStatus)

	v, err = f.svc.Summary(ctx, "late")
	require.NoError(t, err)
	assert.True(t, v.Summary.Breakdown.PendingCheques.IsZero())
	assert.Len(t, f.notifier.messages(), 2)

	_, err = f.svc.UpdateChequeStatus(ctx, "missing", core.ChequeDeposited, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRunMigration_RequiresConfirmation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RunMigration(context.Background(), MigrationRequest{})
	assert.ErrorIs(t, err, ErrConfirmationRequired)

	report, err := f.svc.RunMigration(context.Background(), MigrationRequest{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Changed)
	assert.Equal(t, 0, report.Written)
	assert.Nil(t, report.Snapshot)
	assert.Empty(t, f.notifier.messages())
	assert.Len(t, f.reports.MigrationReports(), 1)
}

func TestRunMigration_WritesClearsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Summaries(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, f.svc.Cache().Stats().Size)

	report, err := f.svc.RunMigration(ctx, MigrationRequest{Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)
	assert.Equal(t, today, report.AsOf)
	assert.Equal(t, "3 contracts recalculated, 0 errors", report.Summary())
	require.NotNil(t, report.Snapshot)
	assert.FileExists(t, report.Snapshot.Path)
	assert.Equal(t, 0, f.svc.Cache().Stats().Size)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, amqp.ReasonMigration, msgs[0].Reason)
	assert.Equal(t, report.RunID, msgs[0].RunID)
	assert.True(t, msgs[0].All())

	late, err := f.store.GetContract(ctx, "late")
	require.NoError(t, err)
	require.NotNil(t, late.Cached)
	assert.Equal(t, string(summary.LabelImpaye), late.Cached.Statut)

	// A second run with the same date has nothing left to write.
	again, err := f.svc.RunMigration(ctx, MigrationRequest{Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Written)
	assert.Len(t, f.notifier.messages(), 1)
	assert.Len(t, f.reports.MigrationReports(), 2)
}

func TestRestore_FromMigrationSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.RunMigration(ctx, MigrationRequest{Confirmed: true})
	require.NoError(t, err)
	require.NotNil(t, report.Snapshot)

	snap, err := export.ReadSnapshot(report.Snapshot.Path)
	require.NoError(t, err)
	require.NoError(t, f.svc.Restore(ctx, snap))

	late, err := f.store.GetContract(ctx, "late")
	require.NoError(t, err)
	assert.Nil(t, late.Cached, "restore brings back the pre-migration state")

	msgs := f.notifier.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, amqp.ReasonRestore, msgs[1].Reason)
}

func TestApplyInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Summaries(ctx, "")
	require.NoError(t, err)

	n := f.svc.ApplyInvalidation(amqp.NewSummariesInvalidatedMessage(amqp.ReasonPayment, "", []string{"late", "ghost"}))
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.svc.Cache().Stats().Size)

	n = f.svc.ApplyInvalidation(amqp.NewSummariesInvalidatedMessage(amqp.ReasonMigration, "run", nil))
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, f.svc.Cache().Stats().Size)

	assert.Zero(t, f.svc.ApplyInvalidation(nil))
}

func TestOutstandingReport(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.OutstandingReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, today, r.AsOf)
	require.Len(t, r.Lines, 2)
	assert.Equal(t, "CTR-late", r.Lines[0].ContractNumber)
	assert.Equal(t, 5, r.Lines[0].OverdueDays)
	assert.Equal(t, "CTR-partial", r.Lines[1].ContractNumber)
	assert.Equal(t, core.Money{Cents: 40000}, r.Lines[1].Remaining)
	assert.Equal(t, 3, r.Counters.Total)
}

func TestOutstandingReport_SkipsOneCentShortfall(t *testing.T) {
	short := cash("p1", "short", 100)
	short.Amount = core.Money{Cents: 9999}
	st := memory.New(
		[]core.Contract{rental("short", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 10), 100)},
		[]core.Payment{short},
	)
	svc := NewContractService(st, summary.NewCalculator(summary.FixedClock(today)))

	r, err := svc.OutstandingReport(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Lines)
	assert.Equal(t, 1, r.Counters.Total)
}

func TestPublishOutstandingReport(t *testing.T) {
	f := newFixture(t)

	ref, err := f.svc.PublishOutstandingReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mem:outstanding:1", ref)

	bare := NewContractService(f.store, nil)
	_, err = bare.PublishOutstandingReport(context.Background())
	assert.Error(t, err)
}
