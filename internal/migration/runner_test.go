package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"locagest/internal/core"
	"locagest/internal/store/memory"
	"locagest/internal/summary"
)

var today = core.NewDate(2024, 6, 15)

// recordingStore wraps the memory store and records the write sequence.
type recordingStore struct {
	*memory.Store
	calls       []string
	failUpdate  map[string]error
	failExport  error
	updateCount int
}

func newRecordingStore(contracts []core.Contract, payments []core.Payment) *recordingStore {
	return &recordingStore{Store: memory.New(contracts, payments), failUpdate: map[string]error{}}
}

func (s *recordingStore) UpdateContract(ctx context.Context, c core.Contract) (core.Contract, error) {
	s.calls = append(s.calls, "update:"+c.ID)
	if err, ok := s.failUpdate[c.ID]; ok {
		return core.Contract{}, err
	}
	s.updateCount++
	return s.Store.UpdateContract(ctx, c)
}

func (s *recordingStore) ExportAll(ctx context.Context) (core.Snapshot, error) {
	s.calls = append(s.calls, "export")
	if s.failExport != nil {
		return core.Snapshot{}, s.failExport
	}
	return s.Store.ExportAll(ctx)
}

type sinkFunc func(ctx context.Context, s core.Snapshot) (string, error)

func (f sinkFunc) Save(ctx context.Context, s core.Snapshot) (string, error) { return f(ctx, s) }

func rental(id string, status core.ContractStatus, start, end core.Date, total int64) core.Contract {
	m := core.Money{Cents: total * 100}
	return core.Contract{
		ID:             id,
		ContractNumber: "CTR-" + id,
		StartDate:      start,
		EndDate:        end,
		TotalAmount:    &m,
		Status:         status,
	}
}

// withFreshCache stores the fields the calculator currently produces.
func withFreshCache(t *testing.T, c core.Contract, payments []core.Payment) core.Contract {
	t.Helper()
	s, err := summary.Compute(c, payments, summary.Options{Today: today})
	require.NoError(t, err)
	d := s.Derived(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Cached = &d
	return c
}

func TestRun_RewritesOnlyStaleContracts(t *testing.T) {
	a := withFreshCache(t, rental("a", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900), nil)
	b := withFreshCache(t, rental("b", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 30), 3000), nil)
	// c was cached under the old exclusive duration rule.
	c := rental("c", core.StatusFerme, core.NewDate(2024, 5, 10), core.NewDate(2024, 5, 14), 500)
	c.Cached = &core.DerivedFields{DurationDays: 4, Total: core.Money{Cents: 50000}, Remaining: core.Money{Cents: 50000}, Statut: "en attente"}

	st := newRecordingStore([]core.Contract{a, b, c}, nil)
	var saved []core.Snapshot
	sink := sinkFunc(func(_ context.Context, s core.Snapshot) (string, error) {
		saved = append(saved, s)
		return "/backups/" + s.ID, nil
	})

	runner := NewRunner(nil)
	report, err := runner.Run(context.Background(), st, Options{Today: today, SnapshotSink: sink})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 2, report.Unchanged)
	assert.Equal(t, 1, report.Written)
	assert.Zero(t, report.Errors)
	assert.Equal(t, []string{"c"}, report.ChangedIDs())
	assert.Equal(t, "1 contracts recalculated, 0 errors", report.Summary())

	require.NotNil(t, report.Snapshot)
	assert.Equal(t, "/backups/"+report.Snapshot.ID, report.Snapshot.Path)
	assert.Equal(t, 3, report.Snapshot.Contracts)
	require.Len(t, saved, 1)

	got, err := st.GetContract(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Cached.DurationDays)

	// A second run with the same date is a no-op.
	again, err := runner.Run(context.Background(), st, Options{Today: today, SnapshotSink: sink})
	require.NoError(t, err)
	assert.Zero(t, again.Changed)
	assert.Zero(t, again.Written)
	assert.Nil(t, again.Snapshot)
	for _, e := range again.Entries {
		assert.False(t, e.Changed, e.ContractID)
	}
	assert.Len(t, saved, 1)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	st := newRecordingStore([]core.Contract{
		rental("a", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 2), 100),
		rental("b", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 20), 100),
	}, nil)

	report, err := NewRunner(nil).Run(context.Background(), st, Options{DryRun: true, Today: today})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Changed)
	assert.Zero(t, report.Written)
	assert.Nil(t, report.Snapshot)
	assert.Empty(t, st.calls)
	assert.Contains(t, report.Summary(), "dry run")

	for _, e := range report.Entries {
		require.NotNil(t, e.After)
		assert.Nil(t, e.Before)
	}
}

func TestRun_PerContractFailuresDoNotAbort(t *testing.T) {
	good := rental("good", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 5), 400)
	badDates := rental("dates", core.StatusOuvert, core.NewDate(2024, 6, 5), core.NewDate(2024, 6, 1), 400)
	badPayment := rental("pay", core.StatusOuvert, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 5), 400)
	vanished := rental("gone", core.StatusFerme, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 5), 400)

	payments := []core.Payment{{ID: "neg", ContractID: "pay", Amount: core.Money{Cents: -100}, Method: core.MethodCash}}
	st := newRecordingStore([]core.Contract{badDates, good, badPayment, vanished}, payments)
	st.failUpdate["gone"] = core.ContractNotFound("gone")

	report, err := NewRunner(nil).Run(context.Background(), st, Options{Today: today})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Errors)
	assert.Equal(t, 1, report.Written)

	byID := map[string]Entry{}
	for _, e := range report.Entries {
		byID[e.ContractID] = e
	}
	assert.ErrorIs(t, byID["dates"].Err, core.ErrInvalidDateRange)
	assert.ErrorIs(t, byID["pay"].Err, core.ErrInvalidPayment)
	assert.ErrorIs(t, byID["gone"].Err, core.ErrNotFound)
	assert.False(t, byID["gone"].Written)
	assert.True(t, byID["good"].Written)
	assert.Len(t, report.Failed(), 3)
	assert.Equal(t, []string{"good"}, report.ChangedIDs())

	// Errored contracts are never written.
	dates, _ := st.GetContract(context.Background(), "dates")
	assert.Nil(t, dates.Cached)
}

func TestRun_SnapshotPrecedesFirstWrite(t *testing.T) {
	st := newRecordingStore([]core.Contract{
		withFreshCache(t, rental("a", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900), nil),
		rental("b", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900),
		rental("c", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900),
	}, nil)

	_, err := NewRunner(nil).Run(context.Background(), st, Options{Today: today})
	require.NoError(t, err)
	assert.Equal(t, []string{"export", "update:b", "update:c"}, st.calls)
}

func TestRun_SnapshotFailureAborts(t *testing.T) {
	contracts := []core.Contract{
		rental("a", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900),
		rental("b", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900),
	}

	t.Run("export fails", func(t *testing.T) {
		st := newRecordingStore(contracts, nil)
		st.failExport = errors.New("disk full")

		report, err := NewRunner(nil).Run(context.Background(), st, Options{Today: today})
		require.ErrorIs(t, err, ErrSnapshot)
		require.NotNil(t, report)
		assert.Zero(t, st.updateCount)
		assert.Zero(t, report.Written)
	})

	t.Run("sink fails", func(t *testing.T) {
		st := newRecordingStore(contracts, nil)
		sink := sinkFunc(func(context.Context, core.Snapshot) (string, error) {
			return "", errors.New("permission denied")
		})

		_, err := NewRunner(nil).Run(context.Background(), st, Options{Today: today, SnapshotSink: sink})
		require.ErrorIs(t, err, ErrSnapshot)
		assert.Zero(t, st.updateCount)
	})
}

func TestRun_StopsOnCancellation(t *testing.T) {
	st := newRecordingStore([]core.Contract{
		rental("a", core.StatusFerme, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900),
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(nil).Run(ctx, st, Options{Today: today})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Total)
	assert.Empty(t, st.calls)
}

func TestRun_RejectsUnknownAdvanceMode(t *testing.T) {
	st := newRecordingStore(nil, nil)
	report, err := NewRunner(nil).Run(context.Background(), st, Options{AdvanceMode: "guess"})
	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestRun_UsesCalculatorClock(t *testing.T) {
	st := newRecordingStore([]core.Contract{
		rental("a", core.StatusOuvert, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3), 900),
	}, nil)

	runner := NewRunner(summary.NewCalculator(summary.FixedClock(core.NewDate(2024, 5, 10))))
	report, err := runner.Run(context.Background(), st, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.AsOf.Equal(core.NewDate(2024, 5, 10)))
	assert.Equal(t, summary.DefaultAdvanceMode, report.Mode)
	assert.Equal(t, "impayé", report.Entries[0].After.Statut)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestChanged(t *testing.T) {
	base := core.DerivedFields{DurationDays: 3, Total: core.Money{Cents: 100}, Remaining: core.Money{Cents: 50}, Statut: "en attente"}

	tests := []struct {
		name   string
		before *core.DerivedFields
		after  func(d core.DerivedFields) core.DerivedFields
		want   bool
	}{
		{"no cache", nil, func(d core.DerivedFields) core.DerivedFields { return d }, true},
		{"identical", &base, func(d core.DerivedFields) core.DerivedFields { return d }, false},
		{"only timestamp", &base, func(d core.DerivedFields) core.DerivedFields { d.ComputedAt = time.Now(); return d }, false},
		{"duration", &base, func(d core.DerivedFields) core.DerivedFields { d.DurationDays++; return d }, true},
		{"total", &base, func(d core.DerivedFields) core.DerivedFields { d.Total.Cents++; return d }, true},
		{"remaining", &base, func(d core.DerivedFields) core.DerivedFields { d.Remaining.Cents--; return d }, true},
		{"statut", &base, func(d core.DerivedFields) core.DerivedFields { d.Statut = "payé"; return d }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Changed(tt.before, tt.after(base)))
		})
	}
}
