// Package migration recomputes the cached display fields of every contract
// with the current calculation rules.
//
// A run is sequential and idempotent: running it twice with the same date
// writes nothing the second time. One contract's failure never aborts the
// batch. Before the first write the whole data set is exported so an
// operator can restore it.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"locagest/internal/core"
	"locagest/internal/log"
	"locagest/internal/store"
	"locagest/internal/summary"
)

// SnapshotSink persists a snapshot and returns where it went.
type SnapshotSink interface {
	Save(ctx context.Context, s core.Snapshot) (string, error)
}

// ErrSnapshot wraps every failure to take or save the pre-write snapshot.
var ErrSnapshot = errors.New("snapshot failed")

type Options struct {
	DryRun      bool
	AdvanceMode summary.AdvanceMode
	// Today pins the date the run computes against. Zero means the
	// runner's clock.
	Today core.Date
	// SnapshotSink receives the pre-write export. Nil keeps it in the
	// report only.
	SnapshotSink SnapshotSink
}

type Runner struct {
	calc  *summary.Calculator
	now   func() time.Time
	newID func() string
}

func NewRunner(calc *summary.Calculator) *Runner {
	if calc == nil {
		calc = summary.NewCalculator(nil)
	}
	return &Runner{calc: calc, now: time.Now, newID: uuid.NewString}
}

// Run walks every contract in store order. The returned report is non-nil
// whenever the contract list could be read; the error is set only when the
// run stopped early (listing failure, snapshot failure, cancellation).
func (r *Runner) Run(ctx context.Context, st store.MigrationStore, opts Options) (*Report, error) {
	resolved, err := r.calc.Resolve(summary.Options{AdvanceMode: opts.AdvanceMode, Today: opts.Today})
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     r.newID(),
		DryRun:    opts.DryRun,
		AsOf:      resolved.Today,
		Mode:      resolved.AdvanceMode,
		StartedAt: r.now(),
	}
	ctx = log.WithRun(ctx, report.RunID, opts.DryRun)
	logger := log.FromContext(ctx)
	defer func() { report.FinishedAt = r.now() }()

	contracts, err := st.GetAllContracts(ctx)
	if err != nil {
		return report, fmt.Errorf("list contracts: %w", err)
	}
	logger.InfoContext(ctx, "Migration started",
		log.FieldOperation, log.OpMigrate,
		"contracts", len(contracts),
		log.FieldAsOf, resolved.Today.String(),
		log.FieldAdvanceMode, string(resolved.AdvanceMode))

	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "Migration interrupted", "processed", report.Total, log.FieldError, err)
			return report, err
		}

		entry := r.process(ctx, st, c, resolved)
		if entry.Err == nil && entry.Changed && !opts.DryRun {
			if report.Snapshot == nil {
				info, err := r.snapshot(ctx, st, opts.SnapshotSink)
				if err != nil {
					logger.ErrorContext(ctx, "Snapshot failed, nothing written", log.FieldError, err)
					return report, err
				}
				report.Snapshot = info
			}
			entry.Err = r.write(ctx, st, c, *entry.After)
			entry.Written = entry.Err == nil
			if entry.Written {
				logger.DebugContext(ctx, "Contract recalculated",
					append(log.NewFields().WithContract(c.ID, c.ContractNumber).ToSlice(),
						log.FieldStatut, entry.After.Statut)...)
			}
		}
		if entry.Err != nil {
			logger.WarnContext(ctx, "Contract skipped",
				log.NewFields().WithContract(c.ID, c.ContractNumber).WithError(entry.Err).ToSlice()...)
		}
		report.add(entry)
	}

	logger.InfoContext(ctx, "Migration finished",
		"total", report.Total,
		"changed", report.Changed,
		"written", report.Written,
		"errors", report.Errors,
		log.FieldDuration, r.now().Sub(report.StartedAt).Milliseconds())
	return report, nil
}

func (r *Runner) process(ctx context.Context, st store.MigrationStore, c core.Contract, opts summary.Options) Entry {
	entry := Entry{ContractID: c.ID, ContractNumber: c.ContractNumber, Before: c.Cached}

	payments, err := st.GetPaymentsForContract(ctx, c.ID)
	if err != nil {
		entry.Err = fmt.Errorf("get payments for %s: %w", c.ID, err)
		return entry
	}
	s, err := r.calc.Compute(c, payments, opts)
	if err != nil {
		entry.Err = err
		return entry
	}
	after := s.Derived(r.now())
	entry.After = &after
	entry.Changed = Changed(c.Cached, after)
	return entry
}

func (r *Runner) write(ctx context.Context, st store.MigrationStore, c core.Contract, after core.DerivedFields) error {
	c.Cached = &after
	if _, err := st.UpdateContract(ctx, c); err != nil {
		return fmt.Errorf("update contract %s: %w", c.ID, err)
	}
	return nil
}

func (r *Runner) snapshot(ctx context.Context, st store.MigrationStore, sink SnapshotSink) (*SnapshotInfo, error) {
	snap, err := st.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: export: %v", ErrSnapshot, err)
	}
	snap.ID = r.newID()
	snap.TakenAt = r.now()

	info := &SnapshotInfo{
		ID:        snap.ID,
		TakenAt:   snap.TakenAt,
		Contracts: len(snap.Contracts),
		Payments:  len(snap.Payments),
	}
	if sink != nil {
		path, err := sink.Save(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("%w: save: %v", ErrSnapshot, err)
		}
		info.Path = path
	}
	log.FromContext(ctx).InfoContext(ctx, "Snapshot taken",
		log.FieldOperation, log.OpSnapshot,
		log.FieldSnapshotID, info.ID,
		"path", info.Path)
	return info, nil
}

// Changed compares the persisted display fields with a fresh computation.
// ComputedAt is ignored; a missing cache always counts as changed.
func Changed(before *core.DerivedFields, after core.DerivedFields) bool {
	if before == nil {
		return true
	}
	return before.DurationDays != after.DurationDays ||
		before.Total != after.Total ||
		before.Remaining != after.Remaining ||
		before.Statut != after.Statut
}
