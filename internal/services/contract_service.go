package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"locagest/internal/amqp"
	"locagest/internal/core"
	"locagest/internal/log"
	"locagest/internal/migration"
	"locagest/internal/sheets"
	"locagest/internal/store"
	"locagest/internal/summary"
)

// ErrConfirmationRequired is returned when a migration that would write is
// started without explicit operator confirmation.
var ErrConfirmationRequired = errors.New("migration requires explicit confirmation")

// InvalidationPublisher broadcasts that cached summaries are stale.
type InvalidationPublisher interface {
	PublishSummariesInvalidated(ctx context.Context, msg *amqp.SummariesInvalidatedMessage) error
}

// ContractView pairs a contract with its derived summary.
type ContractView struct {
	Contract core.Contract
	Summary  summary.ContractSummary
}

// MigrationRequest describes one recalculation run as asked for by an
// operator.
type MigrationRequest struct {
	DryRun    bool
	Confirmed bool
	// Today pins the run date. Zero means the calculator's clock.
	Today core.Date
}

// ContractService is the single entry point list screens, detail views,
// the CLI and the worker go through. Every summary it returns comes from
// the calculator, memoized in one cache.
type ContractService struct {
	store     store.Store
	calc      *summary.Calculator
	cache     *summary.Cache
	runner    *migration.Runner
	mode      summary.AdvanceMode
	snapshots migration.SnapshotSink
	notifier  InvalidationPublisher
	reports   sheets.ReportPublisher
}

type Option func(*ContractService)

func WithAdvanceMode(mode summary.AdvanceMode) Option {
	return func(s *ContractService) { s.mode = mode }
}

// WithCache replaces the default summary cache.
func WithCache(c *summary.Cache) Option {
	return func(s *ContractService) { s.cache = c }
}

func WithSnapshotSink(sink migration.SnapshotSink) Option {
	return func(s *ContractService) { s.snapshots = sink }
}

func WithInvalidationPublisher(p InvalidationPublisher) Option {
	return func(s *ContractService) { s.notifier = p }
}

func WithReportPublisher(p sheets.ReportPublisher) Option {
	return func(s *ContractService) { s.reports = p }
}

func NewContractService(st store.Store, calc *summary.Calculator, opts ...Option) *ContractService {
	if calc == nil {
		calc = summary.NewCalculator(nil)
	}
	s := &ContractService{
		store: st,
		calc:  calc,
		mode:  summary.DefaultAdvanceMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = summary.NewCache(calc, 1000, 0)
	}
	s.runner = migration.NewRunner(calc)
	return s
}

// Cache exposes the summary cache for periodic cleanup and stats.
func (s *ContractService) Cache() *summary.Cache {
	return s.cache
}

func (s *ContractService) logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentContracts)
}

func (s *ContractService) compute(ctx context.Context, c core.Contract) (summary.ContractSummary, error) {
	payments, err := s.store.GetPaymentsForContract(ctx, c.ID)
	if err != nil {
		return summary.ContractSummary{}, fmt.Errorf("get payments for %s: %w", c.ID, err)
	}
	return s.cache.Compute(c, payments, summary.Options{AdvanceMode: s.mode})
}

// Summary returns one contract with its summary.
func (s *ContractService) Summary(ctx context.Context, id string) (ContractView, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return ContractView{}, err
	}
	sum, err := s.compute(ctx, c)
	if err != nil {
		return ContractView{}, err
	}
	return ContractView{Contract: c, Summary: sum}, nil
}

// Summaries lists contracts in store order, keeping those matching filter.
// An empty filter keeps everything. Contracts whose summary cannot be
// computed are logged and left out.
func (s *ContractService) Summaries(ctx context.Context, filter summary.Label) ([]ContractView, error) {
	contracts, err := s.store.GetAllContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	views := make([]ContractView, 0, len(contracts))
	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum, err := s.compute(ctx, c)
		if err != nil {
			s.logger(ctx).WarnContext(ctx, "Summary unavailable",
				log.NewFields().
					WithOperation(log.OpCompute).
					WithContract(c.ID, c.ContractNumber).
					WithError(err).
					ToSlice()...)
			continue
		}
		if filter != "" && !summary.Matches(sum, filter) {
			continue
		}
		views = append(views, ContractView{Contract: c, Summary: sum})
	}
	return views, nil
}

// Counters tallies every contract for the stat cards.
func (s *ContractService) Counters(ctx context.Context) (summary.Counters, error) {
	views, err := s.Summaries(ctx, "")
	if err != nil {
		return summary.Counters{}, err
	}
	sums := make([]summary.ContractSummary, len(views))
	for i, v := range views {
		sums[i] = v.Summary
	}
	return summary.Count(sums), nil
}

// RecordPayment stores p and drops the contract's cached summaries.
func (s *ContractService) RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	saved, err := s.store.RecordPayment(ctx, p)
	if err != nil {
		return core.Payment{}, fmt.Errorf("record payment: %w", err)
	}
	s.cache.Invalidate(saved.ContractID)
	s.logger(ctx).InfoContext(ctx, "Payment recorded",
		log.NewFields().
			WithOperation(log.OpPay).
			WithPayment(saved.ID, saved.Amount.Cents).
			WithContract(saved.ContractID, "").
			ToSlice()...)
	s.notify(ctx, amqp.NewSummariesInvalidatedMessage(amqp.ReasonPayment, "", []string{saved.ContractID}))
	return saved, nil
}

// UpdateChequeStatus marks a cheque deposited or not and drops the owning
// contract's cached summaries.
func (s *ContractService) UpdateChequeStatus(ctx context.Context, paymentID string, status core.ChequeDepositStatus, depositDate *core.Date) (core.Payment, error) {
	saved, err := s.store.UpdateChequeStatus(ctx, paymentID, status, depositDate)
	if err != nil {
		return core.Payment{}, fmt.Errorf("update cheque %s: %w", paymentID, err)
	}
	s.cache.Invalidate(saved.ContractID)
	s.logger(ctx).InfoContext(ctx, "Cheque status updated",
		log.NewFields().
			WithOperation(log.OpUpdate).
			WithPayment(saved.ID, saved.Amount.Cents).
			WithContract(saved.ContractID, "").
			ToSlice()...)
	s.notify(ctx, amqp.NewSummariesInvalidatedMessage(amqp.ReasonPayment, "", []string{saved.ContractID}))
	return saved, nil
}

// RunMigration recalculates the cached display fields of every contract.
// A run that writes must be confirmed. After a run that wrote anything
// the local cache is cleared and other processes are told to clear
// theirs. The report is published whenever a publisher is configured.
func (s *ContractService) RunMigration(ctx context.Context, req MigrationRequest) (*migration.Report, error) {
	if !req.DryRun && !req.Confirmed {
		return nil, ErrConfirmationRequired
	}

	report, err := s.runner.Run(ctx, s.store, migration.Options{
		DryRun:       req.DryRun,
		AdvanceMode:  s.mode,
		Today:        req.Today,
		SnapshotSink: s.snapshots,
	})
	if report == nil {
		return nil, err
	}

	if report.Written > 0 {
		s.cache.Clear()
		s.notify(ctx, amqp.NewSummariesInvalidatedMessage(amqp.ReasonMigration, report.RunID, nil))
	}
	if err == nil {
		s.publishMigrationReport(ctx, report)
	}
	return report, err
}

// Restore replaces the whole data set with a snapshot.
func (s *ContractService) Restore(ctx context.Context, snap core.Snapshot) error {
	if err := s.store.Import(ctx, snap); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
	}
	s.cache.Clear()
	s.logger(ctx).InfoContext(ctx, "Snapshot restored",
		log.FieldOperation, log.OpRestore,
		log.FieldSnapshotID, snap.ID,
		"contracts", len(snap.Contracts),
		"payments", len(snap.Payments))
	s.notify(ctx, amqp.NewSummariesInvalidatedMessage(amqp.ReasonRestore, "", nil))
	return nil
}

// ApplyInvalidation drops the cached summaries named by msg and returns the
// number of entries removed; a message without contracts clears everything.
func (s *ContractService) ApplyInvalidation(msg *amqp.SummariesInvalidatedMessage) int {
	if msg == nil {
		return 0
	}
	if msg.All() {
		n := s.cache.Stats().Size
		s.cache.Clear()
		return n
	}
	n := 0
	for _, id := range msg.ContractIDs {
		n += s.cache.Invalidate(id)
	}
	return n
}

// OutstandingReport lists every contract that is not fully paid, most
// overdue first.
func (s *ContractService) OutstandingReport(ctx context.Context) (sheets.OutstandingReport, error) {
	views, err := s.Summaries(ctx, "")
	if err != nil {
		return sheets.OutstandingReport{}, err
	}

	sums := make([]summary.ContractSummary, 0, len(views))
	lines := make([]sheets.OutstandingLine, 0, len(views))
	for _, v := range views {
		sums = append(sums, v.Summary)
		if v.Summary.IsFullyPaid {
			continue
		}
		lines = append(lines, sheets.OutstandingLine{
			ContractID:     v.Contract.ID,
			ContractNumber: v.Contract.ContractNumber,
			CustomerName:   v.Contract.CustomerName,
			EndDate:        v.Contract.EndDate,
			Statut:         v.Summary.Statut,
			Total:          v.Summary.Total,
			TotalPaid:      v.Summary.TotalPaid,
			Remaining:      v.Summary.Remaining,
			OverdueDays:    v.Summary.OverdueDays,
		})
	}
	slices.SortStableFunc(lines, func(a, b sheets.OutstandingLine) int {
		if c := cmp.Compare(b.OverdueDays, a.OverdueDays); c != 0 {
			return c
		}
		return cmp.Compare(a.ContractNumber, b.ContractNumber)
	})

	return sheets.OutstandingReport{
		AsOf:        s.calc.Today(),
		GeneratedAt: time.Now(),
		Counters:    summary.Count(sums),
		Lines:       lines,
	}, nil
}

// PublishOutstandingReport builds the receivables report and hands it to
// the report publisher.
func (s *ContractService) PublishOutstandingReport(ctx context.Context) (string, error) {
	if s.reports == nil {
		return "", errors.New("no report publisher configured")
	}
	r, err := s.OutstandingReport(ctx)
	if err != nil {
		return "", err
	}
	ref, err := s.reports.PublishOutstandingReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("publish outstanding report: %w", err)
	}
	return ref, nil
}

// Notifications and reports are best-effort: the local write has already
// succeeded.
func (s *ContractService) notify(ctx context.Context, msg *amqp.SummariesInvalidatedMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishSummariesInvalidated(ctx, msg); err != nil {
		log.LogError(ctx, "Failed to publish summaries invalidation", err,
			log.ComponentAMQP, log.OpPublish, log.NewFields().WithRun(msg.RunID, false))
	}
}

func (s *ContractService) publishMigrationReport(ctx context.Context, r *migration.Report) {
	if s.reports == nil {
		return
	}
	ref, err := s.reports.PublishMigrationReport(ctx, r)
	if err != nil {
		log.LogError(ctx, "Failed to publish migration report", err,
			log.ComponentSheets, log.OpPublish, log.NewFields().WithRun(r.RunID, r.DryRun))
		return
	}
	s.logger(ctx).InfoContext(ctx, "Migration report published", log.FieldRunID, r.RunID, "ref", ref)
}
