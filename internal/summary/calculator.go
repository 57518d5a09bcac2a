package summary

import (
	"fmt"
	"time"

	"locagest/internal/core"
)

// ContractSummary is the derived financial view of one contract. It is
// recomputed on demand and never stored as a source of truth.
type ContractSummary struct {
	ContractID    string
	DurationDays  int
	Total         core.Money
	Advance       core.Money
	TotalPaid     core.Money
	Remaining     core.Money
	IsFullyPaid   bool
	Statut        Label
	OverdueDays   int
	ExtensionDays int

	// Payments is the list the figures were computed from.
	Payments  []core.Payment
	Breakdown Totals

	AsOf core.Date
	Mode AdvanceMode
}

// Options tunes a computation. The zero value means field mode, today.
type Options struct {
	AdvanceMode AdvanceMode
	// Today is the only time input of the computation. Zero means the
	// calculator's clock.
	Today core.Date
}

// Clock supplies the current date.
type Clock interface {
	Today() core.Date
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() core.Date

func (f ClockFunc) Today() core.Date { return f() }

// FixedClock always returns the same date.
func FixedClock(d core.Date) Clock {
	return ClockFunc(func() core.Date { return d })
}

// Calculator computes summaries. It carries nothing but its clock and is
// safe for concurrent use.
type Calculator struct {
	clock Clock
}

// NewCalculator returns a calculator reading today from clock; a nil clock
// reads the system date.
func NewCalculator(clock Clock) *Calculator {
	return &Calculator{clock: clock}
}

// Today resolves the date the calculator uses when options leave it empty.
func (c *Calculator) Today() core.Date {
	if c == nil || c.clock == nil {
		return core.Today()
	}
	return c.clock.Today()
}

// Resolve fills the option defaults and validates the advance mode.
func (c *Calculator) Resolve(opts Options) (Options, error) {
	if opts.AdvanceMode == "" {
		opts.AdvanceMode = DefaultAdvanceMode
	}
	if _, err := GetAdvanceStrategy(opts.AdvanceMode); err != nil {
		return opts, err
	}
	if opts.Today.IsZero() {
		opts.Today = c.Today()
	} else {
		opts.Today = core.DateOf(opts.Today.Time)
	}
	return opts, nil
}

// Compute derives the summary of contract from its payments. It is a pure
// function of (contract, payments, options, today).
func (c *Calculator) Compute(contract core.Contract, payments []core.Payment, opts Options) (ContractSummary, error) {
	opts, err := c.Resolve(opts)
	if err != nil {
		return ContractSummary{}, err
	}
	strategy, _ := GetAdvanceStrategy(opts.AdvanceMode)

	if err := contract.CheckDates(); err != nil {
		return ContractSummary{}, err
	}
	duration := core.InclusiveDays(contract.StartDate, contract.EndDate)

	totals, err := Aggregate(payments)
	if err != nil {
		return ContractSummary{}, err
	}

	total, err := contractTotal(contract, duration)
	if err != nil {
		return ContractSummary{}, err
	}
	advance, paid := strategy.Settle(contract, totals.Paid)
	remaining := core.MaxMoney(core.Money{}, total.Sub(paid))
	fullyPaid := remaining.Cents <= core.Epsilon.Cents

	var overdue, extension int
	if contract.Status.IsOpenFamily() && opts.Today.After(contract.EndDate) {
		extension = core.DaysPast(contract.EndDate, opts.Today)
		if !fullyPaid {
			overdue = extension
		}
	}

	return ContractSummary{
		ContractID:    contract.ID,
		DurationDays:  duration,
		Total:         total,
		Advance:       advance,
		TotalPaid:     paid,
		Remaining:     remaining,
		IsFullyPaid:   fullyPaid,
		Statut:        statutOf(fullyPaid, paid, overdue),
		OverdueDays:   overdue,
		ExtensionDays: extension,
		Payments:      payments,
		Breakdown:     totals,
		AsOf:          opts.Today,
		Mode:          opts.AdvanceMode,
	}, nil
}

// Compute uses a calculator on the system clock.
func Compute(contract core.Contract, payments []core.Payment, opts Options) (ContractSummary, error) {
	return NewCalculator(nil).Compute(contract, payments, opts)
}

// contractTotal: an explicit positive total wins, then rate x duration,
// otherwise the contract has no priceable basis yet and totals stay zero.
func contractTotal(c core.Contract, duration int) (core.Money, error) {
	if c.TotalAmount != nil && c.TotalAmount.IsPositive() {
		return *c.TotalAmount, nil
	}
	if c.DailyRate != nil {
		total, err := c.DailyRate.CheckedMul(duration)
		if err != nil {
			return core.Money{}, fmt.Errorf("contract %s: daily rate %s over %d days: %w", c.ID, c.DailyRate, duration, err)
		}
		return total, nil
	}
	return core.Money{}, nil
}

// Any positive payment keeps a contract out of impayé, even when late.
func statutOf(fullyPaid bool, paid core.Money, overdueDays int) Label {
	switch {
	case fullyPaid:
		return LabelPaye
	case paid.IsPositive() || overdueDays == 0:
		return LabelEnAttente
	default:
		return LabelImpaye
	}
}

// Derived converts the summary to the display fields persisted on contracts.
func (s ContractSummary) Derived(at time.Time) core.DerivedFields {
	return core.DerivedFields{
		DurationDays: s.DurationDays,
		Total:        s.Total,
		Remaining:    s.Remaining,
		Statut:       string(s.Statut),
		ComputedAt:   at,
	}
}
