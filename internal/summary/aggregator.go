// Package summary derives the financial view of a rental contract.
//
// Everything that shows a duration, an amount due, a payment status or an
// overdue counter for a contract goes through Compute, so two screens can
// never disagree on the same contract.
package summary

import "locagest/internal/core"

// Totals is the fold of one contract's payments.
type Totals struct {
	Paid     core.Money
	ByMethod map[core.PaymentMethod]core.Money
	Count    int

	// PendingCheques sums received cheques not yet deposited; they count
	// as paid but are not in the bank yet.
	PendingCheques      core.Money
	PendingChequesCount int
}

// Aggregate folds payments in a single pass. Order is irrelevant. A negative
// amount, or a sum that does not fit in int64 cents, is an
// *core.InvalidPaymentError; totals are never negative.
func Aggregate(payments []core.Payment) (Totals, error) {
	t := Totals{ByMethod: make(map[core.PaymentMethod]core.Money, 3)}
	for _, p := range payments {
		if p.Amount.Cents < 0 {
			return Totals{}, &core.InvalidPaymentError{PaymentID: p.ID, ContractID: p.ContractID, Amount: p.Amount}
		}
		paid, err := t.Paid.CheckedAdd(p.Amount)
		if err != nil {
			return Totals{}, &core.InvalidPaymentError{PaymentID: p.ID, ContractID: p.ContractID, Amount: p.Amount, Overflow: true}
		}
		// Partial sums are bounded by Paid, so they cannot overflow.
		t.Paid = paid
		t.ByMethod[p.Method] = t.ByMethod[p.Method].Add(p.Amount)
		t.Count++
		if p.IsPendingCheque() {
			t.PendingCheques = t.PendingCheques.Add(p.Amount)
			t.PendingChequesCount++
		}
	}
	return t, nil
}

// TotalPaid is the sum of all payment amounts.
func TotalPaid(payments []core.Payment) (core.Money, error) {
	t, err := Aggregate(payments)
	if err != nil {
		return core.Money{}, err
	}
	return t.Paid, nil
}

// ByMethod sums amounts per payment method, for treasury breakdowns.
func ByMethod(payments []core.Payment) (map[core.PaymentMethod]core.Money, error) {
	t, err := Aggregate(payments)
	if err != nil {
		return nil, err
	}
	return t.ByMethod, nil
}
