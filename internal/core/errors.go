package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrInvalidPayment   = errors.New("invalid payment")
	ErrNotFound         = errors.New("not found")
)

// InvalidDateRangeError is returned when a contract ends before it starts or
// has no dates at all.
type InvalidDateRangeError struct {
	ContractID string
	Start      Date
	End        Date
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("contract %s: invalid date range %q..%q", e.ContractID, e.Start.String(), e.End.String())
}

func (e *InvalidDateRangeError) Unwrap() error { return ErrInvalidDateRange }

// InvalidPaymentError is returned when a negative payment amount is met, or
// when adding the payment would overflow the contract's totals.
type InvalidPaymentError struct {
	PaymentID  string
	ContractID string
	Amount     Money
	Overflow   bool
}

func (e *InvalidPaymentError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("payment %s of contract %s: amount %s overflows the total paid", e.PaymentID, e.ContractID, e.Amount)
	}
	return fmt.Sprintf("payment %s of contract %s: negative amount %s", e.PaymentID, e.ContractID, e.Amount)
}

// Unwrap matches ErrInvalidPayment, and ErrAmountOverflow for overflows.
func (e *InvalidPaymentError) Unwrap() []error {
	if e.Overflow {
		return []error{ErrInvalidPayment, ErrAmountOverflow}
	}
	return []error{ErrInvalidPayment}
}

// NotFoundError is returned by stores when the target record does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func ContractNotFound(id string) error { return &NotFoundError{Kind: "contract", ID: id} }
func PaymentNotFound(id string) error  { return &NotFoundError{Kind: "payment", ID: id} }
