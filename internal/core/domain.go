package core

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusDraft     ContractStatus = "draft"
	StatusSent      ContractStatus = "sent"
	StatusSigned    ContractStatus = "signed"
	StatusOuvert    ContractStatus = "ouvert"
	StatusFerme     ContractStatus = "ferme"
	StatusCompleted ContractStatus = "completed"
	StatusCancelled ContractStatus = "cancelled"
)

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodCheque   PaymentMethod = "cheque"
)

const (
	ChequeReceived ChequeDirection = "received"
	ChequeSent     ChequeDirection = "sent"

	ChequeDeposited    ChequeDepositStatus = "deposited"
	ChequeNotDeposited ChequeDepositStatus = "not-deposited"
)

type (
	ContractStatus      string
	PaymentMethod       string
	ChequeDirection     string
	ChequeDepositStatus string

	// Contract is a rental contract as held by the store. Cached holds the
	// display fields last written by a migration run; they are never
	// authoritative.
	Contract struct {
		ID             string
		ContractNumber string
		CustomerName   string
		VehiclePlate   string
		StartDate      Date
		EndDate        Date
		DailyRate      *Money // nil when the total was entered directly
		TotalAmount    *Money
		AdvancePayment Money
		Status         ContractStatus

		// Revision is bumped by the store on every contract write.
		Revision int64
		// PaymentsVersion is bumped by the store whenever one of the
		// contract's payments is recorded or changes.
		PaymentsVersion int64

		Cached *DerivedFields
	}

	// DerivedFields are the display caches persisted on a contract.
	DerivedFields struct {
		DurationDays int
		Total        Money
		Remaining    Money
		Statut       string
		ComputedAt   time.Time
	}

	Payment struct {
		ID          string
		ContractID  string
		Amount      Money
		Method      PaymentMethod
		PaymentDate Date

		// Cheque-only fields
		CheckReference     string
		CheckName          string
		CheckDepositDate   *Date
		CheckDirection     ChequeDirection
		CheckDepositStatus ChequeDepositStatus
	}

	// Snapshot is a full export of the data set taken before a migration
	// writes anything.
	Snapshot struct {
		ID        string
		TakenAt   time.Time
		Contracts []Contract
		Payments  []Payment
	}
)

var (
	ErrEmptyContractID     = errors.New("empty contract id")
	ErrEmptyContractNumber = errors.New("empty contract number")
	ErrInvalidStatus       = errors.New("invalid contract status")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrInvalidCheque       = errors.New("invalid cheque details")
)

// IsOpenFamily reports whether the contract is still running
// (draft, sent, signed, ouvert).
func (s ContractStatus) IsOpenFamily() bool {
	switch s {
	case StatusDraft, StatusSent, StatusSigned, StatusOuvert:
		return true
	}
	return false
}

// IsClosedFamily reports whether the contract is closed (ferme, completed).
func (s ContractStatus) IsClosedFamily() bool {
	return s == StatusFerme || s == StatusCompleted
}

func (s ContractStatus) IsValid() bool {
	return s.IsOpenFamily() || s.IsClosedFamily() || s == StatusCancelled
}

// ParseContractStatus normalizes user input. "fermé" and "closed" map to ferme.
func ParseContractStatus(s string) (ContractStatus, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "fermé", "closed":
		return StatusFerme, nil
	case "open":
		return StatusOuvert, nil
	}
	st := ContractStatus(v)
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCheque:
		return true
	}
	return false
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyContractID
	}
	if strings.TrimSpace(c.ContractNumber) == "" {
		return ErrEmptyContractNumber
	}
	if !c.Status.IsValid() {
		return ErrInvalidStatus
	}
	if err := c.CheckDates(); err != nil {
		return err
	}
	if c.DailyRate != nil && c.DailyRate.Cents < 0 {
		return ErrInvalidAmount
	}
	if c.TotalAmount != nil && c.TotalAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	if c.AdvancePayment.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CheckDates enforces EndDate >= StartDate on date-only values.
func (c Contract) CheckDates() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() || c.EndDate.Before(c.StartDate) {
		return &InvalidDateRangeError{ContractID: c.ID, Start: c.StartDate, End: c.EndDate}
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.ContractID) == "" {
		return ErrEmptyContractID
	}
	if p.Amount.Cents < 0 {
		return &InvalidPaymentError{PaymentID: p.ID, ContractID: p.ContractID, Amount: p.Amount}
	}
	if !p.Method.IsValid() {
		return ErrInvalidMethod
	}
	if err := p.PaymentDate.Validate(); err != nil {
		return err
	}
	if p.Method == MethodCheque {
		switch p.CheckDirection {
		case "", ChequeReceived, ChequeSent:
		default:
			return ErrInvalidCheque
		}
		switch p.CheckDepositStatus {
		case "", ChequeDeposited, ChequeNotDeposited:
		default:
			return ErrInvalidCheque
		}
	}
	return nil
}

// IsPendingCheque reports a received cheque that has not been deposited yet.
func (p Payment) IsPendingCheque() bool {
	if p.Method != MethodCheque {
		return false
	}
	dir := p.CheckDirection
	if dir == "" {
		dir = ChequeReceived
	}
	return dir == ChequeReceived && p.CheckDepositStatus != ChequeDeposited
}
