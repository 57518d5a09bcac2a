// Package export serializes contracts and payments to JSON, for seed files
// and for the pre-migration snapshots.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"locagest/internal/core"
)

// ContractRecord is the JSON shape of a contract.
type ContractRecord struct {
	ID              string        `json:"id"`
	ContractNumber  string        `json:"contract_number"`
	CustomerName    string        `json:"customer_name,omitempty"`
	VehiclePlate    string        `json:"vehicle_plate,omitempty"`
	StartDate       string        `json:"start_date"`
	EndDate         string        `json:"end_date"`
	DailyRate       *string       `json:"daily_rate,omitempty"`
	TotalAmount     *string       `json:"total_amount,omitempty"`
	AdvancePayment  string        `json:"advance_payment,omitempty"`
	Status          string        `json:"status"`
	Revision        int64         `json:"revision,omitempty"`
	PaymentsVersion int64         `json:"payments_version,omitempty"`
	Cached          *CachedRecord `json:"cached,omitempty"`
}

type CachedRecord struct {
	DurationDays int       `json:"duration_days"`
	Total        string    `json:"total"`
	Remaining    string    `json:"remaining"`
	Statut       string    `json:"statut"`
	ComputedAt   time.Time `json:"computed_at"`
}

// PaymentRecord is the JSON shape of a payment.
type PaymentRecord struct {
	ID                 string  `json:"id"`
	ContractID         string  `json:"contract_id"`
	Amount             string  `json:"amount"`
	Method             string  `json:"method"`
	PaymentDate        string  `json:"payment_date"`
	CheckReference     string  `json:"check_reference,omitempty"`
	CheckName          string  `json:"check_name,omitempty"`
	CheckDepositDate   *string `json:"check_deposit_date,omitempty"`
	CheckDirection     string  `json:"check_direction,omitempty"`
	CheckDepositStatus string  `json:"check_deposit_status,omitempty"`
}

// SnapshotRecord is the JSON shape of a snapshot file.
type SnapshotRecord struct {
	ID        string           `json:"id"`
	TakenAt   time.Time        `json:"taken_at"`
	Contracts []ContractRecord `json:"contracts"`
	Payments  []PaymentRecord  `json:"payments"`
}

func FromContract(c core.Contract) ContractRecord {
	r := ContractRecord{
		ID:              c.ID,
		ContractNumber:  c.ContractNumber,
		CustomerName:    c.CustomerName,
		VehiclePlate:    c.VehiclePlate,
		StartDate:       c.StartDate.String(),
		EndDate:         c.EndDate.String(),
		DailyRate:       moneyPtr(c.DailyRate),
		TotalAmount:     moneyPtr(c.TotalAmount),
		AdvancePayment:  c.AdvancePayment.String(),
		Status:          string(c.Status),
		Revision:        c.Revision,
		PaymentsVersion: c.PaymentsVersion,
	}
	if c.Cached != nil {
		r.Cached = &CachedRecord{
			DurationDays: c.Cached.DurationDays,
			Total:        c.Cached.Total.String(),
			Remaining:    c.Cached.Remaining.String(),
			Statut:       c.Cached.Statut,
			ComputedAt:   c.Cached.ComputedAt,
		}
	}
	return r
}

// ToContract converts a record. Dates are parsed but not range-checked; the
// calculator reports bad ranges per contract.
func (r ContractRecord) ToContract() (core.Contract, error) {
	c := core.Contract{
		ID:              r.ID,
		ContractNumber:  r.ContractNumber,
		CustomerName:    r.CustomerName,
		VehiclePlate:    r.VehiclePlate,
		Status:          core.ContractStatus(r.Status),
		Revision:        r.Revision,
		PaymentsVersion: r.PaymentsVersion,
	}
	var err error
	if c.StartDate, err = optionalDate(r.StartDate); err != nil {
		return c, fmt.Errorf("contract %s start date: %w", r.ID, err)
	}
	if c.EndDate, err = optionalDate(r.EndDate); err != nil {
		return c, fmt.Errorf("contract %s end date: %w", r.ID, err)
	}
	if c.DailyRate, err = parseMoneyPtr(r.DailyRate); err != nil {
		return c, fmt.Errorf("contract %s daily rate: %w", r.ID, err)
	}
	if c.TotalAmount, err = parseMoneyPtr(r.TotalAmount); err != nil {
		return c, fmt.Errorf("contract %s total amount: %w", r.ID, err)
	}
	if r.AdvancePayment != "" {
		if c.AdvancePayment, err = parseSigned(r.AdvancePayment); err != nil {
			return c, fmt.Errorf("contract %s advance: %w", r.ID, err)
		}
	}
	if r.Cached != nil {
		total, err := parseSigned(r.Cached.Total)
		if err != nil {
			return c, fmt.Errorf("contract %s cached total: %w", r.ID, err)
		}
		remaining, err := parseSigned(r.Cached.Remaining)
		if err != nil {
			return c, fmt.Errorf("contract %s cached remaining: %w", r.ID, err)
		}
		c.Cached = &core.DerivedFields{
			DurationDays: r.Cached.DurationDays,
			Total:        total,
			Remaining:    remaining,
			Statut:       r.Cached.Statut,
			ComputedAt:   r.Cached.ComputedAt,
		}
	}
	return c, nil
}

func FromPayment(p core.Payment) PaymentRecord {
	r := PaymentRecord{
		ID:                 p.ID,
		ContractID:         p.ContractID,
		Amount:             p.Amount.String(),
		Method:             string(p.Method),
		PaymentDate:        p.PaymentDate.String(),
		CheckReference:     p.CheckReference,
		CheckName:          p.CheckName,
		CheckDirection:     string(p.CheckDirection),
		CheckDepositStatus: string(p.CheckDepositStatus),
	}
	if p.CheckDepositDate != nil {
		s := p.CheckDepositDate.String()
		r.CheckDepositDate = &s
	}
	return r
}

// ToPayment converts a record. Negative amounts are kept so the aggregator
// can report them against the owning contract.
func (r PaymentRecord) ToPayment() (core.Payment, error) {
	p := core.Payment{
		ID:                 r.ID,
		ContractID:         r.ContractID,
		Method:             core.PaymentMethod(r.Method),
		CheckReference:     r.CheckReference,
		CheckName:          r.CheckName,
		CheckDirection:     core.ChequeDirection(r.CheckDirection),
		CheckDepositStatus: core.ChequeDepositStatus(r.CheckDepositStatus),
	}
	var err error
	if p.Amount, err = parseSigned(r.Amount); err != nil {
		return p, fmt.Errorf("payment %s amount: %w", r.ID, err)
	}
	if p.PaymentDate, err = optionalDate(r.PaymentDate); err != nil {
		return p, fmt.Errorf("payment %s date: %w", r.ID, err)
	}
	if r.CheckDepositDate != nil && *r.CheckDepositDate != "" {
		d, err := core.ParseDate(*r.CheckDepositDate)
		if err != nil {
			return p, fmt.Errorf("payment %s deposit date: %w", r.ID, err)
		}
		p.CheckDepositDate = &d
	}
	return p, nil
}

func FromSnapshot(s core.Snapshot) SnapshotRecord {
	r := SnapshotRecord{
		ID:        s.ID,
		TakenAt:   s.TakenAt,
		Contracts: make([]ContractRecord, 0, len(s.Contracts)),
		Payments:  make([]PaymentRecord, 0, len(s.Payments)),
	}
	for _, c := range s.Contracts {
		r.Contracts = append(r.Contracts, FromContract(c))
	}
	for _, p := range s.Payments {
		r.Payments = append(r.Payments, FromPayment(p))
	}
	return r
}

func (r SnapshotRecord) ToSnapshot() (core.Snapshot, error) {
	s := core.Snapshot{ID: r.ID, TakenAt: r.TakenAt}
	contracts, err := ToContracts(r.Contracts)
	if err != nil {
		return s, err
	}
	payments, err := ToPayments(r.Payments)
	if err != nil {
		return s, err
	}
	s.Contracts, s.Payments = contracts, payments
	return s, nil
}

func ToContracts(records []ContractRecord) ([]core.Contract, error) {
	out := make([]core.Contract, 0, len(records))
	for _, r := range records {
		c, err := r.ToContract()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func ToPayments(records []PaymentRecord) ([]core.Payment, error) {
	out := make([]core.Payment, 0, len(records))
	for _, r := range records {
		p, err := r.ToPayment()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DecodeContracts reads a JSON array of contract records.
func DecodeContracts(r io.Reader) ([]core.Contract, error) {
	var records []ContractRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode contracts: %w", err)
	}
	return ToContracts(records)
}

// DecodePayments reads a JSON array of payment records.
func DecodePayments(r io.Reader) ([]core.Payment, error) {
	var records []PaymentRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return ToPayments(records)
}

func moneyPtr(m *core.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}

func parseMoneyPtr(s *string) (*core.Money, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	m, err := parseSigned(*s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// parseSigned accepts comma decimals and negative values.
func parseSigned(s string) (core.Money, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}, nil
}

func optionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}
