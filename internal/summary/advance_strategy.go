package summary

import (
	"fmt"
	"strings"

	"locagest/internal/core"
)

// AdvanceMode selects where the "already paid at inception" figure comes
// from. It is a closed set and is never inferred from the data.
type AdvanceMode string

const (
	// AdvanceFromField reads Contract.AdvancePayment; itemized payments
	// supersede it once they exceed it.
	AdvanceFromField AdvanceMode = "field"
	// AdvanceFromPayments uses the sum of itemized payments.
	AdvanceFromPayments AdvanceMode = "payments"
)

// DefaultAdvanceMode is used when a caller leaves the mode empty.
const DefaultAdvanceMode = AdvanceFromField

func (m AdvanceMode) String() string { return string(m) }

// ParseAdvanceMode accepts "field" or "payments", case-insensitively.
// The empty string yields the default mode.
func ParseAdvanceMode(s string) (AdvanceMode, error) {
	v := AdvanceMode(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return DefaultAdvanceMode, nil
	}
	if _, ok := advanceStrategies[v]; !ok {
		return "", fmt.Errorf("unknown advance mode: %q", s)
	}
	return v, nil
}

// AdvanceStrategy encapsulates, for one mode, how the advance and the total
// paid are obtained from the contract and its itemized payments.
type AdvanceStrategy interface {
	// Settle returns (advance, totalPaid).
	Settle(c core.Contract, itemized core.Money) (core.Money, core.Money)
}

// FieldStrategy takes the advance recorded on the contract. The contract
// advance predates itemized tracking, so the two are never added: the
// larger one wins.
type FieldStrategy struct{}

func (FieldStrategy) Settle(c core.Contract, itemized core.Money) (core.Money, core.Money) {
	advance := c.AdvancePayment
	return advance, core.MaxMoney(advance, itemized)
}

// PaymentsStrategy treats the itemized payments as the advance; both figures
// are the same number.
type PaymentsStrategy struct{}

func (PaymentsStrategy) Settle(_ core.Contract, itemized core.Money) (core.Money, core.Money) {
	return itemized, itemized
}

var advanceStrategies = map[AdvanceMode]AdvanceStrategy{
	AdvanceFromField:    FieldStrategy{},
	AdvanceFromPayments: PaymentsStrategy{},
}

// GetAdvanceStrategy returns the strategy for a mode. An empty mode resolves
// to the default.
func GetAdvanceStrategy(mode AdvanceMode) (AdvanceStrategy, error) {
	if mode == "" {
		mode = DefaultAdvanceMode
	}
	s, ok := advanceStrategies[mode]
	if !ok {
		return nil, fmt.Errorf("unknown advance mode: %q", mode)
	}
	return s, nil
}
