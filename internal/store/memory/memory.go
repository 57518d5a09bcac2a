// Package memory is the in-process Store used for development, the CLI's
// default backend and tests. A store opened with NewFromFiles writes every
// change back to its data directory, so one-shot CLI runs see each other's
// writes.
package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"locagest/internal/core"
	"locagest/internal/export"
	"locagest/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu        sync.Mutex
	order     []string
	contracts map[string]core.Contract
	payments  []core.Payment

	// dir is where the data set is written back; empty keeps it in memory.
	dir string
}

type state struct {
	order     []string
	contracts map[string]core.Contract
	payments  []core.Payment
}

func New(contracts []core.Contract, payments []core.Payment) *Store {
	s := &Store{}
	s.load(contracts, payments)
	return s
}

// NewFromFiles seeds the store from contracts.json and payments.json in
// base. Missing files yield an empty data set.
func NewFromFiles(base string) (*Store, error) {
	contracts, err := readSeed(filepath.Join(base, export.ContractsFile), export.DecodeContracts)
	if err != nil {
		return nil, err
	}
	payments, err := readSeed(filepath.Join(base, export.PaymentsFile), export.DecodePayments)
	if err != nil {
		return nil, err
	}
	slog.Info("Memory store seeded", "dir", base, "contracts", len(contracts), "payments", len(payments))
	s := New(contracts, payments)
	s.dir = base
	return s, nil
}

// commit writes the data set back when the store is file-backed. On failure
// the in-memory state is rolled back to prev. The
// caller holds mu.
func (s *Store) commit(prev state) error {
	if s.dir == "" {
		return nil
	}
	contracts := make([]core.Contract, 0, len(s.order))
	for _, id := range s.order {
		contracts = append(contracts, s.contracts[id])
	}
	if err := export.WriteDataSet(s.dir, contracts, s.payments); err != nil {
		s.order, s.contracts, s.payments = prev.order, prev.contracts, prev.payments
		return fmt.Errorf("write back data set: %w", err)
	}
	return nil
}

// saved copies the indexes so a failed commit can restore them. The caller
// holds mu.
func (s *Store) saved() state {
	if s.dir == "" {
		return state{}
	}
	contracts := make(map[string]core.Contract, len(s.contracts))
	for id, c := range s.contracts {
		contracts[id] = c
	}
	return state{
		order:     append([]string(nil), s.order...),
		contracts: contracts,
		payments:  append([]core.Payment(nil), s.payments...),
	}
}

func (s *Store) load(contracts []core.Contract, payments []core.Payment) {
	s.order = make([]string, 0, len(contracts))
	s.contracts = make(map[string]core.Contract, len(contracts))
	for _, c := range contracts {
		if _, dup := s.contracts[c.ID]; !dup {
			s.order = append(s.order, c.ID)
		}
		s.contracts[c.ID] = c
	}
	s.payments = append([]core.Payment(nil), payments...)
}

// GetAllContracts returns contracts in insertion order.
func (s *Store) GetAllContracts(_ context.Context) ([]core.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Contract, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneContract(s.contracts[id]))
	}
	return out, nil
}

func (s *Store) GetContract(_ context.Context, id string) (core.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return core.Contract{}, core.ContractNotFound(id)
	}
	return cloneContract(c), nil
}

// GetPaymentsForContract returns an empty slice for a known contract with
// no payments and NotFound for an unknown contract.
func (s *Store) GetPaymentsForContract(_ context.Context, contractID string) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[contractID]; !ok {
		return nil, core.ContractNotFound(contractID)
	}
	out := []core.Payment{}
	for _, p := range s.payments {
		if p.ContractID == contractID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) CreateContract(_ context.Context, c core.Contract) (core.Contract, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return core.Contract{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contracts[c.ID]; exists {
		return core.Contract{}, fmt.Errorf("contract %s already exists", c.ID)
	}
	prev := s.saved()
	c.Revision = 1
	s.contracts[c.ID] = cloneContract(c)
	s.order = append(s.order, c.ID)
	if err := s.commit(prev); err != nil {
		return core.Contract{}, err
	}
	return c, nil
}

// UpdateContract replaces the stored contract. PaymentsVersion is owned by
// the store and is not taken from c.
func (s *Store) UpdateContract(_ context.Context, c core.Contract) (core.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.contracts[c.ID]
	if !ok {
		return core.Contract{}, core.ContractNotFound(c.ID)
	}
	prev := s.saved()
	c.Revision = cur.Revision + 1
	c.PaymentsVersion = cur.PaymentsVersion
	s.contracts[c.ID] = cloneContract(c)
	if err := s.commit(prev); err != nil {
		return core.Contract{}, err
	}
	return cloneContract(c), nil
}

func (s *Store) RecordPayment(_ context.Context, p core.Payment) (core.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[p.ContractID]
	if !ok {
		return core.Payment{}, core.ContractNotFound(p.ContractID)
	}
	prev := s.saved()
	s.payments = append(s.payments, p)
	c.PaymentsVersion++
	s.contracts[c.ID] = c
	if err := s.commit(prev); err != nil {
		return core.Payment{}, err
	}
	return p, nil
}

func (s *Store) UpdateChequeStatus(_ context.Context, paymentID string, status core.ChequeDepositStatus, depositDate *core.Date) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.payments {
		p := &s.payments[i]
		if p.ID != paymentID {
			continue
		}
		if p.Method != core.MethodCheque {
			return core.Payment{}, fmt.Errorf("payment %s: %w", paymentID, core.ErrInvalidCheque)
		}
		prev := s.saved()
		p.CheckDepositStatus = status
		p.CheckDepositDate = depositDate
		if c, ok := s.contracts[p.ContractID]; ok {
			c.PaymentsVersion++
			s.contracts[c.ID] = c
		}
		updated := *p
		if err := s.commit(prev); err != nil {
			return core.Payment{}, err
		}
		return updated, nil
	}
	return core.Payment{}, core.PaymentNotFound(paymentID)
}

func (s *Store) ExportAll(_ context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := core.Snapshot{
		Contracts: make([]core.Contract, 0, len(s.order)),
		Payments:  append([]core.Payment(nil), s.payments...),
	}
	for _, id := range s.order {
		snap.Contracts = append(snap.Contracts, cloneContract(s.contracts[id]))
	}
	return snap, nil
}

func (s *Store) Import(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.saved()
	s.load(snap.Contracts, snap.Payments)
	return s.commit(prev)
}

func cloneContract(c core.Contract) core.Contract {
	if c.Cached != nil {
		d := *c.Cached
		c.Cached = &d
	}
	if c.DailyRate != nil {
		m := *c.DailyRate
		c.DailyRate = &m
	}
	if c.TotalAmount != nil {
		m := *c.TotalAmount
		c.TotalAmount = &m
	}
	return c
}

func readSeed[T any](path string, decode func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer f.Close()
	out, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return out, nil
}
