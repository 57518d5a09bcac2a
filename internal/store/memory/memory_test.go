package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"locagest/internal/core"
	"locagest/internal/store"
)

func seedContract(id string) core.Contract {
	total := core.Money{Cents: 100000}
	return core.Contract{
		ID:             id,
		ContractNumber: "N-" + id,
		StartDate:      core.NewDate(2024, 1, 1),
		EndDate:        core.NewDate(2024, 1, 5),
		TotalAmount:    &total,
		Status:         core.StatusOuvert,
	}
}

func TestStoreContractsKeepInsertionOrder(t *testing.T) {
	s := New([]core.Contract{seedContract("b"), seedContract("a"), seedContract("c")}, nil)
	got, err := s.GetAllContracts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestStoreUpdateContract(t *testing.T) {
	ctx := context.Background()
	s := New([]core.Contract{seedContract("c1")}, nil)

	c, _ := s.GetContract(ctx, "c1")
	c.Cached = &core.DerivedFields{DurationDays: 5, Statut: "impayé"}
	updated, err := s.UpdateContract(ctx, c)
	if err != nil {
		t.Fatalf("UpdateContract() error = %v", err)
	}
	if updated.Revision != c.Revision+1 {
		t.Errorf("Revision = %d, want %d", updated.Revision, c.Revision+1)
	}

	// Mutating the returned value must not leak into the store.
	updated.Cached.Statut = "payé"
	again, _ := s.GetContract(ctx, "c1")
	if again.Cached.Statut != "impayé" {
		t.Errorf("store state mutated through returned value: %q", again.Cached.Statut)
	}

	_, err = s.UpdateContract(ctx, seedContract("ghost"))
	var nf *core.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "ghost" {
		t.Errorf("expected NotFoundError for ghost, got %v", err)
	}
}

func TestStoreRecordPaymentBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := New([]core.Contract{seedContract("c1"), seedContract("c2")}, nil)

	p, err := s.RecordPayment(ctx, core.Payment{
		ContractID:  "c1",
		Amount:      core.Money{Cents: 5000},
		Method:      core.MethodCheque,
		PaymentDate: core.NewDate(2024, 1, 2),
	})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if p.ID == "" {
		t.Error("expected a generated payment id")
	}

	c, _ := s.GetContract(ctx, "c1")
	if c.PaymentsVersion != 1 {
		t.Errorf("PaymentsVersion = %d, want 1", c.PaymentsVersion)
	}

	deposit := core.NewDate(2024, 1, 3)
	if _, err := s.UpdateChequeStatus(ctx, p.ID, core.ChequeDeposited, &deposit); err != nil {
		t.Fatalf("UpdateChequeStatus() error = %v", err)
	}
	c, _ = s.GetContract(ctx, "c1")
	if c.PaymentsVersion != 2 {
		t.Errorf("PaymentsVersion = %d, want 2", c.PaymentsVersion)
	}

	payments, _ := s.GetPaymentsForContract(ctx, "c1")
	if len(payments) != 1 || payments[0].CheckDepositStatus != core.ChequeDeposited {
		t.Errorf("unexpected payments: %+v", payments)
	}
	empty, err := s.GetPaymentsForContract(ctx, "c2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice for c2, got %v, %v", empty, err)
	}

	if _, err := s.RecordPayment(ctx, core.Payment{ContractID: "nope", Method: core.MethodCash, PaymentDate: deposit}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateChequeStatus(ctx, "missing", core.ChequeDeposited, nil); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreExportImport(t *testing.T) {
	ctx := context.Background()
	s := New([]core.Contract{seedContract("c1")}, []core.Payment{{ID: "p1", ContractID: "c1", Method: core.MethodCash}})

	snap, err := s.ExportAll(ctx)
	if err != nil || len(snap.Contracts) != 1 || len(snap.Payments) != 1 {
		t.Fatalf("ExportAll() = %+v, %v", snap, err)
	}

	if _, err := s.CreateContract(ctx, seedContract("c2")); err != nil {
		t.Fatal(err)
	}
	if err := s.Import(ctx, snap); err != nil {
		t.Fatal(err)
	}
	all, _ := s.GetAllContracts(ctx)
	if len(all) != 1 || all[0].ID != "c1" {
		t.Errorf("Import did not restore the snapshot: %+v", all)
	}
}

func TestFindContracts(t *testing.T) {
	closed := seedContract("c2")
	closed.Status = core.StatusFerme
	s := New([]core.Contract{seedContract("c1"), closed}, nil)

	got, err := store.FindContracts(context.Background(), s, func(c core.Contract) bool {
		return c.Status.IsClosedFamily()
	})
	if err != nil || len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("FindContracts() = %+v, %v", got, err)
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	// No files -> empty store
	s, err := NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if all, _ := s.GetAllContracts(context.Background()); len(all) != 0 {
		t.Fatalf("expected empty store, got %d contracts", len(all))
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("contracts.json", `[
		{"id":"c1","contract_number":"CTR-1","start_date":"2024-01-01","end_date":"2024-01-03","daily_rate":"300","status":"ouvert"}
	]`)
	mustWrite("payments.json", `[
		{"id":"p1","contract_id":"c1","amount":"150,50","method":"cash","payment_date":"2024-01-01"}
	]`)

	s, err = NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.GetContract(context.Background(), "c1")
	if err != nil || c.DailyRate == nil || c.DailyRate.Cents != 30000 {
		t.Fatalf("unexpected contract: %+v, %v", c, err)
	}
	payments, _ := s.GetPaymentsForContract(context.Background(), "c1")
	if len(payments) != 1 || payments[0].Amount.Cents != 15050 {
		t.Fatalf("unexpected payments: %+v", payments)
	}

	mustWrite("payments.json", `not json`)
	if _, err := NewFromFiles(dir); err == nil {
		t.Error("expected error for malformed seed")
	}
}

func TestFileBackedStoreWritesBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.CreateContract(ctx, seedContract("c1")); err != nil {
		t.Fatalf("CreateContract() error = %v", err)
	}
	cheque, err := first.RecordPayment(ctx, core.Payment{
		ContractID:  "c1",
		Amount:      core.Money{Cents: 25000},
		Method:      core.MethodCheque,
		PaymentDate: core.NewDate(2024, 1, 2),
	})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if _, err := first.UpdateChequeStatus(ctx, cheque.ID, core.ChequeDeposited, nil); err != nil {
		t.Fatalf("UpdateChequeStatus() error = %v", err)
	}

	// A second process reading the same directory sees every write.
	second, err := NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := second.GetContract(ctx, "c1")
	if err != nil {
		t.Fatalf("GetContract() error = %v", err)
	}
	if c.PaymentsVersion != 2 {
		t.Errorf("PaymentsVersion = %d, want 2", c.PaymentsVersion)
	}
	payments, err := second.GetPaymentsForContract(ctx, "c1")
	if err != nil || len(payments) != 1 {
		t.Fatalf("GetPaymentsForContract() = %+v, %v", payments, err)
	}
	if payments[0].CheckDepositStatus != core.ChequeDeposited || payments[0].Amount.Cents != 25000 {
		t.Errorf("unexpected payment after reload: %+v", payments[0])
	}
}

func TestFailedWriteBackRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New([]core.Contract{seedContract("c1")}, nil)

	// A regular file where the data directory should be makes every write
	// back fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s.dir = blocker

	_, err := s.RecordPayment(ctx, core.Payment{
		ContractID:  "c1",
		Amount:      core.Money{Cents: 100},
		Method:      core.MethodCash,
		PaymentDate: core.NewDate(2024, 1, 2),
	})
	if err == nil {
		t.Fatal("expected write-back error")
	}
	if payments, _ := s.GetPaymentsForContract(ctx, "c1"); len(payments) != 0 {
		t.Errorf("payment kept after failed write back: %+v", payments)
	}
	if c, _ := s.GetContract(ctx, "c1"); c.PaymentsVersion != 0 {
		t.Errorf("PaymentsVersion = %d after failed write back, want 0", c.PaymentsVersion)
	}
}

func TestInMemoryStoreWritesNoFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(nil, nil)
	if _, err := s.CreateContract(context.Background(), seedContract("c1")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		t.Errorf("unexpected files %v, %v", entries, err)
	}
}
