// Package storage is the SQLite-backed Store. Amounts are stored in cents and
// dates as YYYY-MM-DD text.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"locagest/internal/core"
	"locagest/internal/log"
	"locagest/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const contractColumns = `id, contract_number, customer_name, vehicle_plate, start_date, end_date,
	daily_rate_cents, total_amount_cents, advance_payment_cents, status, revision, payments_version,
	cached_duration_days, cached_total_cents, cached_remaining_cents, cached_statut, cached_computed_at`

const paymentColumns = `id, contract_id, amount_cents, method, payment_date, check_reference,
	check_name, check_deposit_date, check_direction, check_deposit_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (core.Contract, error) {
	var (
		c                    core.Contract
		start, end, status   string
		rate, total          sql.NullInt64
		advance              int64
		cDuration            sql.NullInt64
		cTotal, cRemaining   sql.NullInt64
		cStatut, cComputedAt sql.NullString
	)
	err := row.Scan(&c.ID, &c.ContractNumber, &c.CustomerName, &c.VehiclePlate, &start, &end,
		&rate, &total, &advance, &status, &c.Revision, &c.PaymentsVersion,
		&cDuration, &cTotal, &cRemaining, &cStatut, &cComputedAt)
	if err != nil {
		return c, err
	}
	if c.StartDate, err = parseDate(start); err != nil {
		return c, fmt.Errorf("contract %s start date: %w", c.ID, err)
	}
	if c.EndDate, err = parseDate(end); err != nil {
		return c, fmt.Errorf("contract %s end date: %w", c.ID, err)
	}
	c.DailyRate = moneyFromNull(rate)
	c.TotalAmount = moneyFromNull(total)
	c.AdvancePayment = core.Money{Cents: advance}
	c.Status = core.ContractStatus(status)

	if cDuration.Valid {
		d := &core.DerivedFields{
			DurationDays: int(cDuration.Int64),
			Total:        core.Money{Cents: cTotal.Int64},
			Remaining:    core.Money{Cents: cRemaining.Int64},
			Statut:       cStatut.String,
		}
		if cComputedAt.Valid && cComputedAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, cComputedAt.String); err == nil {
				d.ComputedAt = t
			}
		}
		c.Cached = d
	}
	return c, nil
}

func scanPayment(row rowScanner) (core.Payment, error) {
	var (
		p                   core.Payment
		amount              int64
		method, date        string
		depositDate         sql.NullString
		direction, depState string
	)
	err := row.Scan(&p.ID, &p.ContractID, &amount, &method, &date, &p.CheckReference,
		&p.CheckName, &depositDate, &direction, &depState)
	if err != nil {
		return p, err
	}
	p.Amount = core.Money{Cents: amount}
	p.Method = core.PaymentMethod(method)
	p.CheckDirection = core.ChequeDirection(direction)
	p.CheckDepositStatus = core.ChequeDepositStatus(depState)
	if p.PaymentDate, err = parseDate(date); err != nil {
		return p, fmt.Errorf("payment %s date: %w", p.ID, err)
	}
	if depositDate.Valid && depositDate.String != "" {
		d, err := core.ParseDate(depositDate.String)
		if err != nil {
			return p, fmt.Errorf("payment %s deposit date: %w", p.ID, err)
		}
		p.CheckDepositDate = &d
	}
	return p, nil
}

// GetAllContracts returns contracts in insertion order.
func (r *SQLiteRepository) GetAllContracts(ctx context.Context) ([]core.Contract, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+contractColumns+` FROM contracts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []core.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetContract(ctx context.Context, id string) (core.Contract, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Contract{}, core.ContractNotFound(id)
	}
	if err != nil {
		return core.Contract{}, fmt.Errorf("get contract %s: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetPaymentsForContract(ctx context.Context, contractID string) ([]core.Payment, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM contracts WHERE id = ?`, contractID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ContractNotFound(contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("check contract %s: %w", contractID, err)
	}
	return r.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE contract_id = ? ORDER BY seq`, contractID)
}

func (r *SQLiteRepository) queryPayments(ctx context.Context, query string, args ...any) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []core.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateContract(ctx context.Context, c core.Contract) (core.Contract, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := c.Validate(); err != nil {
		return core.Contract{}, err
	}
	c.Revision = 1
	c.PaymentsVersion = 0
	if err := insertContract(ctx, r.db, c); err != nil {
		return core.Contract{}, fmt.Errorf("create contract %s: %w", c.ID, err)
	}

	slog.InfoContext(ctx, "Contract saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldContractID, c.ID,
		log.FieldContractNumber, c.ContractNumber)
	return c, nil
}

// UpdateContract writes every contract field in one statement and bumps the
// revision. PaymentsVersion is left to the payment writes.
func (r *SQLiteRepository) UpdateContract(ctx context.Context, c core.Contract) (core.Contract, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Contract{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cd, ct, cr, cs, cc := cachedArgs(c.Cached)
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET
		contract_number = ?, customer_name = ?, vehicle_plate = ?, start_date = ?, end_date = ?,
		daily_rate_cents = ?, total_amount_cents = ?, advance_payment_cents = ?, status = ?,
		cached_duration_days = ?, cached_total_cents = ?, cached_remaining_cents = ?,
		cached_statut = ?, cached_computed_at = ?,
		revision = revision + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		c.ContractNumber, c.CustomerName, c.VehiclePlate, c.StartDate.String(), c.EndDate.String(),
		nullMoney(c.DailyRate), nullMoney(c.TotalAmount), c.AdvancePayment.Cents, string(c.Status),
		cd, ct, cr, cs, cc,
		c.ID)
	if err != nil {
		return core.Contract{}, fmt.Errorf("update contract %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Contract{}, core.ContractNotFound(c.ID)
	}

	updated, err := scanContract(tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, c.ID))
	if err != nil {
		return core.Contract{}, fmt.Errorf("reload contract %s: %w", c.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Contract{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (r *SQLiteRepository) RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Payment{}, fmt.Errorf("begin payment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := bumpPaymentsVersion(ctx, tx, p.ContractID); err != nil {
		return core.Payment{}, err
	}
	if err := insertPayment(ctx, tx, p); err != nil {
		return core.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Payment{}, fmt.Errorf("commit payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldPaymentID, p.ID,
		log.FieldContractID, p.ContractID,
		log.FieldAmountCents, p.Amount.Cents,
		"method", string(p.Method))
	return p, nil
}

func (r *SQLiteRepository) UpdateChequeStatus(ctx context.Context, paymentID string, status core.ChequeDepositStatus, depositDate *core.Date) (core.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Payment{}, fmt.Errorf("begin cheque update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, core.PaymentNotFound(paymentID)
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	if p.Method != core.MethodCheque {
		return core.Payment{}, fmt.Errorf("payment %s: %w", paymentID, core.ErrInvalidCheque)
	}

	var dep any
	if depositDate != nil {
		dep = depositDate.String()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE payments SET check_deposit_status = ?, check_deposit_date = ? WHERE id = ?`,
		string(status), dep, paymentID); err != nil {
		return core.Payment{}, fmt.Errorf("update payment %s: %w", paymentID, err)
	}
	if err := bumpPaymentsVersion(ctx, tx, p.ContractID); err != nil {
		return core.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Payment{}, fmt.Errorf("commit cheque update: %w", err)
	}

	p.CheckDepositStatus = status
	p.CheckDepositDate = depositDate
	return p, nil
}

func (r *SQLiteRepository) ExportAll(ctx context.Context) (core.Snapshot, error) {
	contracts, err := r.GetAllContracts(ctx)
	if err != nil {
		return core.Snapshot{}, err
	}
	payments, err := r.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY seq`)
	if err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot{Contracts: contracts, Payments: payments}, nil
}

// Import replaces the whole data set in one transaction.
func (r *SQLiteRepository) Import(ctx context.Context, s core.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM payments`); err != nil {
		return fmt.Errorf("clear payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contracts`); err != nil {
		return fmt.Errorf("clear contracts: %w", err)
	}
	for _, c := range s.Contracts {
		if err := insertContract(ctx, tx, c); err != nil {
			return fmt.Errorf("import contract %s: %w", c.ID, err)
		}
	}
	for _, p := range s.Payments {
		if err := insertPayment(ctx, tx, p); err != nil {
			return fmt.Errorf("import payment %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot imported into SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldSnapshotID, s.ID,
		"contracts", len(s.Contracts),
		"payments", len(s.Payments))
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertContract(ctx context.Context, db execer, c core.Contract) error {
	cd, ct, cr, cs, cc := cachedArgs(c.Cached)
	_, err := db.ExecContext(ctx, `INSERT INTO contracts (`+contractColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ContractNumber, c.CustomerName, c.VehiclePlate, c.StartDate.String(), c.EndDate.String(),
		nullMoney(c.DailyRate), nullMoney(c.TotalAmount), c.AdvancePayment.Cents, string(c.Status),
		max(c.Revision, 1), c.PaymentsVersion,
		cd, ct, cr, cs, cc)
	return err
}

func insertPayment(ctx context.Context, db execer, p core.Payment) error {
	var dep any
	if p.CheckDepositDate != nil {
		dep = p.CheckDepositDate.String()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ContractID, p.Amount.Cents, string(p.Method), p.PaymentDate.String(), p.CheckReference,
		p.CheckName, dep, string(p.CheckDirection), string(p.CheckDepositStatus))
	return err
}

func bumpPaymentsVersion(ctx context.Context, tx *sql.Tx, contractID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET payments_version = payments_version + 1,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`, contractID)
	if err != nil {
		return fmt.Errorf("bump payments version of %s: %w", contractID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ContractNotFound(contractID)
	}
	return nil
}

func cachedArgs(d *core.DerivedFields) (duration, total, remaining, statut, computedAt any) {
	if d == nil {
		return nil, nil, nil, nil, nil
	}
	var at any
	if !d.ComputedAt.IsZero() {
		at = d.ComputedAt.UTC().Format(time.RFC3339Nano)
	}
	return d.DurationDays, d.Total.Cents, d.Remaining.Cents, d.Statut, at
}

func nullMoney(m *core.Money) any {
	if m == nil {
		return nil
	}
	return m.Cents
}

func moneyFromNull(n sql.NullInt64) *core.Money {
	if !n.Valid {
		return nil
	}
	return &core.Money{Cents: n.Int64}
}

func parseDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}
