// Package store declares the persistence ports the engine and the services
// consume. Implementations live in internal/store/memory and
// internal/storage.
package store

import (
	"context"

	"locagest/internal/core"
)

// Ports for outbound adapters.
type (
	// ContractReader lists contracts and their payments.
	ContractReader interface {
		// GetAllContracts returns every contract in a stable order.
		GetAllContracts(ctx context.Context) ([]core.Contract, error)
		GetContract(ctx context.Context, id string) (core.Contract, error)
		GetPaymentsForContract(ctx context.Context, contractID string) ([]core.Payment, error)
	}

	// ContractWriter persists contract changes. UpdateContract returns a
	// *core.NotFoundError for an unknown id and bumps Revision on success.
	ContractWriter interface {
		CreateContract(ctx context.Context, c core.Contract) (core.Contract, error)
		UpdateContract(ctx context.Context, c core.Contract) (core.Contract, error)
	}

	// PaymentWriter records payments. Both operations bump the owning
	// contract's PaymentsVersion.
	PaymentWriter interface {
		RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error)
		UpdateChequeStatus(ctx context.Context, paymentID string, status core.ChequeDepositStatus, depositDate *core.Date) (core.Payment, error)
	}

	// Exporter dumps and reloads the full data set.
	Exporter interface {
		ExportAll(ctx context.Context) (core.Snapshot, error)
		// Import replaces every contract and payment with the snapshot's.
		Import(ctx context.Context, s core.Snapshot) error
	}

	// Store is everything the services need.
	Store interface {
		ContractReader
		ContractWriter
		PaymentWriter
		Exporter
	}
)

// MigrationStore is the subset of Store the migration runner uses.
type MigrationStore interface {
	GetAllContracts(ctx context.Context) ([]core.Contract, error)
	GetPaymentsForContract(ctx context.Context, contractID string) ([]core.Payment, error)
	UpdateContract(ctx context.Context, c core.Contract) (core.Contract, error)
	ExportAll(ctx context.Context) (core.Snapshot, error)
}

// FindContracts filters GetAllContracts with pred, preserving order.
func FindContracts(ctx context.Context, r ContractReader, pred func(core.Contract) bool) ([]core.Contract, error) {
	all, err := r.GetAllContracts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Contract, 0, len(all))
	for _, c := range all {
		if pred == nil || pred(c) {
			out = append(out, c)
		}
	}
	return out, nil
}
