package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldOperation      = "operation"
	FieldError          = "error"
	FieldDuration       = "duration_ms"
	FieldContractID     = "contract_id"
	FieldContractNumber = "contract_number"
	FieldPaymentID      = "payment_id"
	FieldAmountCents    = "amount_cents"
	FieldStatut         = "statut"
	FieldAdvanceMode    = "advance_mode"
	FieldAsOf           = "as_of"
	FieldRunID          = "run_id"
	FieldDryRun         = "dry_run"
	FieldSnapshotID     = "snapshot_id"
	FieldBackend        = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentCLI       = "cli"
	ComponentMigration = "migration"
	ComponentContracts = "contracts"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
	ComponentReport    = "report"
)

// Operations defines standard operation names
const (
	OpUpdate   = "update"
	OpCompute  = "compute"
	OpMigrate  = "migrate"
	OpSnapshot = "snapshot"
	OpRestore  = "restore"
	OpPay      = "record_payment"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithContract adds contract identification fields
func (f LogFields) WithContract(id, number string) LogFields {
	f[FieldContractID] = id
	if number != "" {
		f[FieldContractNumber] = number
	}
	return f
}

// WithPayment adds payment fields
func (f LogFields) WithPayment(id string, amountCents int64) LogFields {
	f[FieldPaymentID] = id
	f[FieldAmountCents] = amountCents
	return f
}

// WithRun adds migration run fields
func (f LogFields) WithRun(runID string, dryRun bool) LogFields {
	f[FieldRunID] = runID
	f[FieldDryRun] = dryRun
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
