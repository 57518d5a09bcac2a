// Package cli wires configuration, logging, storage and the contract
// service for cmd/locagest and cmd/locagest-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"locagest/internal/amqp"
	"locagest/internal/backend"
	"locagest/internal/config"
	"locagest/internal/export"
	"locagest/internal/log"
	"locagest/internal/services"
	gsheet "locagest/internal/sheets/google"
	"locagest/internal/summary"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
			lc.Level = lvl
		}
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App is the wired object graph shared by both binaries.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Backend *backend.Handle
	Service *services.ContractService
	// AMQP is nil when AMQP_URL is empty or the broker was unreachable.
	AMQP *amqp.Client
}

// Options adjusts what NewApp requires.
type Options struct {
	// RequireAMQP makes an unreachable broker fatal.
	RequireAMQP bool
	// Clock overrides the system date.
	Clock summary.Clock
}

// NewApp opens the configured store and builds the contract service with
// every optional collaborator that is configured.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (*App, error) {
	mode, err := summary.ParseAdvanceMode(cfg.AdvanceMode)
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.Open(ctx, bcfg, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Kind, err)
	}

	app := &App{Config: cfg, Logger: logger, Backend: res}

	calc := summary.NewCalculator(opts.Clock)
	svcOpts := []services.Option{
		services.WithAdvanceMode(mode),
		services.WithCache(summary.NewCache(calc, cfg.SummaryCacheSize, cfg.SummaryCacheTTL)),
		services.WithSnapshotSink(export.NewFileSink(cfg.ExportDir)),
	}

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		switch {
		case err == nil:
			app.AMQP = client
			svcOpts = append(svcOpts, services.WithInvalidationPublisher(client))
			logger.InfoContext(ctx, "AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		case opts.RequireAMQP:
			_ = res.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		default:
			logger.WarnContext(ctx, "AMQP unavailable, invalidations stay local", log.FieldError, err)
		}
	}

	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ReportSheet:        cfg.GoogleReportSheetName,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		})
		if err != nil {
			logger.WarnContext(ctx, "Google Sheets disabled", log.FieldError, err)
		} else {
			svcOpts = append(svcOpts, services.WithReportPublisher(client))
			logger.InfoContext(ctx, "Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		}
	}

	app.Service = services.NewContractService(res.Store, calc, svcOpts...)
	return app, nil
}

// Close releases the broker connection and the store.
func (a *App) Close() error {
	var errs []error
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	return errors.Join(errs...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownContext bounds cleanup after the main context is done.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// Fatal logs err and exits.
func Fatal(logger *log.Logger, msg string, err error) {
	if logger == nil {
		slog.Error(msg, "error", err)
	} else {
		logger.Error(msg, log.FieldError, err)
	}
	os.Exit(1)
}
