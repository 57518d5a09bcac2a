// Package backend opens the contract store selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"locagest/internal/config"
	"locagest/internal/log"
	"locagest/internal/storage"
	"locagest/internal/store"
	"locagest/internal/store/memory"
)

type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
)

// Config selects and locates a store.
type Config struct {
	Kind Kind
	// SQLitePath is the database file of the sqlite kind.
	SQLitePath string
	// DataDir holds contracts.json and payments.json for the memory kind.
	// Missing files mean an empty store.
	DataDir string
}

// FromAppConfig picks the store settings out of the process config.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("app config is nil")
	}
	c := Config{
		Kind:       Kind(cfg.DataBackend),
		SQLitePath: cfg.SQLiteDBPath,
		DataDir:    cfg.DataDir,
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if _, ok := openers[c.Kind]; !ok {
		return fmt.Errorf("unknown data backend %q", c.Kind)
	}
	if c.Kind == KindSQLite && c.SQLitePath == "" {
		return errors.New("sqlite backend needs a database path")
	}
	return nil
}

// Handle is an opened store. Close releases whatever the kind holds open.
type Handle struct {
	Store   store.Store
	closeFn func() error
}

func (h *Handle) Close() error {
	if h == nil || h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

type opener func(ctx context.Context, cfg Config, logger *slog.Logger) (*Handle, error)

var openers = map[Kind]opener{
	KindMemory: openMemory,
	KindSQLite: openSQLite,
}

// Open validates cfg and opens its store, logging how many contracts it
// holds.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, err := openers[cfg.Kind](ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	contracts, err := h.Store.GetAllContracts(ctx)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("count contracts: %w", err)
	}
	logger.InfoContext(ctx, "Contract store ready",
		log.FieldComponent, log.ComponentBackend,
		log.FieldBackend, string(cfg.Kind),
		"contracts", len(contracts))
	return h, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*Handle, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
	}
	if v, dirty, err := storage.SchemaVersion(cfg.SQLitePath); err == nil {
		logger.DebugContext(ctx, "SQLite schema migrated", "db_path", cfg.SQLitePath, "version", v, "dirty", dirty)
	}
	return &Handle{Store: repo, closeFn: repo.Close}, nil
}

func openMemory(_ context.Context, cfg Config, _ *slog.Logger) (*Handle, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = "data"
	}
	st, err := memory.NewFromFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("seed memory store from %s: %w", dir, err)
	}
	return &Handle{Store: st}, nil
}
