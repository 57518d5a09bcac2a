package export

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"locagest/internal/core"
)

// FileSink writes snapshots as gzip-compressed JSON files in a directory.
type FileSink struct {
	dir string
	now func() time.Time
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir, now: time.Now}
}

// FileName is snapshot-<timestamp>-<id>.json.gz.
func FileName(s core.Snapshot) string {
	return fmt.Sprintf("snapshot-%s-%s.json.gz", s.TakenAt.UTC().Format("20060102T150405Z"), s.ID)
}

// Save writes s and returns the file path. The file only appears under its
// final name once fully written.
func (f *FileSink) Save(ctx context.Context, s core.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.TakenAt.IsZero() {
		s.TakenAt = f.now()
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(f.dir, FileName(s))
	tmp, err := os.CreateTemp(f.dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	gz.Name = filepath.Base(path)
	if err := json.NewEncoder(gz).Encode(FromSnapshot(s)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename snapshot file: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot written",
		"snapshot_id", s.ID,
		"path", path,
		"contracts", len(s.Contracts),
		"payments", len(s.Payments))
	return path, nil
}

// ReadSnapshot loads a file written by FileSink.
func ReadSnapshot(path string) (core.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	defer gz.Close()

	var r SnapshotRecord
	if err := json.NewDecoder(gz).Decode(&r); err != nil {
		return core.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return r.ToSnapshot()
}

// Data set file names read by the memory store and written back by it.
const (
	ContractsFile = "contracts.json"
	PaymentsFile  = "payments.json"
)

// WriteDataSet replaces contracts.json and payments.json in dir. Each file
// is written to a temporary name and renamed, so a reader never sees a
// half-written file.
func WriteDataSet(dir string, contracts []core.Contract, payments []core.Payment) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	crecs := make([]ContractRecord, len(contracts))
	for i, c := range contracts {
		crecs[i] = FromContract(c)
	}
	precs := make([]PaymentRecord, len(payments))
	for i, p := range payments {
		precs[i] = FromPayment(p)
	}
	if err := writeJSONFile(filepath.Join(dir, ContractsFile), crecs); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, PaymentsFile), precs)
}

func writeJSONFile(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
