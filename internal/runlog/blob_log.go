package runlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/storage"
)

// DefaultPath is the audit log location inside the container.
const DefaultPath = "Staging/log.csv"

// Recorder persists one audit entry.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// BlobLog keeps the audit log as a CSV blob. Each Record is a full
// read-modify-write of the blob; the mutex serializes writers within this
// process only.
type BlobLog struct {
	store  storage.BlobStore
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewBlobLog returns a BlobLog writing to path (DefaultPath when empty).
func NewBlobLog(store storage.BlobStore, path string, logger *zap.Logger) *BlobLog {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobLog{store: store, path: path, logger: logger}
}

// Record upserts e into the log blob and re-uploads the whole file.
//
// A missing or unparseable log is replaced by a fresh one. Any other download
// failure aborts the update so a transient error cannot wipe existing rows.
func (l *BlobLog) Record(ctx context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	table, err := l.load(ctx)
	if err != nil {
		return err
	}
	updated := table.Upsert(e)

	data, err := table.Encode()
	if err != nil {
		return fmt.Errorf("encode run log: %w", err)
	}
	if _, err := l.store.PutObject(ctx, l.path, "text/csv", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload run log: %w", err)
	}
	l.logger.Info("run log updated",
		zap.String("path", l.path),
		zap.String("keyword", e.Keyword),
		zap.Bool("updated_existing", updated),
		zap.Int("rows", len(table.Rows)),
	)
	return nil
}

func (l *BlobLog) load(ctx context.Context) (*Table, error) {
	raw, err := l.store.GetObject(ctx, l.path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		l.logger.Info("run log not found; starting a new one", zap.String("path", l.path))
		return NewTable(), nil
	case err != nil:
		return nil, fmt.Errorf("download run log: %w", err)
	}
	table, err := ParseCSV(raw)
	if err != nil {
		l.logger.Warn("run log unreadable; starting a new one", zap.String("path", l.path), zap.Error(err))
		return NewTable(), nil
	}
	return table, nil
}

// Multi fans an entry out to several recorders. Every recorder is attempted;
// the returned error joins all failures.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
