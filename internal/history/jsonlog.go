// Package history keeps the append-only JSON log of enriched harvest records.
//
// The log is a single JSON array on disk. Every append rewrites the whole file
// through a temporary sibling that is synced and renamed over the target, so a
// crash mid-write leaves either the old or the new array, never a torn one.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"caneharvest/internal/types"
)

// filePerm restricts the log to its owner.
const filePerm os.FileMode = 0o600

const indent = "    "

// Log is a JSON-array history file. Appends are serialized.
type Log struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewLog returns a Log writing to path. The file is created on first append.
func NewLog(path string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{path: path, logger: logger}
}

// Path returns the file the log writes to.
func (l *Log) Path() string {
	return l.path
}

// Entries returns every record currently in the log. A missing file is an
// empty log. An unreadable or corrupt file is logged and treated as empty.
func (l *Log) Entries(ctx context.Context) []json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Append adds record to the end of the log and rewrites the file atomically.
func (l *Log) Append(ctx context.Context, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalHistory, "history record is not serializable", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.load(ctx), json.RawMessage(raw))
	if err := l.write(entries); err != nil {
		return types.NewAppError(types.ErrCodeInternalHistory, "failed to write history file", err)
	}
	return nil
}

// Check verifies that the log directory accepts new files. It backs the
// history health probe.
func (l *Log) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(l.path), ".health-*")
	if err != nil {
		return fmt.Errorf("history directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (l *Log) load(ctx context.Context) []json.RawMessage {
	logger := types.LoggerFromContext(ctx, l.logger)

	if _, err := os.Stat(l.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := os.Chmod(l.path, filePerm); err != nil {
		logger.Warn("could not restrict history file permissions",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		logger.Warn("could not read history file, starting fresh",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn("could not decode history file, starting fresh",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return entries
}

func (l *Log) write(entries []json.RawMessage) (err error) {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(entries, "", indent)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), "."+filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}
