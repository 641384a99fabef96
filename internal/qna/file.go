package qna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// DefaultPath is where the log lives relative to the working directory.
const DefaultPath = "data/qna_history.json"

// FileLogger keeps the log as one indented JSON array and rewrites the whole
// file on every append. Writers in this process are serialised; separate
// processes sharing the file can still lose each other's updates.
type FileLogger struct {
	path string
	mu   sync.Mutex
}

var (
	_ Logger = (*FileLogger)(nil)
	_ Sink   = (*FileLogger)(nil)
)

// NewFileLogger returns a logger for path. Nothing is touched on disk until
// the first append.
func NewFileLogger(path string) *FileLogger {
	if path == "" {
		path = DefaultPath
	}
	return &FileLogger{path: path}
}

// Path returns the log file location.
func (l *FileLogger) Path() string {
	return l.path
}

// Log implements Logger.
func (l *FileLogger) Log(ctx context.Context, question, answer string) {
	_ = l.Append(ctx, domain.NewQnARecord(question, answer))
}

// Append adds rec to the log. A missing or unreadable log is treated as
// empty so the current record is never lost.
func (l *FileLogger) Append(ctx context.Context, rec domain.QnARecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.append(rec); err != nil {
		err = domain.ErrLogging("failed to append interaction log", err)
		slog.Error("interaction log write failed",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (l *FileLogger) append(rec domain.QnARecord) error {
	records, err := ReadHistory(l.path)
	if err != nil {
		slog.Warn("interaction log unreadable, starting a new one",
			slog.String("path", l.path),
			slog.String("error", err.Error()),
		)
		records = nil
	}
	records = append(records, rec)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return writeAtomic(dir, l.path, buf.Bytes())
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".qna-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set log permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace log: %w", err)
	}
	return nil
}

// ReadHistory returns the records in the log at path. A missing file is an
// empty history; a corrupt one is an error.
func ReadHistory(path string) ([]domain.QnARecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records []domain.QnARecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// History reads the current log under the writer lock.
func (l *FileLogger) History() ([]domain.QnARecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ReadHistory(l.path)
}
