package qna

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// SQLiteMirror stores records in a qna_records table so the history can be
// queried without parsing the JSON log.
type SQLiteMirror struct {
	db *sql.DB
}

var _ Sink = (*SQLiteMirror)(nil)

// NewSQLiteMirror opens (or creates) the database at dsn.
func NewSQLiteMirror(dsn string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	m := &SQLiteMirror{db: db}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return m, nil
}

func (m *SQLiteMirror) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS qna_records (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_qna_records_timestamp ON qna_records(timestamp)`,
	}

	for _, stmt := range statements {
		if _, err := m.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append implements Sink.
func (m *SQLiteMirror) Append(ctx context.Context, rec domain.QnARecord) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO qna_records (id, timestamp, question, answer, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.Timestamp, rec.Question, rec.Answer, time.Now().UTC())
	if err != nil {
		err = domain.ErrLogging("failed to mirror interaction", err)
		slog.Error("interaction mirror write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (m *SQLiteMirror) Recent(ctx context.Context, limit int) ([]domain.QnARecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT timestamp, question, answer FROM qna_records ORDER BY timestamp DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []domain.QnARecord
	for rows.Next() {
		var rec domain.QnARecord
		if err := rows.Scan(&rec.Timestamp, &rec.Question, &rec.Answer); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}
