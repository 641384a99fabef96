package qna

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

func TestFileLogger_CreatesParentAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "qna_history.json")
	l := NewFileLogger(path)

	l.Log(context.Background(), "q1", "a1")
	l.Log(context.Background(), "q2", "<b>a2</b>")

	records, err := l.History()
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("History() returned %d records, want 2", len(records))
	}
	if records[0].Question != "q1" || records[1].Answer != "<b>a2</b>" {
		t.Errorf("records = %+v", records)
	}
	if _, err := time.Parse(time.RFC3339Nano, records[0].Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", records[0].Timestamp, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	text := string(raw)
	if !strings.HasPrefix(text, "[\n  {\n    \"timestamp\"") {
		t.Errorf("log is not two-space indented:\n%s", text)
	}
	if !strings.Contains(text, "<b>a2</b>") {
		t.Errorf("log should not HTML-escape answers:\n%s", text)
	}
}

func TestFileLogger_CorruptFileStartsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qna_history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFileLogger(path)
	if err := l.Append(context.Background(), domain.NewQnARecord("q", "a")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := ReadHistory(path)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("ReadHistory() returned %d records, want 1", len(records))
	}
}

func TestFileLogger_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	if err := os.WriteFile(blocker, []byte("file, not dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewFileLogger(filepath.Join(blocker, "qna_history.json"))
	err := l.Append(context.Background(), domain.NewQnARecord("q", "a"))
	if domain.KindOf(err) != domain.ErrorKindLogging {
		t.Errorf("Append() error = %v, want logging error", err)
	}

	// Log must not panic or surface the failure.
	l.Log(context.Background(), "q", "a")
}

func TestFileLogger_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qna_history.json")
	l := NewFileLogger(path)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Log(context.Background(), fmt.Sprintf("q%d", i), "a")
		}(i)
	}
	wg.Wait()

	records, err := ReadHistory(path)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(records) != n {
		t.Errorf("ReadHistory() returned %d records, want %d", len(records), n)
	}
}

func TestReadHistory_Missing(t *testing.T) {
	records, err := ReadHistory(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || records != nil {
		t.Errorf("ReadHistory(missing) = %v, %v; want nil, nil", records, err)
	}
}

func TestSQLiteMirror(t *testing.T) {
	m, err := NewSQLiteMirror("file:qnamirror?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteMirror() error = %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	first := domain.QnARecord{Timestamp: "2024-01-01T00:00:00Z", Question: "q1", Answer: "a1"}
	second := domain.QnARecord{Timestamp: "2024-01-02T00:00:00Z", Question: "q2", Answer: "a2"}
	for _, rec := range []domain.QnARecord{first, second} {
		if err := m.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := m.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 || got[0] != second || got[1] != first {
		t.Errorf("Recent() = %+v", got)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	recs []domain.QnARecord
	err  error
}

func (s *recordingSink) Append(ctx context.Context, rec domain.QnARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func TestMulti_FansOut(t *testing.T) {
	failing := &recordingSink{err: errors.New("disk full")}
	ok := &recordingSink{}

	NewMulti(failing, nil, ok).Log(context.Background(), "q", "a")

	if len(failing.recs) != 1 || len(ok.recs) != 1 {
		t.Fatalf("sinks received %d and %d records, want 1 each", len(failing.recs), len(ok.recs))
	}
	if failing.recs[0] != ok.recs[0] {
		t.Errorf("sinks received different records: %+v vs %+v", failing.recs[0], ok.recs[0])
	}
}
