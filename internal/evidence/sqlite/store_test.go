package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

type fixturePassage struct {
	source string
	text   string
	vec    []float32
}

// writeIndex builds a small index file the way the offline indexer lays it out.
func writeIndex(t *testing.T, passages []fixturePassage) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pubmed.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	for _, p := range passages {
		if _, err := db.Exec(`INSERT INTO passages (source, text, embedding) VALUES (?, ?, ?)`,
			p.source, p.text, EncodeVector(p.vec)); err != nil {
			t.Fatalf("insert passage: %v", err)
		}
	}
	return path
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	if err == nil {
		t.Fatal("Open() expected error for missing index")
	}
}

func TestOpen_EmptyIndex(t *testing.T) {
	path := writeIndex(t, nil)
	if _, err := Open(context.Background(), path); err == nil {
		t.Fatal("Open() expected error for empty index")
	}
}

func TestStore_Search(t *testing.T) {
	path := writeIndex(t, []fixturePassage{
		{"pmid:1", "Vaccination reduces reinfection.", []float32{1, 0, 0}},
		{"pmid:2", "Diabetes increases severity.", []float32{0, 1, 0}},
		{"pmid:3", "Omicron escapes prior immunity.", []float32{0.7, 0.7, 0}},
		{"pmid:4", "Unrelated passage.", []float32{0, 0, 1}},
	})

	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	if store.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", store.Len())
	}

	got, err := store.Search(context.Background(), []float32{1, 0.1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Search() returned %d passages, want 3", len(got))
	}

	wantOrder := []string{"pmid:1", "pmid:3", "pmid:2"}
	for i, src := range wantOrder {
		if got[i].Source != src {
			t.Errorf("result[%d].Source = %q, want %q", i, got[i].Source, src)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not in descending score order: %v", got)
		}
	}
}

func TestStore_SearchKLargerThanIndex(t *testing.T) {
	path := writeIndex(t, []fixturePassage{
		{"a", "one", []float32{1, 0}},
		{"b", "two", []float32{0, 1}},
	})
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, err := store.Search(context.Background(), []float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Search() returned %d passages, want 2", len(got))
	}
}

func TestStore_SearchDimensionMismatch(t *testing.T) {
	path := writeIndex(t, []fixturePassage{{"a", "one", []float32{1, 0}}})
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := store.Search(context.Background(), []float32{1, 0, 0}, 1); err == nil {
		t.Error("Search() expected dimension mismatch error")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("DecodeVector() error = %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeVector() expected error for short blob")
	}
}
