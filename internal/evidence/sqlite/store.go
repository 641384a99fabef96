// Package sqlite loads a pre-built evidence index from a SQLite file and
// answers nearest-neighbour queries over it in memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"

	_ "modernc.org/sqlite"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
	"github.com/covid-rag/reinfection-advisor/internal/evidence"
)

// Store holds every passage of the index in memory. The index file is
// opened read-only and closed once loaded, so Search never touches disk.
type Store struct {
	passages []row
	dim      int
}

type row struct {
	source    string
	text      string
	embedding []float32
	norm      float64
}

// Ensure Store implements domain.EvidenceStore
var _ domain.EvidenceStore = (*Store)(nil)

// Open loads the index at path. The file must already exist; a missing index
// is reported as an error rather than silently creating an empty database.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("evidence index %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence index: %w", err)
	}
	defer db.Close()

	return load(ctx, db)
}

func load(ctx context.Context, db *sql.DB) (*Store, error) {
	rows, err := db.QueryContext(ctx, `SELECT source, text, embedding FROM passages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	s := &Store{}
	for rows.Next() {
		var source sql.NullString
		var text string
		var blob []byte
		if err := rows.Scan(&source, &text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}

		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("passage %d: %w", len(s.passages), err)
		}
		if s.dim == 0 {
			s.dim = len(vec)
		} else if len(vec) != s.dim {
			return nil, fmt.Errorf("passage %d has dimension %d, index uses %d", len(s.passages), len(vec), s.dim)
		}

		s.passages = append(s.passages, row{
			source:    source.String,
			text:      text,
			embedding: vec,
			norm:      evidence.Norm(vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}
	if len(s.passages) == 0 {
		return nil, fmt.Errorf("evidence index is empty")
	}

	slog.Info("evidence index loaded",
		slog.Int("passages", len(s.passages)),
		slog.Int("dimension", s.dim),
	)
	return s, nil
}

// Len reports how many passages are loaded.
func (s *Store) Len() int {
	return len(s.passages)
}

// Search ranks every passage by cosine similarity to vector.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]domain.EvidencePassage, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	qnorm := evidence.Norm(vector)
	scored := make([]domain.EvidencePassage, len(s.passages))
	for i, p := range s.passages {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scored[i] = domain.EvidencePassage{
			Text:   p.text,
			Source: p.source,
			Score:  float32(evidence.Cosine(vector, qnorm, p.embedding, p.norm)),
		}
	}

	slices.SortStableFunc(scored, func(a, b domain.EvidencePassage) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Close releases the loaded passages.
func (s *Store) Close() error {
	s.passages = nil
	return nil
}

// EncodeVector packs a vector as little-endian float32s, the layout the
// index stores in its embedding column.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
