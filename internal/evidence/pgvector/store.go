// Package pgvector queries an evidence index kept in PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// DefaultTable is the table the offline indexer writes passages to.
const DefaultTable = "evidence_passages"

// querier is the subset of pgxpool.Pool used by Store.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Store searches passages by cosine distance (the <=> operator).
type Store struct {
	pool  querier
	table string
}

var _ domain.EvidenceStore = (*Store)(nil)

// PoolConfig holds tunable parameters for the connection pool.
type PoolConfig struct {
	MaxConns int
	MinConns int
}

// Open connects to dsn, registers the vector type and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string, table string, opts ...PoolConfig) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(opts) > 0 && opts[0].MaxConns > 0 {
		config.MaxConns = int32(opts[0].MaxConns)
	} else {
		config.MaxConns = 10
	}
	if len(opts) > 0 && opts[0].MinConns > 0 {
		config.MinConns = int32(opts[0].MinConns)
	} else {
		config.MinConns = 1
	}
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return newStore(pool, table), nil
}

func newStore(pool querier, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{pool: pool, table: table}
}

// Search returns the k passages closest to vector. Score is 1 - cosine distance.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]domain.EvidencePassage, error) {
	if k <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT source, text, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, pgx.Identifier{s.table}.Sanitize())

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	defer rows.Close()

	var out []domain.EvidencePassage
	for rows.Next() {
		var p domain.EvidencePassage
		var source *string
		var score float64
		if err := rows.Scan(&source, &p.Text, &score); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		if source != nil {
			p.Source = *source
		}
		p.Score = float32(score)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read passages: %w", err)
	}

	return out, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
