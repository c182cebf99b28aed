// Package postgres implements memory.Store on PostgreSQL with the pgvector
// extension. Recall is a cosine-distance nearest-neighbour query over an
// HNSW-indexed embedding column.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxhaus/voxhaus/pkg/memory"
)

// Compile-time interface check.
var _ memory.Store = (*Store)(nil)

// Store is the pgvector-backed memory store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and ensures the schema
// exists.
//
// embeddingDimensions must match the output dimension of the embedding model
// (e.g. 1536 for OpenAI text-embedding-3-small). Changing it after the first
// migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory store: ping: %w", err)
	}

	if err := migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// migrate creates the vector extension, the memories table, and the HNSW
// search index if they do not exist yet.
func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			category   TEXT NOT NULL DEFAULT 'general',
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dims),
		`CREATE INDEX IF NOT EXISTS memories_embedding_idx
			ON memories USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save implements [memory.Store]. Entries with an existing ID are replaced.
func (s *Store) Save(ctx context.Context, m memory.Memory) error {
	const q = `
		INSERT INTO memories (id, content, category, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    content    = EXCLUDED.content,
		    category   = EXCLUDED.category,
		    embedding  = EXCLUDED.embedding,
		    created_at = EXCLUDED.created_at`

	_, err := s.pool.Exec(ctx, q,
		m.ID,
		m.Content,
		string(m.Category),
		pgvector.NewVector(m.Embedding),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("memory store: save: %w", err)
	}
	return nil
}

// Search implements [memory.Store]. Results are ordered by ascending cosine
// distance (most similar first).
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]memory.Result, error) {
	const q = `
		SELECT id, content, category, embedding, created_at,
		       embedding <=> $1 AS distance
		FROM   memories
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("memory store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Result, error) {
		var (
			r   memory.Result
			cat string
			vec pgvector.Vector
		)
		if err := row.Scan(&r.ID, &r.Content, &cat, &vec, &r.CreatedAt, &r.Distance); err != nil {
			return memory.Result{}, err
		}
		r.Category = memory.Category(cat)
		r.Embedding = vec.Slice()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.Result{}
	}
	return results, nil
}

// List implements [memory.Store]. Newest entries come first.
func (s *Store) List(ctx context.Context, limit int) ([]memory.Memory, error) {
	const q = `
		SELECT id, content, category, created_at
		FROM   memories
		ORDER  BY created_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("memory store: list: %w", err)
	}

	memories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Memory, error) {
		var (
			m   memory.Memory
			cat string
		)
		if err := row.Scan(&m.ID, &m.Content, &cat, &m.CreatedAt); err != nil {
			return memory.Memory{}, err
		}
		m.Category = memory.Category(cat)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: scan rows: %w", err)
	}
	if memories == nil {
		memories = []memory.Memory{}
	}
	return memories, nil
}

// Count implements [memory.Store].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("memory store: count: %w", err)
	}
	return n, nil
}

// Delete implements [memory.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("memory store: delete: %w", err)
	}
	return nil
}

// DeleteAll implements [memory.Store].
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories`)
	if err != nil {
		return 0, fmt.Errorf("memory store: delete all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
