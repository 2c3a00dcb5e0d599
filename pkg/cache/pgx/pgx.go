// Package pgx implements a Postgres-backed embedding cache using pgvector.
// Vectors survive across build runs, so re-running a build against an
// unchanged record set performs no embedding calls at all.
package pgx

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PgxEmbeddingCache stores embedding vectors in the embedding_cache table.
type PgxEmbeddingCache struct {
	pool *pgxpool.Pool
}

// New connects a pool to the given database URL, registers the pgvector
// types and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*PgxEmbeddingCache, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PgxEmbeddingCache{pool: pool}, nil
}

// NewWithPool wraps an existing pool without running migrations. The pool
// must already have pgvector types registered.
func NewWithPool(pool *pgxpool.Pool) *PgxEmbeddingCache {
	return &PgxEmbeddingCache{pool: pool}
}

func runMigrations(databaseURL string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load cache migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init cache migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply cache migrations: %w", err)
	}
	return nil
}

func (c *PgxEmbeddingCache) Get(ctx context.Context, filename string, dimension string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := c.pool.QueryRow(ctx,
		`SELECT embedding FROM embedding_cache WHERE filename = $1 AND dimension = $2`,
		filename, dimension,
	).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read embedding cache: %w", err)
	}
	return vec.Slice(), true, nil
}

func (c *PgxEmbeddingCache) Put(ctx context.Context, filename string, dimension string, vector []float32) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO embedding_cache (filename, dimension, embedding, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (filename, dimension)
		 DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
		filename, dimension, pgvector.NewVector(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (c *PgxEmbeddingCache) Close() {
	c.pool.Close()
}
