package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/db"
)

// PostgresStore implements trade, politician, and run persistence over a
// shared connection pool. It never owns the pool; the resource manager does.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore backed by the given pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies pending schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}
