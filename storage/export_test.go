package storage

import "github.com/jackc/pgx/v5/pgxpool"

// Pool exposes the underlying pool so tests can inspect rows directly.
func (pgr *PostgresRepo) Pool() *pgxpool.Pool {
	return pgr.pool
}
