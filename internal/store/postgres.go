package store

import (
	"context"
	"database/sql"

	// Registers the "postgres" driver with database/sql.
	_ "github.com/lib/pq"
)

// PostgresStore persists the opaque key/value map in a single generic
// table. Balance and TransferLog address the store by key, not by SQL
// shape, so there is no need for a row-per-entry schema.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB. Callers own the
// connection lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL this store expects to exist. It is not executed
// automatically; callers run migrations out of band.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM ledger_kv WHERE key = $1`

	var value string
	err := p.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (p *PostgresStore) Put(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO ledger_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	_, err := p.db.ExecContext(ctx, query, key, value)
	return err
}

func (p *PostgresStore) Del(ctx context.Context, key string) error {
	const query = `DELETE FROM ledger_kv WHERE key = $1`

	_, err := p.db.ExecContext(ctx, query, key)
	return err
}

var _ Store = (*PostgresStore)(nil)
