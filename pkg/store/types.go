// Package store persists policies, route pools/targets, and the audit
// trail behind a single interface over database/sql, with sqlite
// (modernc.org/sqlite, the default) and postgres (lib/pq) backends, per
// spec.md §6 "Persisted state layout."
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a policy, pool, or target id is unknown.
var ErrNotFound = errors.New("store: not found")

// Driver names the two supported database/sql backends.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store is a database/sql-backed persistence layer for the gateway's
// control-plane resources (policies, pools, targets) and its audit trail.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open opens a Store against driver/dsn and applies the schema. driver
// must be "sqlite" or "postgres".
func Open(driver Driver, dsn string) (*Store, error) {
	sqlDriver := string(driver)
	if driver == DriverSQLite {
		sqlDriver = "sqlite"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.init(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an already-open *sql.DB, e.g. one stood up in tests via
// DATA-DOG/go-sqlmock. The schema is not (re-)applied.
func OpenDB(db *sql.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	policy_id TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	document TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS route_pools (
	pool_id TEXT PRIMARY KEY,
	document TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS route_targets (
	id TEXT PRIMARY KEY,
	pool_id TEXT NOT NULL,
	document TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	org_id TEXT,
	rule_id TEXT,
	effect TEXT,
	timestamp TIMESTAMP NOT NULL,
	document TEXT NOT NULL
);
`

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
