package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the macro index.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ReadOnly runs fn on a pooled connection with PRAGMA query_only set, so
// any statement that would write fails. The pragma is cleared before the
// connection goes back to the pool.
func (s *Store) ReadOnly(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("read-only connection: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("read-only connection: %w", err)
	}
	defer conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")
	return fn(conn)
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Facts are stored per translation unit so a unit can be replaced without
// touching the others. A header included by several units therefore has
// one copy of its facts per unit; readers use DISTINCT.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  size            INTEGER NOT NULL DEFAULT 0,
  mod_time        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS units (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL UNIQUE REFERENCES files(id),
  fingerprint     TEXT NOT NULL,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS symbols (
  id              INTEGER PRIMARY KEY,
  usr             TEXT NOT NULL UNIQUE,
  name            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS source_locations (
  id              INTEGER PRIMARY KEY,
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  symbol_id       INTEGER NOT NULL REFERENCES symbols(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  line            INTEGER NOT NULL,
  col             INTEGER NOT NULL,
  kind            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS used_macros (
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  PRIMARY KEY (unit_id, name, file_id)
);

CREATE TABLE IF NOT EXISTS source_dependencies (
  id                INTEGER PRIMARY KEY,
  unit_id           INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  including_file_id INTEGER NOT NULL REFERENCES files(id),
  included_file_id  INTEGER NOT NULL REFERENCES files(id)
);

CREATE TABLE IF NOT EXISTS unit_files (
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  size            INTEGER NOT NULL,
  mod_time        INTEGER NOT NULL,
  PRIMARY KEY (unit_id, file_id)
);

CREATE TABLE IF NOT EXISTS unit_absent_paths (
  unit_id         INTEGER NOT NULL REFERENCES units(id) ON DELETE CASCADE,
  path            TEXT NOT NULL,
  PRIMARY KEY (unit_id, path)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_source_locations_symbol ON source_locations(symbol_id);
CREATE INDEX IF NOT EXISTS idx_source_locations_file ON source_locations(file_id);
CREATE INDEX IF NOT EXISTS idx_source_locations_unit ON source_locations(unit_id);
CREATE INDEX IF NOT EXISTS idx_used_macros_file ON used_macros(file_id);
CREATE INDEX IF NOT EXISTS idx_used_macros_name ON used_macros(name);
CREATE INDEX IF NOT EXISTS idx_source_dependencies_including ON source_dependencies(including_file_id);
CREATE INDEX IF NOT EXISTS idx_source_dependencies_included ON source_dependencies(included_file_id);
CREATE INDEX IF NOT EXISTS idx_unit_files_file ON unit_files(file_id);
CREATE INDEX IF NOT EXISTS idx_unit_absent_paths_path ON unit_absent_paths(path);
`

// DeleteUnit removes a unit and every fact it contributed. Symbols no
// longer referenced by any unit are pruned.
func (s *Store) DeleteUnit(unitID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete unit: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteUnitFactsTx(tx, unitID); err != nil {
		return fmt.Errorf("delete unit %d: %w", unitID, err)
	}
	if _, err := tx.Exec("DELETE FROM units WHERE id = ?", unitID); err != nil {
		return fmt.Errorf("delete unit %d: %w", unitID, err)
	}
	if err := pruneSymbolsTx(tx); err != nil {
		return fmt.Errorf("delete unit %d: %w", unitID, err)
	}
	return tx.Commit()
}

func deleteUnitFactsTx(tx *sql.Tx, unitID int64) error {
	for _, table := range []string{"source_locations", "used_macros", "source_dependencies", "unit_files", "unit_absent_paths"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE unit_id = ?", unitID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func pruneSymbolsTx(tx *sql.Tx) error {
	_, err := tx.Exec("DELETE FROM symbols WHERE id NOT IN (SELECT DISTINCT symbol_id FROM source_locations)")
	if err != nil {
		return fmt.Errorf("prune symbols: %w", err)
	}
	return nil
}
