package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/ppindex/internal/collect"
)

// UnitCommit is everything needed to replace one unit's facts.
type UnitCommit struct {
	FileID      int64
	Fingerprint string
	IndexedAt   time.Time
	Result      *collect.Result

	// AbsentPaths are include candidates the preprocessor found empty.
	AbsentPaths []string
}

// CommitUnit replaces the facts of a single unit. See CommitBatch.
func (s *Store) CommitUnit(u *UnitCommit) (int64, error) {
	ids, err := s.commit([]*UnitCommit{u})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CommitBatch replaces the facts of every unit in the batch within a single
// transaction and returns the unit IDs in batch order.
//
// Collector symbol IDs are per unit and only meaningful inside a Result.
// They are remapped to real symbol IDs through the symbol's USR, so two
// units that see the same definition share one symbols row.
//
// Per unit, the order is:
//  1. Upsert the unit row and clear its previous facts
//  2. Update file size and modification time
//  3. Symbols (keyed by USR)
//  4. Source locations (depend on symbol_id)
//  5. Used macros, source dependencies, unit files, absent include paths
//
// Symbols left without any location are pruned once at the end.
func (s *Store) CommitBatch(batch *BatchedStore) ([]int64, error) {
	return s.commit(batch.Units)
}

func (s *Store) commit(units []*UnitCommit) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(units))
	for _, u := range units {
		id, err := commitUnitTx(tx, u)
		if err != nil {
			return nil, fmt.Errorf("commit unit %d: %w", u.FileID, err)
		}
		ids = append(ids, id)
	}
	if err := pruneSymbolsTx(tx); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return ids, nil
}

func commitUnitTx(tx *sql.Tx, u *UnitCommit) (int64, error) {
	if u.Result == nil {
		return 0, fmt.Errorf("nil result")
	}
	unitID, err := upsertUnitTx(tx, u)
	if err != nil {
		return 0, err
	}
	if err := deleteUnitFactsTx(tx, unitID); err != nil {
		return 0, err
	}

	res := u.Result

	// 2. File information
	for _, fi := range res.FileInfos {
		_, err := tx.Exec("UPDATE files SET size = ?, mod_time = ? WHERE id = ?",
			fi.Size, unixNano(fi.ModTime), int64(fi.FileID))
		if err != nil {
			return 0, fmt.Errorf("file %d: %w", fi.FileID, err)
		}
	}

	// 3. Symbols
	fakeToReal := make(map[collect.SymbolID]int64, len(res.Symbols))
	for fakeID, entry := range res.Symbols {
		realID, err := upsertSymbolTx(tx, entry)
		if err != nil {
			return 0, fmt.Errorf("symbol %q: %w", entry.Name, err)
		}
		fakeToReal[fakeID] = realID
	}

	// 4. Source locations
	for _, loc := range res.Locations {
		symbolID, ok := fakeToReal[loc.SymbolID]
		if !ok {
			return 0, fmt.Errorf("location references unknown symbol %d", loc.SymbolID)
		}
		_, err := tx.Exec(
			"INSERT INTO source_locations (unit_id, symbol_id, file_id, line, col, kind) VALUES (?, ?, ?, ?, ?, ?)",
			unitID, symbolID, int64(loc.FileID), loc.Line, loc.Column, loc.Kind.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("source location: %w", err)
		}
	}

	// 5. Used macros, dependencies, unit files
	for _, um := range res.UsedMacros {
		_, err := tx.Exec("INSERT OR IGNORE INTO used_macros (unit_id, name, file_id) VALUES (?, ?, ?)",
			unitID, um.Name, int64(um.FileID))
		if err != nil {
			return 0, fmt.Errorf("used macro %q: %w", um.Name, err)
		}
	}
	for _, dep := range res.Dependencies {
		_, err := tx.Exec(
			"INSERT INTO source_dependencies (unit_id, including_file_id, included_file_id) VALUES (?, ?, ?)",
			unitID, int64(dep.Including), int64(dep.Included),
		)
		if err != nil {
			return 0, fmt.Errorf("source dependency: %w", err)
		}
	}
	for _, fi := range res.FileInfos {
		_, err := tx.Exec("INSERT OR REPLACE INTO unit_files (unit_id, file_id, size, mod_time) VALUES (?, ?, ?, ?)",
			unitID, int64(fi.FileID), fi.Size, unixNano(fi.ModTime))
		if err != nil {
			return 0, fmt.Errorf("unit file %d: %w", fi.FileID, err)
		}
	}
	for _, path := range u.AbsentPaths {
		if _, err := tx.Exec("INSERT OR IGNORE INTO unit_absent_paths (unit_id, path) VALUES (?, ?)", unitID, path); err != nil {
			return 0, fmt.Errorf("absent path %s: %w", path, err)
		}
	}
	return unitID, nil
}

func upsertUnitTx(tx *sql.Tx, u *UnitCommit) (int64, error) {
	_, err := tx.Exec(
		`INSERT INTO units (file_id, fingerprint, last_indexed) VALUES (?, ?, ?)
		 ON CONFLICT(file_id) DO UPDATE SET fingerprint = excluded.fingerprint, last_indexed = excluded.last_indexed`,
		u.FileID, u.Fingerprint, u.IndexedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert unit: %w", err)
	}
	var id int64
	if err := tx.QueryRow("SELECT id FROM units WHERE file_id = ?", u.FileID).Scan(&id); err != nil {
		return 0, fmt.Errorf("unit id: %w", err)
	}
	return id, nil
}

func upsertSymbolTx(tx *sql.Tx, e collect.SymbolEntry) (int64, error) {
	_, err := tx.Exec("INSERT INTO symbols (usr, name) VALUES (?, ?) ON CONFLICT(usr) DO NOTHING", e.USR, e.Name)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow("SELECT id FROM symbols WHERE usr = ?", e.USR).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
