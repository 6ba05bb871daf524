package store

import (
	"database/sql"
	"fmt"
)

// --- Symbol operations ---

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	if err := scanner.Scan(&sym.ID, &sym.USR, &sym.Name); err != nil {
		return nil, err
	}
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	var syms []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		syms = append(syms, sym)
	}
	return syms, rows.Err()
}

// SymbolsByName returns every definition chain named name, ordered by USR.
func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	return s.querySymbols("SELECT id, usr, name FROM symbols WHERE name = ? ORDER BY usr", name)
}

// SymbolByUSR returns the symbol with the given USR, or nil.
func (s *Store) SymbolByUSR(usr string) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRow("SELECT id, usr, name FROM symbols WHERE usr = ?", usr))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by usr: %w", err)
	}
	return sym, nil
}

// SymbolByID returns the symbol with the given id, or nil.
func (s *Store) SymbolByID(id int64) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRow("SELECT id, usr, name FROM symbols WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol by id: %w", err)
	}
	return sym, nil
}

// SymbolsInFile returns the symbols with at least one occurrence in fileID.
func (s *Store) SymbolsInFile(fileID int64) ([]*Symbol, error) {
	return s.querySymbols(
		`SELECT DISTINCT s.id, s.usr, s.name FROM symbols s
		 JOIN source_locations l ON l.symbol_id = s.id
		 WHERE l.file_id = ? ORDER BY s.name, s.usr`, fileID,
	)
}

// SymbolNames returns the distinct names of all indexed macros.
func (s *Store) SymbolNames() ([]string, error) {
	return s.queryStrings("SELECT DISTINCT name FROM symbols ORDER BY name")
}

func (s *Store) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Source locations ---

// LocationsBySymbol returns the distinct occurrences of symbolID ordered by
// path and position. The same header seen by several units yields one row.
// An empty kind matches every kind.
func (s *Store) LocationsBySymbol(symbolID int64, kind string) ([]*Location, error) {
	query := `SELECT MIN(l.id), MIN(l.unit_id), l.symbol_id, l.file_id, f.path, l.line, l.col, l.kind
		FROM source_locations l JOIN files f ON f.id = l.file_id
		WHERE l.symbol_id = ?`
	args := []any{symbolID}
	if kind != "" {
		query += " AND l.kind = ?"
		args = append(args, kind)
	}
	query += " GROUP BY l.symbol_id, l.file_id, l.line, l.col, l.kind ORDER BY f.path, l.line, l.col"
	return s.queryLocations(query, args...)
}

// LocationsInFile returns the distinct occurrences recorded in fileID.
func (s *Store) LocationsInFile(fileID int64) ([]*Location, error) {
	return s.queryLocations(
		`SELECT MIN(l.id), MIN(l.unit_id), l.symbol_id, l.file_id, f.path, l.line, l.col, l.kind
		 FROM source_locations l JOIN files f ON f.id = l.file_id
		 WHERE l.file_id = ?
		 GROUP BY l.symbol_id, l.file_id, l.line, l.col, l.kind
		 ORDER BY l.line, l.col`, fileID,
	)
}

func (s *Store) queryLocations(query string, args ...any) ([]*Location, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()
	var locs []*Location
	for rows.Next() {
		l := &Location{}
		if err := rows.Scan(&l.ID, &l.UnitID, &l.SymbolID, &l.FileID, &l.Path, &l.Line, &l.Col, &l.Kind); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

// --- Used macros ---

// UsedMacrosByFile returns the distinct macro names used in fileID.
func (s *Store) UsedMacrosByFile(fileID int64) ([]string, error) {
	return s.queryStrings("SELECT DISTINCT name FROM used_macros WHERE file_id = ? ORDER BY name", fileID)
}

// FilesUsingMacro returns the ids of files that use name.
func (s *Store) FilesUsingMacro(name string) ([]int64, error) {
	rows, err := s.db.Query("SELECT DISTINCT file_id FROM used_macros WHERE name = ? ORDER BY file_id", name)
	if err != nil {
		return nil, fmt.Errorf("files using macro: %w", err)
	}
	return scanIDs(rows)
}

// UnusedSymbols returns symbols with a definition but no usage occurrence
// and whose name no unit reports as used.
func (s *Store) UnusedSymbols() ([]*Symbol, error) {
	return s.querySymbols(
		`SELECT s.id, s.usr, s.name FROM symbols s
		 WHERE NOT EXISTS (SELECT 1 FROM source_locations l WHERE l.symbol_id = s.id AND l.kind = 'usage')
		   AND NOT EXISTS (SELECT 1 FROM used_macros u WHERE u.name = s.name)
		 ORDER BY s.name, s.usr`,
	)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
