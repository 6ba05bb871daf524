package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- File operations ---

// FetchFilePathID returns the id for path, inserting the path when it is
// not yet known. Together with FetchFilePath it lets the store back a
// pathid.Cache.
func (s *Store) FetchFilePathID(path string) (int64, error) {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO files (path) VALUES (?)", path); err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	var id int64
	if err := s.db.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id); err != nil {
		return 0, fmt.Errorf("file id: %w", err)
	}
	return id, nil
}

// FetchFilePath returns the path stored for id.
func (s *Store) FetchFilePath(id int64) (string, error) {
	var path string
	err := s.db.QueryRow("SELECT path FROM files WHERE id = ?", id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("file path: %w", err)
	}
	return path, nil
}

// ErrNotFound is returned by lookups that must produce a row.
var ErrNotFound = errors.New("store: not found")

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var mod int64
	if err := scanner.Scan(&f.ID, &f.Path, &f.Size, &mod); err != nil {
		return nil, err
	}
	f.ModTime = fromUnixNano(mod)
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT id, path, size, mod_time FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) FileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT id, path, size, mod_time FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

// Files returns every known file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT id, path, size, mod_time FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Unit operations ---

const unitColumns = "u.id, u.file_id, f.path, u.fingerprint, u.last_indexed"

func scanUnit(scanner interface{ Scan(...any) error }) (*Unit, error) {
	u := &Unit{}
	var indexed sql.NullTime
	if err := scanner.Scan(&u.ID, &u.FileID, &u.Path, &u.Fingerprint, &indexed); err != nil {
		return nil, err
	}
	if indexed.Valid {
		u.LastIndexed = indexed.Time
	}
	return u, nil
}

func (s *Store) queryUnits(query string, args ...any) ([]*Unit, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()
	var units []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// UnitByPath returns the unit whose main file is path, or nil.
func (s *Store) UnitByPath(path string) (*Unit, error) {
	u, err := scanUnit(s.db.QueryRow(
		"SELECT "+unitColumns+" FROM units u JOIN files f ON f.id = u.file_id WHERE f.path = ?", path,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by path: %w", err)
	}
	return u, nil
}

// Units returns every indexed unit ordered by path.
func (s *Store) Units() ([]*Unit, error) {
	return s.queryUnits("SELECT " + unitColumns + " FROM units u JOIN files f ON f.id = u.file_id ORDER BY f.path")
}

// UnitFiles returns the files entered while preprocessing unitID.
func (s *Store) UnitFiles(unitID int64) ([]*UnitFile, error) {
	rows, err := s.db.Query(
		`SELECT uf.unit_id, uf.file_id, f.path, uf.size, uf.mod_time
		 FROM unit_files uf JOIN files f ON f.id = uf.file_id
		 WHERE uf.unit_id = ? ORDER BY f.path`, unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("unit files: %w", err)
	}
	defer rows.Close()
	var files []*UnitFile
	for rows.Next() {
		uf := &UnitFile{}
		var mod int64
		if err := rows.Scan(&uf.UnitID, &uf.FileID, &uf.Path, &uf.Size, &mod); err != nil {
			return nil, fmt.Errorf("scan unit file: %w", err)
		}
		uf.ModTime = fromUnixNano(mod)
		files = append(files, uf)
	}
	return files, rows.Err()
}

// UnitAbsentPaths returns the include candidates that did not exist when
// unitID was last preprocessed.
func (s *Store) UnitAbsentPaths(unitID int64) ([]string, error) {
	return s.queryStrings("SELECT path FROM unit_absent_paths WHERE unit_id = ? ORDER BY path", unitID)
}

// --- Metadata ---

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// Metadata returns the value for key and whether it was present.
func (s *Store) Metadata(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("metadata %q: %w", key, err)
	}
	return v, true, nil
}

// Counts holds table sizes for summaries.
type Counts struct {
	Files        int
	Units        int
	Symbols      int
	Locations    int
	UsedMacros   int
	Dependencies int
	LastIndexed  time.Time
}

func (s *Store) Counts() (*Counts, error) {
	c := &Counts{}
	for _, q := range []struct {
		sql string
		dst *int
	}{
		{"SELECT COUNT(*) FROM files", &c.Files},
		{"SELECT COUNT(*) FROM units", &c.Units},
		{"SELECT COUNT(*) FROM symbols", &c.Symbols},
		{"SELECT COUNT(*) FROM source_locations", &c.Locations},
		{"SELECT COUNT(*) FROM (SELECT DISTINCT name, file_id FROM used_macros)", &c.UsedMacros},
		{"SELECT COUNT(*) FROM (SELECT DISTINCT including_file_id, included_file_id FROM source_dependencies)", &c.Dependencies},
	} {
		if err := s.db.QueryRow(q.sql).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("counts: %w", err)
		}
	}
	var last sql.NullString
	if err := s.db.QueryRow("SELECT MAX(last_indexed) FROM units").Scan(&last); err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}
	if last.Valid {
		c.LastIndexed = parseSQLiteTime(last.String)
	}
	return c, nil
}

// MAX() loses the column's declared type, so the driver hands back text.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
