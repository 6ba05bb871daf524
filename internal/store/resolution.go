package store

import "fmt"

// --- Include edges ---

// DependenciesOf returns the ids of files directly included by fileID.
func (s *Store) DependenciesOf(fileID int64) ([]int64, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT included_file_id FROM source_dependencies WHERE including_file_id = ? ORDER BY included_file_id",
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("dependencies of: %w", err)
	}
	return scanIDs(rows)
}

// DependentsOf returns the ids of files that directly include fileID.
func (s *Store) DependentsOf(fileID int64) ([]int64, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT including_file_id FROM source_dependencies WHERE included_file_id = ? ORDER BY including_file_id",
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("dependents of: %w", err)
	}
	return scanIDs(rows)
}

// DependencyEdges returns every distinct include edge in the index.
func (s *Store) DependencyEdges() ([]*Dependency, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT including_file_id, included_file_id FROM source_dependencies
		 ORDER BY including_file_id, included_file_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("dependency edges: %w", err)
	}
	defer rows.Close()
	var deps []*Dependency
	for rows.Next() {
		d := &Dependency{}
		if err := rows.Scan(&d.IncludingFileID, &d.IncludedFileID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
