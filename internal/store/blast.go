package store

import "fmt"

// UnitsContainingFiles returns the ids of units that entered any of the
// given files while preprocessing. A change to one of those files makes the
// unit stale.
func (s *Store) UnitsContainingFiles(fileIDs []int64) ([]int64, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(fileIDs))
	query := `SELECT DISTINCT unit_id FROM unit_files WHERE file_id IN (` + placeholders + `)
		UNION
		SELECT id FROM units WHERE file_id IN (` + placeholders + `)
		ORDER BY 1`
	rows, err := s.db.Query(query, repeatArgs(int64sToArgs(fileIDs), 2)...)
	if err != nil {
		return nil, fmt.Errorf("units containing files: %w", err)
	}
	return scanIDs(rows)
}

// UnitsByIDs returns the units with the given ids ordered by path.
func (s *Store) UnitsByIDs(ids []int64) ([]*Unit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryUnits(
		"SELECT "+unitColumns+" FROM units u JOIN files f ON f.id = u.file_id WHERE u.id IN ("+
			placeholderList(len(ids))+") ORDER BY f.path",
		int64sToArgs(ids)...,
	)
}

// UnitsMissingPaths returns the ids of units whose preprocessing looked for
// one of paths and found nothing there. A file created at such a path makes
// the unit stale.
func (s *Store) UnitsMissingPaths(paths []string) ([]int64, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	rows, err := s.db.Query(
		"SELECT DISTINCT unit_id FROM unit_absent_paths WHERE path IN ("+placeholderList(len(paths))+") ORDER BY 1",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("units missing paths: %w", err)
	}
	return scanIDs(rows)
}
