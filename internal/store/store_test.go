package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ppindex/internal/collect"
	"github.com/jward/ppindex/internal/pathid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// fileID registers path and returns its id.
func fileID(t *testing.T, s *Store, path string) pathid.FilePathID {
	t.Helper()
	id, err := s.FetchFilePathID(path)
	require.NoError(t, err)
	require.Positive(t, id)
	return pathid.FilePathID(id)
}

// sampleResult builds a unit result for main.c including a.h: X is defined
// in a.h and used in main.c, Y is defined in main.c and never used.
func sampleResult(t *testing.T, s *Store, usrPrefix string) (pathid.FilePathID, *collect.Result) {
	t.Helper()
	mainID := fileID(t, s, "/src/main.c")
	headerID := fileID(t, s, "/src/a.h")
	mod := time.Unix(1700000000, 0)
	return mainID, &collect.Result{
		Symbols: collect.SymbolEntries{
			1: {USR: usrPrefix + "a.h@8@macro@X", Name: "X"},
			2: {USR: usrPrefix + "main.c@30@macro@Y", Name: "Y"},
		},
		Locations: []collect.SourceLocationEntry{
			{SymbolID: 1, FileID: headerID, Line: 1, Column: 9, Kind: collect.Definition},
			{SymbolID: 2, FileID: mainID, Line: 2, Column: 9, Kind: collect.Definition},
			{SymbolID: 1, FileID: mainID, Line: 3, Column: 9, Kind: collect.Usage},
		},
		Files: []pathid.FilePathID{mainID, headerID},
		FileInfos: []collect.FileInformation{
			{FileID: mainID, Size: 40, ModTime: mod},
			{FileID: headerID, Size: 12, ModTime: mod},
		},
		Dependencies: []collect.SourceDependency{{Including: mainID, Included: headerID}},
		UsedMacros:   []collect.UsedMacro{{Name: "X", FileID: mainID}},
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"files", "units", "symbols", "source_locations", "used_macros",
		"source_dependencies", "unit_files", "unit_absent_paths", "metadata",
	}

	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	err := s.ReadOnly(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, "INSERT INTO metadata (key, value) VALUES ('k', 'v')")
		return err
	})
	require.Error(t, err)

	var n int
	require.NoError(t, s.ReadOnly(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT count(*) FROM metadata").Scan(&n)
	}))
	assert.Zero(t, n)

	require.NoError(t, s.SetMetadata("k", "v"))
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Files & path ids
// =============================================================================

func TestFetchFilePathID_StableAndDistinct(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a, err := s.FetchFilePathID("/src/a.h")
	require.NoError(t, err)
	again, err := s.FetchFilePathID("/src/a.h")
	require.NoError(t, err)
	b, err := s.FetchFilePathID("/src/b.h")
	require.NoError(t, err)

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	path, err := s.FetchFilePath(b)
	require.NoError(t, err)
	assert.Equal(t, "/src/b.h", path)
}

func TestFetchFilePath_Unknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.FetchFilePath(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_BacksPathCache(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	cache := pathid.NewCache(s)

	id, err := cache.FilePathID("/src/./x.h")
	require.NoError(t, err)

	// A second cache over the same store sees the same id.
	other := pathid.NewCache(s)
	path, err := other.FilePath(id)
	require.NoError(t, err)
	assert.Equal(t, "/src/x.h", path)
}

func TestFileByPath_Missing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f, err := s.FileByPath("/nope.h")
	require.NoError(t, err)
	assert.Nil(t, f)
}

// =============================================================================
// Commit
// =============================================================================

func TestCommitUnit_StoresFacts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")

	unitID, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "f1", IndexedAt: time.Now(), Result: res})
	require.NoError(t, err)
	require.Positive(t, unitID)

	u, err := s.UnitByPath("/src/main.c")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, unitID, u.ID)
	assert.Equal(t, "f1", u.Fingerprint)
	assert.False(t, u.LastIndexed.IsZero())

	syms, err := s.SymbolsByName("X")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "c:a.h@8@macro@X", syms[0].USR)

	locs, err := s.LocationsBySymbol(syms[0].ID, "")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "/src/a.h", locs[0].Path)
	assert.Equal(t, "definition", locs[0].Kind)
	assert.Equal(t, "/src/main.c", locs[1].Path)
	assert.Equal(t, 3, locs[1].Line)
	assert.Equal(t, "usage", locs[1].Kind)

	usages, err := s.LocationsBySymbol(syms[0].ID, "usage")
	require.NoError(t, err)
	assert.Len(t, usages, 1)

	used, err := s.UsedMacrosByFile(int64(mainID))
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, used)

	deps, err := s.DependenciesOf(int64(mainID))
	require.NoError(t, err)
	require.Len(t, deps, 1)
	dependents, err := s.DependentsOf(deps[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{int64(mainID)}, dependents)

	files, err := s.UnitFiles(unitID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/src/a.h", files[0].Path)
	assert.Equal(t, int64(12), files[0].Size)
	assert.Equal(t, time.Unix(1700000000, 0).UnixNano(), files[0].ModTime.UnixNano())

	header, err := s.FileByPath("/src/a.h")
	require.NoError(t, err)
	assert.Equal(t, int64(12), header.Size)
}

func TestCommitUnit_ReplacesPreviousFacts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")

	_, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "f1", Result: res})
	require.NoError(t, err)

	// Second pass: Y is gone, X is still used.
	delete(res.Symbols, 2)
	res.Locations = []collect.SourceLocationEntry{res.Locations[0], res.Locations[2]}
	_, err = s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "f2", Result: res})
	require.NoError(t, err)

	ys, err := s.SymbolsByName("Y")
	require.NoError(t, err)
	assert.Empty(t, ys, "orphaned symbols are pruned")

	xs, err := s.SymbolsByName("X")
	require.NoError(t, err)
	require.Len(t, xs, 1)
	locs, err := s.LocationsBySymbol(xs[0].ID, "")
	require.NoError(t, err)
	assert.Len(t, locs, 2, "no duplicated rows after recommit")

	units, err := s.Units()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "f2", units[0].Fingerprint)
}

func TestCommitBatch_SharedHeaderSharesSymbol(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	otherID := fileID(t, s, "/src/other.c")
	headerID := fileID(t, s, "/src/a.h")

	other := &collect.Result{
		Symbols: collect.SymbolEntries{7: {USR: "c:a.h@8@macro@X", Name: "X"}},
		Locations: []collect.SourceLocationEntry{
			{SymbolID: 7, FileID: headerID, Line: 1, Column: 9, Kind: collect.Definition},
		},
		Files:        []pathid.FilePathID{headerID, otherID},
		Dependencies: []collect.SourceDependency{{Including: otherID, Included: headerID}},
	}

	batch := NewBatchedStore(s, 0)
	_, err := batch.Add(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", Result: res})
	require.NoError(t, err)
	_, err = batch.Add(&UnitCommit{FileID: int64(otherID), Fingerprint: "b", Result: other})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())

	ids, err := batch.Flush()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 0, batch.Len())

	xs, err := s.SymbolsByName("X")
	require.NoError(t, err)
	require.Len(t, xs, 1)

	// The header definition is stored per unit but reported once.
	locs, err := s.LocationsBySymbol(xs[0].ID, "definition")
	require.NoError(t, err)
	assert.Len(t, locs, 1)

	dependents, err := s.DependentsOf(int64(headerID))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{int64(mainID), int64(otherID)}, dependents)
}

func TestBatchedStore_FlushesAtLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")

	batch := NewBatchedStore(s, 1)
	ids, err := batch.Add(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", Result: res})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, 0, batch.Len())

	ids, err = batch.Flush()
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestCommitUnit_UnknownSymbolRollsBack(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	res.Locations = append(res.Locations, collect.SourceLocationEntry{SymbolID: 42, FileID: mainID, Line: 1, Column: 1})

	_, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "x", Result: res})
	require.Error(t, err)

	units, err := s.Units()
	require.NoError(t, err)
	assert.Empty(t, units)
	names, err := s.SymbolNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCommitUnit_NilResult(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.CommitUnit(&UnitCommit{FileID: 1})
	assert.Error(t, err)
}

func TestDeleteUnit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	unitID, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", Result: res})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUnit(unitID))

	units, err := s.Units()
	require.NoError(t, err)
	assert.Empty(t, units)
	names, err := s.SymbolNames()
	require.NoError(t, err)
	assert.Empty(t, names)
	edges, err := s.DependencyEdges()
	require.NoError(t, err)
	assert.Empty(t, edges)

	// Files stay known so path ids remain stable.
	f, err := s.FileByPath("/src/main.c")
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestCommitUnit_AbsentPaths(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	commit := &UnitCommit{
		FileID:      int64(mainID),
		Fingerprint: "a",
		Result:      res,
		AbsentPaths: []string{"/src/gen.h", "/usr/include/gen.h"},
	}
	unitID, err := s.CommitUnit(commit)
	require.NoError(t, err)

	paths, err := s.UnitAbsentPaths(unitID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/gen.h", "/usr/include/gen.h"}, paths)

	ids, err := s.UnitsMissingPaths([]string{"/src/gen.h", "/src/other.h"})
	require.NoError(t, err)
	assert.Equal(t, []int64{unitID}, ids)

	// Re-indexing replaces the list.
	commit.AbsentPaths = nil
	_, err = s.CommitUnit(commit)
	require.NoError(t, err)
	paths, err = s.UnitAbsentPaths(unitID)
	require.NoError(t, err)
	assert.Empty(t, paths)
	ids, err = s.UnitsMissingPaths([]string{"/src/gen.h"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// =============================================================================
// Reads
// =============================================================================

func TestUnitsContainingFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	unitID, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", Result: res})
	require.NoError(t, err)

	header, err := s.FileByPath("/src/a.h")
	require.NoError(t, err)

	ids, err := s.UnitsContainingFiles([]int64{header.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{unitID}, ids)

	unrelated := fileID(t, s, "/src/zzz.h")
	ids, err = s.UnitsContainingFiles([]int64{int64(unrelated)})
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.UnitsContainingFiles(nil)
	require.NoError(t, err)
	assert.Nil(t, ids)

	units, err := s.UnitsByIDs([]int64{unitID})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "/src/main.c", units[0].Path)
}

func TestUnusedSymbols(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	_, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", Result: res})
	require.NoError(t, err)

	unused, err := s.UnusedSymbols()
	require.NoError(t, err)
	require.Len(t, unused, 1)
	assert.Equal(t, "Y", unused[0].Name)
}

func TestSymbolsInFileAndLocationsInFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	mainID, res := sampleResult(t, s, "c:")
	_, err := s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", Result: res})
	require.NoError(t, err)

	syms, err := s.SymbolsInFile(int64(mainID))
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "X", syms[0].Name)
	assert.Equal(t, "Y", syms[1].Name)

	locs, err := s.LocationsInFile(int64(mainID))
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, 2, locs[0].Line)
	assert.Equal(t, 3, locs[1].Line)

	sym, err := s.SymbolByUSR("c:main.c@30@macro@Y")
	require.NoError(t, err)
	require.NotNil(t, sym)
	missing, err := s.SymbolByUSR("c:@macro@NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	users, err := s.FilesUsingMacro("X")
	require.NoError(t, err)
	assert.Equal(t, []int64{int64(mainID)}, users)
}

func TestMetadataAndCounts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.Metadata("root")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata("root", "/src"))
	require.NoError(t, s.SetMetadata("root", "/src2"))
	v, ok, err := s.Metadata("root")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/src2", v)

	mainID, res := sampleResult(t, s, "c:")
	_, err = s.CommitUnit(&UnitCommit{FileID: int64(mainID), Fingerprint: "a", IndexedAt: time.Now(), Result: res})
	require.NoError(t, err)

	c, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Files)
	assert.Equal(t, 1, c.Units)
	assert.Equal(t, 2, c.Symbols)
	assert.Equal(t, 3, c.Locations)
	assert.Equal(t, 1, c.UsedMacros)
	assert.Equal(t, 1, c.Dependencies)
	assert.False(t, c.LastIndexed.IsZero())
}

// =============================================================================
// Fingerprint
// =============================================================================

func TestFingerprint(t *testing.T) {
	t.Parallel()
	mod := time.Unix(1700000000, 0)
	a := FileStamp{Path: "/a.h", Size: 1, ModTime: mod}
	b := FileStamp{Path: "/b.h", Size: 2, ModTime: mod}

	base := Fingerprint([]byte("int x;"), []FileStamp{a, b}, "")
	assert.Len(t, base, 16)
	assert.Equal(t, base, Fingerprint([]byte("int x;"), []FileStamp{b, a}, ""), "stamp order is irrelevant")
	assert.NotEqual(t, base, Fingerprint([]byte("int y;"), []FileStamp{a, b}, ""))

	touched := b
	touched.ModTime = mod.Add(time.Second)
	assert.NotEqual(t, base, Fingerprint([]byte("int x;"), []FileStamp{a, touched}, ""))

	grown := b
	grown.Size = 3
	assert.NotEqual(t, base, Fingerprint([]byte("int x;"), []FileStamp{a, grown}, ""))

	assert.NotEqual(t, base, Fingerprint([]byte("int x;"), []FileStamp{a, b}, "-Iinclude"), "configuration is part of the fingerprint")
}
