package ppindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ppindex/internal/pp"
)

// macroNames returns the names of the chains with an occurrence in file.
func macroNames(t *testing.T, q *QueryBuilder, file string) []string {
	t.Helper()
	syms, err := q.store.SymbolsInFile(mustFileID(t, q, file))
	require.NoError(t, err)
	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
	}
	return names
}

func mustFileID(t *testing.T, q *QueryBuilder, file string) int64 {
	t.Helper()
	f, err := q.fileByPath(file)
	require.NoError(t, err)
	require.NotNil(t, f, "file %s not indexed", file)
	return f.ID
}

func TestIntegration_HeaderEditReindexes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"api.h":  "#pragma once\n#define API_VERSION 1\n",
		"main.c": "#include \"api.h\"\nint v = API_VERSION;\n",
	})
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx, root))

	header := filepath.Join(root, "api.h")
	assert.Equal(t, []string{"API_VERSION"}, macroNames(t, e.Query(), header))

	// A header edit changes the unit's fingerprint even though main.c is
	// untouched.
	require.NoError(t, os.WriteFile(header, []byte("#pragma once\n#define API_VERSION 2\n#define API_EXTRA 3\n"), 0o644))

	affected, err := e.UnitsAffectedBy([]string{header})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "main.c")}, affected)

	require.NoError(t, e.IndexUnits(ctx, affected))
	assert.ElementsMatch(t, []string{"API_VERSION", "API_EXTRA"}, macroNames(t, e.Query(), header))

	unused, err := e.Query().UnusedMacros(Pagination{})
	require.NoError(t, err)
	require.Len(t, unused.Items, 1)
	assert.Equal(t, "API_EXTRA", unused.Items[0].Name)
}

func TestIntegration_IndexDirectory_RemovesStaleUnits(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.c": "#define KEEP 1\nint k = KEEP;\n",
		"gone.c": "#define GONE 1\nint g = GONE;\n",
	})
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx, root))

	units, err := e.Store().Units()
	require.NoError(t, err)
	require.Len(t, units, 2)

	require.NoError(t, os.Remove(filepath.Join(root, "gone.c")))
	require.NoError(t, e.IndexDirectory(ctx, root))

	units, err = e.Store().Units()
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, filepath.Join(root, "keep.c"), units[0].Path)

	gone, err := e.Query().Macro("GONE")
	require.NoError(t, err)
	assert.Empty(t, gone, "facts of a removed unit are pruned")
}

func TestIntegration_IndexDirectory_KeepsUnitsOutsideRoot(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeTree(t, a, map[string]string{"a.c": "int a;\n"})
	writeTree(t, b, map[string]string{"b.c": "int b;\n"})
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx, a))
	require.NoError(t, e.IndexDirectory(ctx, b))

	units, err := e.Store().Units()
	require.NoError(t, err)
	assert.Len(t, units, 2)
}

func TestIntegration_SeparateChainsPerDefinition(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"common.h": "#pragma once\n#define SHARED 1\n",
		"one.c":    "#include \"common.h\"\n#define LOCAL 1\nint a = LOCAL + SHARED;\n",
		"two.c":    "#include \"common.h\"\n#define LOCAL 2\nint b = LOCAL + SHARED;\n",
		"redef.c":  "#define FLIP 1\nint x = FLIP;\n#undef FLIP\n#define FLIP 2\nint y = FLIP;\n",
	})
	e := newTestEngine(t)
	require.NoError(t, e.IndexDirectory(context.Background(), root))
	q := e.Query()

	shared, err := q.Macro("SHARED")
	require.NoError(t, err)
	assert.Len(t, shared, 1, "one header definition is one chain across units")

	local, err := q.Macro("LOCAL")
	require.NoError(t, err)
	assert.Len(t, local, 2, "definitions in different files are different chains")

	flips, err := q.Macro("FLIP")
	require.NoError(t, err)
	require.Len(t, flips, 2, "a redefinition after #undef starts a new chain")

	first, err := q.MacroDetail(flips[0].ID)
	require.NoError(t, err)
	second, err := q.MacroDetail(flips[1].ID)
	require.NoError(t, err)
	lines := map[int]*MacroDetail{first.Definitions[0].Line: first, second.Definitions[0].Line: second}
	require.Contains(t, lines, 1)
	require.Contains(t, lines, 4)
	assert.Len(t, lines[1].Undefinitions, 1)
	assert.Equal(t, 2, lines[1].Usages[0].Line)
	assert.Empty(t, lines[4].Undefinitions)
	assert.Equal(t, 5, lines[4].Usages[0].Line)
}

func TestIntegration_SameNamedHeadersStayDistinct(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/config.h": "#define VERSION 1\n",
		"a/x.c":      "#include \"config.h\"\nint x = VERSION;\n",
		"b/config.h": "#define VERSION 1\n",
		"b/y.c":      "#include \"config.h\"\nint y = VERSION;\n",
	})
	e := newTestEngine(t)
	require.NoError(t, e.IndexDirectory(context.Background(), root))

	macros, err := e.Query().Macro("VERSION")
	require.NoError(t, err)
	require.Len(t, macros, 2)
	assert.NotEqual(t, macros[0].USR, macros[1].USR)
	var dirs []string
	for _, m := range macros {
		require.Len(t, m.Definitions, 1)
		dirs = append(dirs, filepath.Base(filepath.Dir(m.Definitions[0].File)))
	}
	assert.ElementsMatch(t, []string{"a", "b"}, dirs)
}

func TestIntegration_MissingIncludeIsNotFatal(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.c": "#include \"missing.h\"\n#define OK 1\nint v = OK;\n",
	})
	e := newTestEngine(t)
	require.NoError(t, e.IndexDirectory(context.Background(), root))

	deps, err := e.Query().Dependencies(filepath.Join(root, "main.c"))
	require.NoError(t, err)
	assert.Empty(t, deps)

	used, err := e.Query().UsedMacros(filepath.Join(root, "main.c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, used)
}

func TestIntegration_CreatedIncludeReindexes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.c": "#include \"late.h\"\nint v = LATE;\n",
	})
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx, root))

	mainFile := filepath.Join(root, "main.c")
	late := filepath.Join(root, "late.h")
	deps, err := e.Query().Dependencies(mainFile)
	require.NoError(t, err)
	assert.Empty(t, deps)

	writeTree(t, root, map[string]string{"late.h": "#define LATE 1\n"})

	affected, err := e.UnitsAffectedBy([]string{late})
	require.NoError(t, err)
	assert.Equal(t, []string{mainFile}, affected)

	require.NoError(t, e.IndexDirectory(ctx, root))
	deps, err = e.Query().Dependencies(mainFile)
	require.NoError(t, err)
	assert.Equal(t, []string{late}, deps)

	used, err := e.Query().UsedMacros(mainFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"LATE"}, used)
}

func TestIntegration_ShadowingIncludeReindexes(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	writeTree(t, root, map[string]string{
		"src/main.c":   "#include <cfg.h>\n",
		"second/cfg.h": "#define FROM_SECOND 1\n",
		"first/.keep":  "",
	})
	e := newTestEngine(t, WithPreprocessorOptions(pp.Config{IncludePaths: []string{first, second}}))
	ctx := context.Background()
	require.NoError(t, e.IndexDirectory(ctx, root))

	mainFile := filepath.Join(root, "src", "main.c")
	deps, err := e.Query().Dependencies(mainFile)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(second, "cfg.h")}, deps)

	writeTree(t, root, map[string]string{"first/cfg.h": "#define FROM_FIRST 1\n"})
	require.NoError(t, e.IndexDirectory(ctx, root))

	deps, err = e.Query().Dependencies(mainFile)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(first, "cfg.h")}, deps)
}

func TestIntegration_ConfigChangeReindexes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.c": "#ifdef FEATURE\nint v = FEATURE;\n#endif\n",
	})
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	fingerprint := func(e *Engine) string {
		units, err := e.store.Units()
		require.NoError(t, err)
		require.Len(t, units, 1)
		return units[0].Fingerprint
	}

	e, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, e.IndexDirectory(ctx, root))
	before := fingerprint(e)
	require.NoError(t, e.Close())

	e, err = New(dbPath, WithPreprocessorOptions(pp.Config{Defines: []string{"FEATURE=2"}}))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.IndexDirectory(ctx, root))
	assert.NotEqual(t, before, fingerprint(e), "unit was skipped under a new configuration")
}
