package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ppindex/internal/collect"
	"github.com/jward/ppindex/internal/pathid"
	"github.com/jward/ppindex/internal/store"
)

const cTestSource = `#ifndef CONFIG_H
#define CONFIG_H

#define VERSION 3
#define MAX(a, b) ((a) > (b) ? (a) : (b))

int limit(int x) { return MAX(x, VERSION); }

#endif
`

// newIndexedStore commits one unit: /src/main.c includes /src/config.h,
// which defines VERSION; main.c uses it.
func newIndexedStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	id := func(path string) pathid.FilePathID {
		v, err := s.FetchFilePathID(path)
		require.NoError(t, err)
		return pathid.FilePathID(v)
	}
	mainID, headerID := id("/src/main.c"), id("/src/config.h")
	mod := time.Unix(1700000000, 0)
	_, err = s.CommitUnit(&store.UnitCommit{
		FileID:      int64(mainID),
		Fingerprint: "fp",
		IndexedAt:   mod,
		Result: &collect.Result{
			Symbols: collect.SymbolEntries{
				1: {USR: "c:config.h@40@macro@VERSION", Name: "VERSION"},
			},
			Locations: []collect.SourceLocationEntry{
				{SymbolID: 1, FileID: headerID, Line: 4, Column: 9, Kind: collect.Definition},
				{SymbolID: 1, FileID: mainID, Line: 2, Column: 9, Kind: collect.Usage},
			},
			Files: []pathid.FilePathID{mainID, headerID},
			FileInfos: []collect.FileInformation{
				{FileID: mainID, Size: 30, ModTime: mod},
				{FileID: headerID, Size: 60, ModTime: mod},
			},
			Dependencies: []collect.SourceDependency{{Including: mainID, Included: headerID}},
			UsedMacros:   []collect.UsedMacro{{Name: "VERSION", FileID: mainID}},
		},
	})
	require.NoError(t, err)
	return s
}

// =============================================================================
// Source helpers
// =============================================================================

func TestRunSource_ParseSrcAndQuery(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")

	script := `
tree := parse_src(source)
root := tree.RootNode()
assert(root.Type() == "translation_unit", 'expected translation_unit, got {root.Type()}')

names := []
for _, m := range query("(preproc_def name: (identifier) @name)", root) {
    names.append(node_text(m["name"]))
}
for _, m := range query("(preproc_function_def name: (identifier) @name)", root) {
    names.append(node_text(m["name"]))
}
names
`
	got, err := rt.RunSource(context.Background(), script, map[string]any{"source": cTestSource})
	require.NoError(t, err)
	assert.Equal(t, []any{"CONFIG_H", "VERSION", "MAX"}, got)
}

func TestRunSource_ParseFileDefaultsLanguage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.h")
	require.NoError(t, os.WriteFile(path, []byte(cTestSource), 0o644))
	rt := NewRuntime(nil, "")

	script := `
root := parse(path).RootNode()
guard := root.NamedChild(0)
assert(guard.Type() == "preproc_ifdef", 'expected preproc_ifdef, got {guard.Type()}')
node_text(node_child(guard, "name"))
`
	got, err := rt.RunSource(context.Background(), script, map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "CONFIG_H", got)
}

func TestRunSource_NodeChildMissingIsNil(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")

	script := `
root := parse_src("int x;").RootNode()
node_child(root, "nonexistent") == nil
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestRunSource_ParseUnsupportedLanguage(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")

	_, err := rt.RunSource(context.Background(), `parse_src("x", "cobol")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestRunSource_QueryInvalidPattern(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")

	_, err := rt.RunSource(context.Background(), `query("(((", parse_src("int x;").RootNode())`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestRunSource_Directives(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")

	script := `
src := "#ifndef A_H\n#define A_H\n#include <stdio.h>\n#pragma once\n#endif\n"
out := []
for _, d := range directives(parse_src(src).RootNode()) {
    out.append(string(d["line"]) + ":" + d["kind"] + ":" + d["name"])
}
out
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"1:ifndef:A_H", "2:define:A_H", "3:include:stdio.h", "4:pragma:once"}, got)
}

func TestRunSource_LogUsesLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rt := NewRuntime(nil, "", WithRuntimeLogger(logger))

	_, err := rt.RunSource(context.Background(), `log.Info("hello from script")`, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "hello from script")
	assert.Contains(t, buf.String(), "source=script")
}

// =============================================================================
// Index host functions
// =============================================================================

func TestIndexFuncs_NotRegisteredWithoutStore(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")
	globals := rt.buildGlobals(nil)
	assert.NotContains(t, globals, "macros_by_name")
	assert.NotContains(t, globals, "db_query")
	assert.Contains(t, globals, "parse")
}

func TestIndexFuncs_Macros(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newIndexedStore(t), "")

	script := `
syms := macros_by_name("VERSION")
assert(len(syms) == 1, 'expected 1 chain, got {len(syms)}')
sym := syms[0]
assert(sym["usr"] == "c:config.h@40@macro@VERSION")

defs := macro_locations(sym["id"], "definition")
assert(len(defs) == 1)
assert(defs[0]["file"] == "/src/config.h")
assert(defs[0]["line"] == 4)

every := macro_locations(sym["id"])
assert(len(every) == 2, 'expected 2 occurrences, got {len(every)}')
macro_names()
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"VERSION"}, got)
}

func TestIndexFuncs_FilesAndIncludes(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newIndexedStore(t), "")

	script := `
assert(len(files()) == 2)
u := units()
assert(len(u) == 1)
assert(u[0]["path"] == "/src/main.c")
assert(u[0]["fingerprint"] == "fp")

used := used_macros("/src/main.c")
assert(len(used) == 1 && used[0] == "VERSION")
assert(len(used_macros("/src/nope.c")) == 0)
dependents := dependents_of("/src/config.h")
assert(len(dependents) == 1 && dependents[0] == "/src/main.c")

edges := include_edges()
assert(len(edges) == 1)
assert(edges[0]["to"] == "/src/config.h")
dependencies_of("/src/main.c")
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"/src/config.h"}, got)
}

func TestIndexFuncs_DBQuery(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newIndexedStore(t), "")

	got, err := rt.RunSource(context.Background(),
		`db_query("SELECT name FROM used_macros WHERE name = ?", "VERSION")[0]["name"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "VERSION", got)

	_, err = rt.RunSource(context.Background(), `db_query("DELETE FROM symbols")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only SELECT")

	got, err = rt.RunSource(context.Background(),
		`db_query("WITH n AS (SELECT 1) SELECT count(*) AS c FROM symbols")[0]["c"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestIndexFuncs_DBQueryCannotWrite(t *testing.T) {
	t.Parallel()
	s := newIndexedStore(t)
	rt := NewRuntime(s, "")

	for _, src := range []string{
		`db_query("WITH gone AS (SELECT 1) DELETE FROM symbols")`,
		`db_query("SELECT 1; DELETE FROM symbols")`,
	} {
		t.Run(src, func(t *testing.T) {
			_, _ = rt.RunSource(context.Background(), src, nil)
			names, err := s.SymbolNames()
			require.NoError(t, err)
			assert.Equal(t, []string{"VERSION"}, names)
		})
	}

	_, err := rt.RunSource(context.Background(), `db_query("WITH gone AS (SELECT 1) DELETE FROM symbols")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")

	// The pooled connection is writable again afterwards.
	require.NoError(t, s.SetMetadata("after", "yes"))
}

func TestIndexFuncs_ArgumentErrors(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(newIndexedStore(t), "")

	for _, src := range []string{
		`macros_by_name()`,
		`macros_by_name(1)`,
		`macro_locations("x")`,
		`used_macros()`,
	} {
		_, err := rt.RunSource(context.Background(), src, nil)
		assert.Error(t, err, src)
	}
}

// =============================================================================
// Script loading
// =============================================================================

func TestRunScript_LoadsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.risor"), []byte(`1 + 1`), 0o644))

	rt := NewRuntime(nil, dir)
	got, err := rt.RunScript(context.Background(), "report.risor", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestRunScript_MissingFile(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, t.TempDir())
	_, err := rt.RunScript(context.Background(), "missing.risor", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading script")
}

func TestRunSource_NilResult(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(nil, "")
	got, err := rt.RunSource(context.Background(), `x := 1`, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"reports/unused.risor": &fstest.MapFile{Data: []byte(`"ok"`)},
	}
	rt := NewRuntime(nil, "", WithRuntimeFS(fsys))

	src, err := rt.LoadScript("/reports/unused.risor")
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, src)

	_, err = rt.LoadScript("reports/missing.risor")
	require.Error(t, err)
}

func TestImport_LocalImporter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0o644))

	rt := NewRuntime(nil, dir)
	got, err := rt.RunSource(context.Background(), "import helpers\nhelpers.double(21)", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"report.risor": &fstest.MapFile{Data: []byte(`
func count_macros() {
	return len(macro_names())
}
`)},
	}
	rt := NewRuntime(newIndexedStore(t), "", WithRuntimeFS(fsys))

	got, err := rt.RunSource(context.Background(), "import report\nreport.count_macros()", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}
