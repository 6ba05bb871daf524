package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ppindex/internal/config"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "src", "drivers")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))

	err := validateFormat("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json or text")
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	file := filepath.Join(dir, "a.c")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestParseIntArg(t *testing.T) {
	t.Parallel()
	n, err := parseIntArg("42", "macro id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = parseIntArg("-1", "macro id")
	assert.Error(t, err)
	_, err = parseIntArg("x", "macro id")
	assert.ErrorContains(t, err, "invalid macro id")
}

func TestParseVars(t *testing.T) {
	t.Parallel()
	got, err := parseVars([]string{"name=SQUARE", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "SQUARE", "empty": ""}, got)

	_, err = parseVars([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseVars([]string{"=x"})
	assert.Error(t, err)
}

func TestResolveDBPath(t *testing.T) {
	t.Parallel()
	c := &cli{}
	cfg := config.Default()
	assert.Equal(t, filepath.Join("/repo", ".ppindex", "index.db"), c.resolveDBPath("/repo", cfg))

	c.db = "custom.db"
	assert.Equal(t, filepath.Join("/repo", "custom.db"), c.resolveDBPath("/repo", cfg))
	c.db = "/tmp/abs.db"
	assert.Equal(t, "/tmp/abs.db", c.resolveDBPath("/repo", cfg))
}

func TestOutputResultText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	total := 3
	err := outputResultText(&buf, CLIResult{
		Results: []CLIMacro{{
			ID: 7, Name: "SQUARE", USR: "c:util.h@40@macro@SQUARE",
			Definitions: []CLILocation{{File: "/p/util.h", Line: 3, Col: 9, Kind: "definition"}},
		}},
		TotalCount: &total,
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "SQUARE")
	assert.Contains(t, out, "/p/util.h:3:9")
	assert.Contains(t, out, "Showing 1 of 3 results")
}

func TestOutputResultText_IncludeTree(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tree := &CLIIncludeTree{Path: "main.c", Children: []*CLIIncludeTree{
		{Path: "a.h", Children: []*CLIIncludeTree{{Path: "b.h"}}},
		{Path: "b.h", Repeated: true},
	}}
	require.NoError(t, outputResultText(&buf, CLIResult{Results: tree}))
	assert.Equal(t, "main.c\n  a.h\n    b.h\n  b.h (*)\n", buf.String())
}

func TestOutputResultText_Cycles(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: [][]string{{"a.h", "b.h", "a.h"}}}))
	assert.Equal(t, "a.h -> b.h -> a.h\n", buf.String())
}

func TestOutputResultText_Unsupported(t *testing.T) {
	t.Parallel()
	err := outputResultText(&bytes.Buffer{}, CLIResult{Results: 42})
	assert.ErrorContains(t, err, "unsupported result type")
}
