package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/ppindex/internal/pathid"
	"github.com/jward/ppindex/internal/store"
)

// All index host functions are read-only. Results are plain lists and maps
// so scripts never hold Go pointers into the store.

// macros_by_name(name) → [{id, usr, name}]
func makeMacrosByNameFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("macros_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("macros_by_name", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("macros_by_name: %v", err)
		}
		syms, err := r.SymbolsByName(name)
		if err != nil {
			return object.Errorf("macros_by_name: %v", err)
		}
		return symbolsToList(syms)
	})
}

// macro_names() → [name]
func makeMacroNamesFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("macro_names", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("macro_names", 0, len(args))
		}
		names, err := r.SymbolNames()
		if err != nil {
			return object.Errorf("macro_names: %v", err)
		}
		return stringsToList(names)
	})
}

// macro_locations(symbol_id[, kind]) → [{file, line, col, kind}]
func makeMacroLocationsFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("macro_locations", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("macro_locations: expected 1 or 2 arguments, got %d", len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("macro_locations: %v", err)
		}
		kind := ""
		if len(args) == 2 {
			if kind, err = toString(args[1]); err != nil {
				return object.Errorf("macro_locations: %v", err)
			}
		}
		locs, err := r.LocationsBySymbol(id, kind)
		if err != nil {
			return object.Errorf("macro_locations: %v", err)
		}
		items := make([]object.Object, 0, len(locs))
		for _, l := range locs {
			items = append(items, object.NewMap(map[string]object.Object{
				"file": object.NewString(l.Path),
				"line": object.NewInt(int64(l.Line)),
				"col":  object.NewInt(int64(l.Col)),
				"kind": object.NewString(l.Kind),
			}))
		}
		return object.NewList(items)
	})
}

// used_macros(path) → [name]; empty for an unknown file.
func makeUsedMacrosFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("used_macros", func(ctx context.Context, args ...object.Object) object.Object {
		f, errObj := fileArg(r, "used_macros", args)
		if errObj != nil {
			return errObj
		}
		if f == nil {
			return object.NewList([]object.Object{})
		}
		names, err := r.UsedMacrosByFile(f.ID)
		if err != nil {
			return object.Errorf("used_macros: %v", err)
		}
		return stringsToList(names)
	})
}

// files() → [{id, path, size}]
func makeFilesFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		files, err := r.Files()
		if err != nil {
			return object.Errorf("files: %v", err)
		}
		items := make([]object.Object, 0, len(files))
		for _, f := range files {
			items = append(items, object.NewMap(map[string]object.Object{
				"id":   object.NewInt(f.ID),
				"path": object.NewString(f.Path),
				"size": object.NewInt(f.Size),
			}))
		}
		return object.NewList(items)
	})
}

// units() → [{id, path, fingerprint}]
func makeUnitsFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("units", func(ctx context.Context, args ...object.Object) object.Object {
		units, err := r.Units()
		if err != nil {
			return object.Errorf("units: %v", err)
		}
		items := make([]object.Object, 0, len(units))
		for _, u := range units {
			items = append(items, object.NewMap(map[string]object.Object{
				"id":          object.NewInt(u.ID),
				"path":        object.NewString(u.Path),
				"fingerprint": object.NewString(u.Fingerprint),
			}))
		}
		return object.NewList(items)
	})
}

// dependencies_of(path) → [path]
func makeDependenciesOfFn(r store.Reader) *object.Builtin {
	return makeNeighboursFn(r, "dependencies_of", r.DependenciesOf)
}

// dependents_of(path) → [path]
func makeDependentsOfFn(r store.Reader) *object.Builtin {
	return makeNeighboursFn(r, "dependents_of", r.DependentsOf)
}

func makeNeighboursFn(r store.Reader, name string, fetch func(int64) ([]int64, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		f, errObj := fileArg(r, name, args)
		if errObj != nil {
			return errObj
		}
		if f == nil {
			return object.NewList([]object.Object{})
		}
		ids, err := fetch(f.ID)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		paths := make([]string, 0, len(ids))
		for _, id := range ids {
			nf, err := r.FileByID(id)
			if err != nil {
				return object.Errorf("%s: %v", name, err)
			}
			if nf != nil {
				paths = append(paths, nf.Path)
			}
		}
		return stringsToList(paths)
	})
}

// include_edges() → [{from, to}]
func makeIncludeEdgesFn(r store.Reader) *object.Builtin {
	return object.NewBuiltin("include_edges", func(ctx context.Context, args ...object.Object) object.Object {
		files, err := r.Files()
		if err != nil {
			return object.Errorf("include_edges: %v", err)
		}
		paths := make(map[int64]string, len(files))
		for _, f := range files {
			paths[f.ID] = f.Path
		}
		edges, err := r.DependencyEdges()
		if err != nil {
			return object.Errorf("include_edges: %v", err)
		}
		items := make([]object.Object, 0, len(edges))
		for _, e := range edges {
			items = append(items, object.NewMap(map[string]object.Object{
				"from": object.NewString(paths[e.IncludingFileID]),
				"to":   object.NewString(paths[e.IncludedFileID]),
			}))
		}
		return object.NewList(items)
	})
}

// db_query(sql, args...) → [{column: value}]
//
// The statement runs on a query_only connection, so anything that would
// write fails inside SQLite. Statements must start with SELECT or WITH.
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		if !isReadStatement(sqlStr) {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}
		params := make([]any, 0, len(args)-1)
		for _, arg := range args[1:] {
			params = append(params, sqlParam(arg))
		}

		var results []object.Object
		err = s.ReadOnly(ctx, func(conn *sql.Conn) error {
			rows, err := conn.QueryContext(ctx, sqlStr, params...)
			if err != nil {
				return err
			}
			defer rows.Close()
			results, err = rowsToObjects(rows)
			return err
		})
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		return object.NewList(results)
	})
}

func isReadStatement(q string) bool {
	head := strings.ToUpper(strings.TrimSpace(q))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}

func sqlParam(arg object.Object) any {
	switch v := arg.(type) {
	case *object.Int:
		return v.Value()
	case *object.Float:
		return v.Value()
	case *object.String:
		return v.Value()
	case *object.Bool:
		return v.Value()
	case *object.NilType:
		return nil
	}
	return fmt.Sprintf("%v", arg)
}

// rowsToObjects turns every row into a map keyed by column name.
func rowsToObjects(rows *sql.Rows) ([]object.Object, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := []object.Object{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]object.Object, len(cols))
		for i, col := range cols {
			row[col] = sqlValueToObject(values[i])
		}
		out = append(out, object.NewMap(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// fileArg resolves the single path argument of a host function. A path the
// index does not know yields a nil file and no error object.
func fileArg(r store.Reader, name string, args []object.Object) (*store.File, object.Object) {
	if len(args) != 1 {
		return nil, object.NewArgsError(name, 1, len(args))
	}
	path, err := toString(args[0])
	if err != nil {
		return nil, object.Errorf("%s: %v", name, err)
	}
	f, err := r.FileByPath(pathid.Normalize(path))
	if err != nil {
		return nil, object.Errorf("%s: %v", name, err)
	}
	return f, nil
}

func toInt64(obj object.Object) (int64, error) {
	switch v := obj.(type) {
	case *object.Int:
		return v.Value(), nil
	case *object.Float:
		return int64(v.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", fmt.Errorf("expected string, got %s", obj.Type())
	}
	return s.Value(), nil
}

func sqlValueToObject(v any) object.Object {
	switch val := v.(type) {
	case nil:
		return object.Nil
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case []byte:
		return object.NewString(string(val))
	case bool:
		return object.NewBool(val)
	}
	return object.NewString(fmt.Sprintf("%v", v))
}

func symbolsToList(syms []*store.Symbol) object.Object {
	items := make([]object.Object, 0, len(syms))
	for _, s := range syms {
		items = append(items, object.NewMap(map[string]object.Object{
			"id":   object.NewInt(s.ID),
			"usr":  object.NewString(s.USR),
			"name": object.NewString(s.Name),
		}))
	}
	return object.NewList(items)
}

func stringsToList(ss []string) object.Object {
	items := make([]object.Object, 0, len(ss))
	for _, s := range ss {
		items = append(items, object.NewString(s))
	}
	return object.NewList(items)
}
