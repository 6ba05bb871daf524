// Package ppindex builds a persistent index of C preprocessor macro usage.
//
// # Pipeline
//
// For every translation unit, a tree-sitter driven preprocessor walks the
// unit and its includes in source order and reports each directive and
// macro expansion to a collector. The collector turns those events into
// index facts:
//
//   - macro symbols, one per definition chain, identified by a USR
//   - occurrences of each symbol (definition, undefinition, usage)
//   - the files entered and their size and modification time
//   - include edges
//   - the macros each file uses, whether or not a definition was visible
//
// The facts of one unit are committed to SQLite in a single transaction,
// replacing whatever the unit contributed before.
//
// # Usage
//
//	e, err := ppindex.New(".ppindex/index.db",
//		ppindex.WithPreprocessorOptions(pp.Config{IncludePaths: []string{"include"}}))
//	if err != nil { ... }
//	defer e.Close()
//
//	err = e.IndexDirectory(ctx, "path/to/project")
//
//	q := e.Query()
//	chains, err := q.Macro("CONFIG_DEBUG")
//
// # Incremental Indexing
//
// Each unit carries a fingerprint over its main file content, the size
// and modification time of every file it entered and the preprocessor
// configuration. The include paths that were searched and found empty are
// kept too, so a header created later makes the unit stale.
// [Engine.IndexUnits] skips units that are not stale; [WithForce] disables
// that. [Engine.UnitsAffectedBy] maps changed files back to the units that
// need re-indexing.
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] answers macro lookups
// ([QueryBuilder.Macro], [QueryBuilder.References]), per-file questions
// ([QueryBuilder.UsedMacros]), unused definitions and include graph
// questions ([QueryBuilder.TransitiveIncludes], [QueryBuilder.IncludeCycles]).
package ppindex
