package ppindex

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hbollon/go-edlib"

	"github.com/jward/ppindex/internal/pathid"
	"github.com/jward/ppindex/internal/store"
)

// QueryBuilder provides the read API over the Store.
type QueryBuilder struct {
	store *store.Store
}

// Location is one occurrence of a macro.
type Location struct {
	File string
	Line int
	Col  int
	Kind string // "definition", "undefinition" or "usage"
}

// MacroResult is one definition chain of a macro together with where it was
// defined.
type MacroResult struct {
	store.Symbol
	Definitions []Location
}

func toLocations(locs []*store.Location) []Location {
	out := make([]Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, Location{File: l.Path, Line: l.Line, Col: l.Col, Kind: l.Kind})
	}
	return out
}

// Macro returns every definition chain named name. A name redefined after
// an #undef, or defined differently by two units, has several chains.
func (q *QueryBuilder) Macro(name string) ([]*MacroResult, error) {
	syms, err := q.store.SymbolsByName(name)
	if err != nil {
		return nil, fmt.Errorf("macro: %w", err)
	}
	out := make([]*MacroResult, 0, len(syms))
	for _, sym := range syms {
		defs, err := q.store.LocationsBySymbol(sym.ID, "definition")
		if err != nil {
			return nil, fmt.Errorf("macro: definitions: %w", err)
		}
		out = append(out, &MacroResult{Symbol: *sym, Definitions: toLocations(defs)})
	}
	return out, nil
}

// suggestionThreshold is the minimum Jaro-Winkler similarity for a name to
// be offered as a suggestion.
const suggestionThreshold = 0.8

// Suggest returns up to n indexed macro names close to name, best first.
func (q *QueryBuilder) Suggest(name string, n int) ([]string, error) {
	names, err := q.store.SymbolNames()
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	type scored struct {
		name  string
		score float32
	}
	var candidates []scored
	for _, candidate := range names {
		if candidate == name {
			continue
		}
		score, err := edlib.StringsSimilarity(name, candidate, edlib.JaroWinkler)
		if err != nil || score < suggestionThreshold {
			continue
		}
		candidates = append(candidates, scored{candidate, score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.name)
	}
	return out, nil
}

// References returns the occurrences of a symbol. kind filters by usage
// kind; empty means all.
func (q *QueryBuilder) References(symbolID int64, kind string) ([]Location, error) {
	locs, err := q.store.LocationsBySymbol(symbolID, kind)
	if err != nil {
		return nil, fmt.Errorf("references: %w", err)
	}
	return toLocations(locs), nil
}

// ReferencesByName returns the occurrences of every chain named name,
// ordered by file and position.
func (q *QueryBuilder) ReferencesByName(name, kind string) ([]Location, error) {
	syms, err := q.store.SymbolsByName(name)
	if err != nil {
		return nil, fmt.Errorf("references by name: %w", err)
	}
	var out []Location
	for _, sym := range syms {
		locs, err := q.References(sym.ID, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, locs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Col < out[j].Col
	})
	return out, nil
}

// UsedMacros returns the names of macros referenced in file, whether or
// not a definition was visible. Returns nil with no error for an unknown
// file.
func (q *QueryBuilder) UsedMacros(file string) ([]string, error) {
	f, err := q.fileByPath(file)
	if err != nil || f == nil {
		return nil, err
	}
	names, err := q.store.UsedMacrosByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("used macros: %w", err)
	}
	return names, nil
}

// OccurrencesInFile returns every macro occurrence recorded in file.
func (q *QueryBuilder) OccurrencesInFile(file string) ([]Location, error) {
	f, err := q.fileByPath(file)
	if err != nil || f == nil {
		return nil, err
	}
	locs, err := q.store.LocationsInFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("occurrences in file: %w", err)
	}
	return toLocations(locs), nil
}

// fileByPath accepts paths relative to the working directory.
func (q *QueryBuilder) fileByPath(file string) (*store.File, error) {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	f, err := q.store.FileByPath(pathid.Normalize(file))
	if err != nil {
		return nil, fmt.Errorf("lookup file: %w", err)
	}
	return f, nil
}
