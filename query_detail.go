package ppindex

import (
	"fmt"
	"sort"
	"time"
)

// MacroDetail bundles one definition chain with all of its occurrences.
type MacroDetail struct {
	MacroResult
	Undefinitions []Location
	Usages        []Location
	UsedIn        []string // files whose used-macro list names the macro
}

// MacroDetail returns the detail of one symbol. Returns nil with no error
// if the symbol ID does not exist.
func (q *QueryBuilder) MacroDetail(symbolID int64) (*MacroDetail, error) {
	sym, err := q.store.SymbolByID(symbolID)
	if err != nil {
		return nil, fmt.Errorf("macro detail: %w", err)
	}
	if sym == nil {
		return nil, nil
	}

	all, err := q.References(sym.ID, "")
	if err != nil {
		return nil, fmt.Errorf("macro detail: %w", err)
	}
	d := &MacroDetail{MacroResult: MacroResult{Symbol: *sym}}
	for _, l := range all {
		switch l.Kind {
		case "definition":
			d.Definitions = append(d.Definitions, l)
		case "undefinition":
			d.Undefinitions = append(d.Undefinitions, l)
		default:
			d.Usages = append(d.Usages, l)
		}
	}

	ids, err := q.store.FilesUsingMacro(sym.Name)
	if err != nil {
		return nil, fmt.Errorf("macro detail: %w", err)
	}
	for _, id := range ids {
		p, err := q.store.FetchFilePath(id)
		if err != nil {
			return nil, fmt.Errorf("macro detail: %w", err)
		}
		d.UsedIn = append(d.UsedIn, p)
	}
	sort.Strings(d.UsedIn)
	return d, nil
}

// MacroUse counts the files that use a macro name.
type MacroUse struct {
	Name  string
	Files int
}

// Summary is a project overview.
type Summary struct {
	Files        int
	Units        int
	Macros       int // definition chains
	Occurrences  int
	UsedMacros   int // distinct (name, file) pairs
	Dependencies int // distinct include edges
	LastIndexed  time.Time
	TopUsed      []MacroUse
}

// Summary returns table sizes and the n most widely used macro names.
func (q *QueryBuilder) Summary(n int) (*Summary, error) {
	c, err := q.store.Counts()
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	s := &Summary{
		Files:        c.Files,
		Units:        c.Units,
		Macros:       c.Symbols,
		Occurrences:  c.Locations,
		UsedMacros:   c.UsedMacros,
		Dependencies: c.Dependencies,
		LastIndexed:  c.LastIndexed,
		TopUsed:      []MacroUse{},
	}
	if n <= 0 {
		return s, nil
	}
	rows, err := q.store.DB().Query(
		`SELECT name, COUNT(DISTINCT file_id) AS files FROM used_macros
		 GROUP BY name ORDER BY files DESC, name LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: top used: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mu MacroUse
		if err := rows.Scan(&mu.Name, &mu.Files); err != nil {
			return nil, fmt.Errorf("summary: scan: %w", err)
		}
		s.TopUsed = append(s.TopUsed, mu)
	}
	return s, rows.Err()
}
