package ppindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/jward/ppindex/internal/store"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// --- Internal Helpers ---

// normalizePathPrefix ensures a path prefix ends with "/" for correct LIKE matching.
// "src/net" -> "src/net/" to prevent matching "src/network/".
func normalizePathPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

// escapeLike escapes SQL LIKE wildcards in s.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func prefixClause(column, prefix string) (string, []any) {
	if prefix == "" {
		return "", nil
	}
	return "WHERE " + column + " LIKE ? ESCAPE '\\'", []any{escapeLike(normalizePathPrefix(prefix)) + "%"}
}

// --- Discovery ---

// Files returns known files ordered by path, optionally restricted to a
// directory prefix.
func (q *QueryBuilder) Files(pathPrefix string, page Pagination) (*PagedResult[store.File], error) {
	page = page.normalize()
	where, args := prefixClause("path", pathPrefix)

	var totalCount int
	if err := q.store.DB().QueryRow("SELECT COUNT(*) FROM files "+where, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("files: count: %w", err)
	}

	rows, err := q.store.DB().Query(
		"SELECT id, path, size, mod_time FROM files "+where+" ORDER BY path LIMIT ? OFFSET ?",
		append(append([]any{}, args...), page.Limit, page.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("files: query: %w", err)
	}
	defer rows.Close()

	items := []store.File{}
	for rows.Next() {
		var f store.File
		var mod int64
		if err := rows.Scan(&f.ID, &f.Path, &f.Size, &mod); err != nil {
			return nil, fmt.Errorf("files: scan: %w", err)
		}
		if mod != 0 {
			f.ModTime = unixTime(mod)
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("files: rows: %w", err)
	}
	return &PagedResult[store.File]{Items: items, TotalCount: totalCount}, nil
}

// Units returns indexed translation units ordered by path.
func (q *QueryBuilder) Units(pathPrefix string, page Pagination) (*PagedResult[store.Unit], error) {
	page = page.normalize()
	units, err := q.store.Units()
	if err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}
	prefix := normalizePathPrefix(pathPrefix)
	var matched []store.Unit
	for _, u := range units {
		if prefix == "" || strings.HasPrefix(u.Path, prefix) {
			matched = append(matched, *u)
		}
	}
	return paginate(matched, page), nil
}

// UnusedMacros returns definition chains with no usage occurrence whose
// name no indexed file uses. Include guard macros are listed too: the
// guard's own #ifndef is not counted as a use.
func (q *QueryBuilder) UnusedMacros(page Pagination) (*PagedResult[MacroResult], error) {
	page = page.normalize()
	syms, err := q.store.UnusedSymbols()
	if err != nil {
		return nil, fmt.Errorf("unused macros: %w", err)
	}
	res := paginate(syms, page)
	out := &PagedResult[MacroResult]{Items: []MacroResult{}, TotalCount: res.TotalCount}
	for _, sym := range res.Items {
		defs, err := q.store.LocationsBySymbol(sym.ID, "definition")
		if err != nil {
			return nil, fmt.Errorf("unused macros: definitions: %w", err)
		}
		out.Items = append(out.Items, MacroResult{Symbol: *sym, Definitions: toLocations(defs)})
	}
	return out, nil
}

func unixTime(nanos int64) time.Time {
	return time.Unix(0, nanos)
}

func paginate[T any](all []T, page Pagination) *PagedResult[T] {
	items := []T{}
	if page.Offset < len(all) {
		end := min(page.Offset+page.Limit, len(all))
		items = append(items, all[page.Offset:end]...)
	}
	return &PagedResult[T]{Items: items, TotalCount: len(all)}
}
