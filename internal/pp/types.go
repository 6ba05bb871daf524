// Package pp is a small C preprocessor built on tree-sitter. It walks a
// translation unit in source order and reports what it sees through the
// Callbacks interface: files entered, include directives, macro
// definitions, undefinitions and references.
//
// It is not a compiler front-end. Token pasting, stringizing and argument
// substitution are not performed; macro bodies are only scanned for the
// names of other macros.
package pp

import (
	"fmt"
	"time"
)

// FileEntry describes a file on disk. The preprocessor hands out one
// *FileEntry per resolved path, so pointer equality means path equality.
type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	System  bool // found through a system include path
}

// LocationKind tells where a SourceLocation points.
type LocationKind int

const (
	// LocFile is a position in the text of a real file.
	LocFile LocationKind = iota
	// LocMacro is a position produced by expanding a macro body. File and
	// Line/Column describe the expansion point.
	LocMacro
	// LocBuiltin is a predefined macro from the command line or config.
	LocBuiltin
)

func (k LocationKind) String() string {
	switch k {
	case LocFile:
		return "file"
	case LocMacro:
		return "macro"
	case LocBuiltin:
		return "builtin"
	}
	return fmt.Sprintf("LocationKind(%d)", int(k))
}

// SourceLocation is a position reported by the preprocessor. Line and
// Column are 1-based; Column counts bytes.
type SourceLocation struct {
	File   *FileEntry
	Offset int
	Line   int
	Column int
	Kind   LocationKind
}

// IsFileID reports whether the location is a real file position.
func (l SourceLocation) IsFileID() bool {
	return l.Kind == LocFile && l.File != nil
}

func (l SourceLocation) String() string {
	if l.File == nil {
		return fmt.Sprintf("<%s>:%d:%d", l.Kind, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File.Path, l.Line, l.Column)
}

// Token is a macro name as it appeared in the source.
type Token struct {
	Name string
	Loc  SourceLocation
}

// MacroInfo is one definition of a macro.
type MacroInfo struct {
	Name         string
	Loc          SourceLocation // location of the name in the #define
	FunctionLike bool
	Params       []string
	Variadic     bool
	Body         string

	// UsedForHeaderGuard is set when the #define is the guard of an
	// #ifndef/#define/#endif include guard.
	UsedForHeaderGuard bool
}

// IsParam reports whether name is one of the macro's parameters.
func (m *MacroInfo) IsParam(name string) bool {
	if m.Variadic && name == "__VA_ARGS__" {
		return true
	}
	for _, p := range m.Params {
		if p == name {
			return true
		}
	}
	return false
}

// DirectiveKind is the kind of a MacroDirective.
type DirectiveKind int

const (
	DirectiveDefine DirectiveKind = iota
	DirectiveUndef
)

// MacroDirective is one #define or #undef of a macro name. Directives of one
// redefinition chain are linked newest to oldest through Previous. A #define
// of a name that is not currently defined starts a new chain.
type MacroDirective struct {
	Kind     DirectiveKind
	Info     *MacroInfo // nil for #undef
	Loc      SourceLocation
	Previous *MacroDirective
}

// Origin returns the first directive of d's redefinition chain.
func (d *MacroDirective) Origin() *MacroDirective {
	if d == nil {
		return nil
	}
	for d.Previous != nil {
		d = d.Previous
	}
	return d
}

// MacroDefinition is the state of a macro name at one point of the
// translation unit. Local is nil when the name is not defined.
type MacroDefinition struct {
	Local *MacroDirective
}

// MacroInfo returns the live definition, or nil.
func (d MacroDefinition) MacroInfo() *MacroInfo {
	if d.Local == nil || d.Local.Kind != DirectiveDefine {
		return nil
	}
	return d.Local.Info
}
