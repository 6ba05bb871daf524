// Package collect turns the preprocessing events of one translation unit
// into index facts: macro symbols and their occurrences, the files entered,
// include edges and the macros each file uses.
package collect

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jward/ppindex/internal/pathid"
)

// SymbolID identifies a macro definition chain within one unit.
type SymbolID int64

// UsageKind tags a SourceLocationEntry.
type UsageKind int

const (
	Definition UsageKind = iota
	Undefinition
	Usage
)

func (k UsageKind) String() string {
	switch k {
	case Definition:
		return "definition"
	case Undefinition:
		return "undefinition"
	case Usage:
		return "usage"
	}
	return fmt.Sprintf("UsageKind(%d)", int(k))
}

// ParseUsageKind is the inverse of UsageKind.String.
func ParseUsageKind(s string) (UsageKind, error) {
	switch s {
	case "definition":
		return Definition, nil
	case "undefinition":
		return Undefinition, nil
	case "usage":
		return Usage, nil
	}
	return 0, fmt.Errorf("collect: unknown usage kind %q", s)
}

// SymbolEntry is one macro definition chain.
type SymbolEntry struct {
	USR  string
	Name string
}

// SymbolEntries is keyed by SymbolID.
type SymbolEntries map[SymbolID]SymbolEntry

// SourceLocationEntry is one occurrence of a symbol.
type SourceLocationEntry struct {
	SymbolID SymbolID
	FileID   pathid.FilePathID
	Line     int
	Column   int
	Kind     UsageKind
}

// UsedMacro records that a macro name was referenced in a file.
type UsedMacro struct {
	Name   string
	FileID pathid.FilePathID
}

// Compare orders used macros by name, then file.
func (u UsedMacro) Compare(o UsedMacro) int {
	if c := cmp.Compare(u.Name, o.Name); c != 0 {
		return c
	}
	return cmp.Compare(u.FileID, o.FileID)
}

// FileInformation describes a file entered during preprocessing.
type FileInformation struct {
	FileID  pathid.FilePathID
	Size    int64
	ModTime time.Time
}

// SourceDependency is one include edge.
type SourceDependency struct {
	Including pathid.FilePathID
	Included  pathid.FilePathID
}

// Result holds everything collected for one unit.
type Result struct {
	Symbols      SymbolEntries
	Locations    []SourceLocationEntry
	Files        []pathid.FilePathID // ascending, unique
	FileInfos    []FileInformation
	Dependencies []SourceDependency
	UsedMacros   []UsedMacro // ascending by (Name, FileID), unique
}
