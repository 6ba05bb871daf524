package store

import "time"

// File is a path known to the index. Its id is the FilePathID handed out
// by the path service.
type File struct {
	ID      int64
	Path    string
	Size    int64
	ModTime time.Time
}

// Unit is an indexed translation unit.
type Unit struct {
	ID          int64
	FileID      int64
	Path        string
	Fingerprint string
	LastIndexed time.Time
}

// Symbol is a macro definition chain, identified across units by its USR.
type Symbol struct {
	ID   int64
	USR  string
	Name string
}

// Location is one occurrence of a symbol.
type Location struct {
	ID       int64
	UnitID   int64
	SymbolID int64
	FileID   int64
	Path     string
	Line     int
	Col      int
	Kind     string
}

// UsedMacro records that a unit saw Name referenced in a file.
type UsedMacro struct {
	UnitID int64
	Name   string
	FileID int64
}

// Dependency is an include edge.
type Dependency struct {
	IncludingFileID int64
	IncludedFileID  int64
}

// UnitFile is a file entered while preprocessing a unit, with the size and
// modification time it had then.
type UnitFile struct {
	UnitID  int64
	FileID  int64
	Path    string
	Size    int64
	ModTime time.Time
}
