package store

// Reader is the read side of the index. Query helpers and report scripts
// depend on it rather than on *Store.
type Reader interface {
	FileByPath(path string) (*File, error)
	FileByID(id int64) (*File, error)
	Files() ([]*File, error)
	Units() ([]*Unit, error)
	UnitFiles(unitID int64) ([]*UnitFile, error)

	SymbolsByName(name string) ([]*Symbol, error)
	SymbolNames() ([]string, error)
	LocationsBySymbol(symbolID int64, kind string) ([]*Location, error)
	UsedMacrosByFile(fileID int64) ([]string, error)

	DependenciesOf(fileID int64) ([]int64, error)
	DependentsOf(fileID int64) ([]int64, error)
	DependencyEdges() ([]*Dependency, error)
}

// Compile-time check: *Store satisfies Reader.
var _ Reader = (*Store)(nil)
