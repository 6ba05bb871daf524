package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLILocation is one macro occurrence.
type CLILocation struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
	Kind string `json:"kind"`
}

// CLIMacro is one definition chain of a macro.
type CLIMacro struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	USR         string        `json:"usr"`
	Definitions []CLILocation `json:"definitions"`
}

// CLIMacroDetail adds every occurrence of a chain and the files using its
// name.
type CLIMacroDetail struct {
	CLIMacro
	Undefinitions []CLILocation `json:"undefinitions"`
	Usages        []CLILocation `json:"usages"`
	UsedIn        []string      `json:"used_in"`
}

// CLIFile is a file known to the index.
type CLIFile struct {
	ID      int64  `json:"id"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time,omitempty"`
}

// CLIUnit is an indexed translation unit.
type CLIUnit struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

// CLIIncludeNode is a file reached through include edges.
type CLIIncludeNode struct {
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

// CLIIncludeTree is a node of an include hierarchy.
type CLIIncludeTree struct {
	Path     string            `json:"path"`
	Repeated bool              `json:"repeated,omitempty"`
	Children []*CLIIncludeTree `json:"children,omitempty"`
}

// CLIDirectoryGraph is the include graph collapsed to directories.
type CLIDirectoryGraph struct {
	Directories []CLIDirectoryNode `json:"directories"`
	Edges       []CLIDirectoryEdge `json:"edges"`
}

// CLIDirectoryNode is a directory with its file count.
type CLIDirectoryNode struct {
	Path      string `json:"path"`
	FileCount int    `json:"file_count"`
}

// CLIDirectoryEdge is a directory-level include dependency.
type CLIDirectoryEdge struct {
	From         string `json:"from"`
	To           string `json:"to"`
	IncludeCount int    `json:"include_count"`
}

// CLIMacroUse counts the files using a macro name.
type CLIMacroUse struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
}

// CLISummary is a project overview.
type CLISummary struct {
	Files        int           `json:"files"`
	Units        int           `json:"units"`
	Macros       int           `json:"macros"`
	Occurrences  int           `json:"occurrences"`
	UsedMacros   int           `json:"used_macros"`
	Dependencies int           `json:"dependencies"`
	LastIndexed  string        `json:"last_indexed,omitempty"`
	TopUsed      []CLIMacroUse `json:"top_used"`
}
