package collect

import (
	"github.com/jward/ppindex/internal/pathid"
	"github.com/jward/ppindex/internal/pp"
)

// LocationResolver maps preprocessor positions to (file id, line, column).
// Ids are cached per file entry; the first lookup of a file goes to the
// path service.
type LocationResolver struct {
	paths pathid.Caching
	ids   map[*pp.FileEntry]pathid.FilePathID
	err   error
}

// NewLocationResolver creates a resolver over paths.
func NewLocationResolver(paths pathid.Caching) *LocationResolver {
	return &LocationResolver{
		paths: paths,
		ids:   make(map[*pp.FileEntry]pathid.FilePathID),
	}
}

// FileID returns the id of f, or pathid.Invalid if f is nil or the path
// service failed. The first failure is kept in Err.
func (r *LocationResolver) FileID(f *pp.FileEntry) pathid.FilePathID {
	if f == nil {
		return pathid.Invalid
	}
	if id, ok := r.ids[f]; ok {
		return id
	}
	id, err := r.paths.FilePathID(f.Path)
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return pathid.Invalid
	}
	r.ids[f] = id
	return id
}

// Resolve returns the file id, line and column of loc. Only file
// positions resolve; anything else yields pathid.Invalid.
func (r *LocationResolver) Resolve(loc pp.SourceLocation) (pathid.FilePathID, int, int) {
	if !loc.IsFileID() {
		return pathid.Invalid, 0, 0
	}
	return r.FileID(loc.File), loc.Line, loc.Column
}

// Err returns the first path service error.
func (r *LocationResolver) Err() error {
	return r.err
}
