package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FileStamp is the part of a file's identity that decides whether a unit
// must be re-indexed.
type FileStamp struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Fingerprint computes a deterministic hash over a unit's main file content,
// the stamps of every file it entered and the preprocessor configuration it
// ran under. Stamp order does not matter.
func Fingerprint(content []byte, stamps []FileStamp, config string) string {
	h := xxhash.New()
	h.Write(content)
	fmt.Fprintf(h, "\x00%s", config)

	sorted := make([]FileStamp, len(stamps))
	copy(sorted, stamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, st := range sorted {
		fmt.Fprintf(h, "\x00%s:%d:%d", st.Path, st.Size, unixNano(st.ModTime))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
