package ppindex

import (
	"fmt"
	"path"
	"sort"
)

// DirectoryGraph is the directory-to-directory include graph, aggregated
// from file-level include edges.
type DirectoryGraph struct {
	Directories []DirectoryNode
	Edges       []DirectoryEdge
}

// DirectoryNode is a directory holding at least one known file.
type DirectoryNode struct {
	Path      string
	FileCount int
}

// DirectoryEdge is a dependency between two directories with the number of
// distinct file-level include edges that contribute to it.
type DirectoryEdge struct {
	From         string
	To           string
	IncludeCount int
}

// DirectoryDependencyGraph returns the include graph collapsed to
// directories. Includes within one directory are not edges.
func (q *QueryBuilder) DirectoryDependencyGraph() (*DirectoryGraph, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("directory graph: files: %w", err)
	}
	dirOf := make(map[int64]string, len(files))
	fileCounts := map[string]int{}
	for _, f := range files {
		d := path.Dir(f.Path)
		dirOf[f.ID] = d
		fileCounts[d]++
	}

	deps, err := q.store.DependencyEdges()
	if err != nil {
		return nil, fmt.Errorf("directory graph: edges: %w", err)
	}
	type edgeKey struct{ from, to string }
	edgeCounts := map[edgeKey]int{}
	for _, dep := range deps {
		from, to := dirOf[dep.IncludingFileID], dirOf[dep.IncludedFileID]
		if from == to {
			continue
		}
		edgeCounts[edgeKey{from, to}]++
	}

	dg := &DirectoryGraph{Directories: []DirectoryNode{}, Edges: []DirectoryEdge{}}
	for d, n := range fileCounts {
		dg.Directories = append(dg.Directories, DirectoryNode{Path: d, FileCount: n})
	}
	sort.Slice(dg.Directories, func(i, j int) bool { return dg.Directories[i].Path < dg.Directories[j].Path })

	for ek, n := range edgeCounts {
		dg.Edges = append(dg.Edges, DirectoryEdge{From: ek.from, To: ek.to, IncludeCount: n})
	}
	sort.Slice(dg.Edges, func(i, j int) bool {
		if dg.Edges[i].From != dg.Edges[j].From {
			return dg.Edges[i].From < dg.Edges[j].From
		}
		return dg.Edges[i].To < dg.Edges[j].To
	})
	return dg, nil
}
