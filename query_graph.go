package ppindex

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dominikbraun/graph"
)

// IncludeNode is a file reached from a root by following include edges.
type IncludeNode struct {
	Path  string
	Depth int // hops from the root (1 = direct include)
}

// includeGraph is the whole include graph bulk-loaded from the store.
// Vertices are file ids; an edge points from the including file to the
// included one.
type includeGraph struct {
	g     graph.Graph[int64, int64]
	paths map[int64]string
	ids   map[string]int64
}

func fileIDHash(id int64) int64 { return id }

func (q *QueryBuilder) loadIncludeGraph() (*includeGraph, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("include graph: files: %w", err)
	}
	edges, err := q.store.DependencyEdges()
	if err != nil {
		return nil, fmt.Errorf("include graph: edges: %w", err)
	}

	ig := &includeGraph{
		g:     graph.New(fileIDHash, graph.Directed()),
		paths: make(map[int64]string, len(files)),
		ids:   make(map[string]int64, len(files)),
	}
	for _, f := range files {
		ig.paths[f.ID] = f.Path
		ig.ids[f.Path] = f.ID
		if err := ig.g.AddVertex(f.ID); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("include graph: vertex %s: %w", f.Path, err)
		}
	}
	for _, e := range edges {
		err := ig.g.AddEdge(e.IncludingFileID, e.IncludedFileID)
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return nil, fmt.Errorf("include graph: edge %d->%d: %w", e.IncludingFileID, e.IncludedFileID, err)
		}
	}
	return ig, nil
}

// sortedPaths maps ids to paths in path order.
func (ig *includeGraph) sortedPaths(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, ig.paths[id])
	}
	slices.Sort(out)
	return out
}

// reachable walks breadth first from root along next and returns every
// other vertex with its hop count, ordered by depth then path.
func (ig *includeGraph) reachable(root int64, next map[int64]map[int64]graph.Edge[int64]) []IncludeNode {
	depth := map[int64]int{root: 0}
	frontier := []int64{root}
	var out []IncludeNode
	for d := 1; len(frontier) > 0; d++ {
		var level []int64
		for _, v := range frontier {
			for w := range next[v] {
				if _, seen := depth[w]; seen {
					continue
				}
				depth[w] = d
				level = append(level, w)
			}
		}
		for _, p := range ig.sortedPaths(level) {
			out = append(out, IncludeNode{Path: p, Depth: d})
		}
		frontier = level
	}
	return out
}

func (q *QueryBuilder) resolveFileID(file string) (int64, bool, error) {
	f, err := q.fileByPath(file)
	if err != nil || f == nil {
		return 0, false, err
	}
	return f.ID, true, nil
}

// Dependencies returns the files file includes directly.
func (q *QueryBuilder) Dependencies(file string) ([]string, error) {
	return q.directNeighbours(file, q.store.DependenciesOf)
}

// Dependents returns the files that include file directly.
func (q *QueryBuilder) Dependents(file string) ([]string, error) {
	return q.directNeighbours(file, q.store.DependentsOf)
}

func (q *QueryBuilder) directNeighbours(file string, fetch func(int64) ([]int64, error)) ([]string, error) {
	id, ok, err := q.resolveFileID(file)
	if err != nil || !ok {
		return nil, err
	}
	ids, err := fetch(id)
	if err != nil {
		return nil, fmt.Errorf("include edges: %w", err)
	}
	out := make([]string, 0, len(ids))
	for _, nid := range ids {
		p, err := q.store.FetchFilePath(nid)
		if err != nil {
			return nil, fmt.Errorf("include edges: %w", err)
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

// TransitiveIncludes returns every file reachable from file through
// include edges. Returns nil with no error for an unknown file.
func (q *QueryBuilder) TransitiveIncludes(file string) ([]IncludeNode, error) {
	ig, id, ok, err := q.graphFor(file)
	if err != nil || !ok {
		return nil, err
	}
	adj, err := ig.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("transitive includes: %w", err)
	}
	return ig.reachable(id, adj), nil
}

// TransitiveIncluders returns every file that reaches file through include
// edges. Returns nil with no error for an unknown file.
func (q *QueryBuilder) TransitiveIncluders(file string) ([]IncludeNode, error) {
	ig, id, ok, err := q.graphFor(file)
	if err != nil || !ok {
		return nil, err
	}
	pred, err := ig.g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("transitive includers: %w", err)
	}
	return ig.reachable(id, pred), nil
}

func (q *QueryBuilder) graphFor(file string) (*includeGraph, int64, bool, error) {
	id, ok, err := q.resolveFileID(file)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	ig, err := q.loadIncludeGraph()
	if err != nil {
		return nil, 0, false, err
	}
	return ig, id, true, nil
}

// IncludePath returns the shortest include chain from one file to another,
// both ends included. Returns nil with no error when either file is unknown
// or to is not reachable.
func (q *QueryBuilder) IncludePath(from, to string) ([]string, error) {
	ig, src, ok, err := q.graphFor(from)
	if err != nil || !ok {
		return nil, err
	}
	dst, ok, err := q.resolveFileID(to)
	if err != nil || !ok {
		return nil, err
	}
	ids, err := graph.ShortestPath(ig.g, src, dst)
	if errors.Is(err, graph.ErrTargetNotReachable) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("include path: %w", err)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, ig.paths[id])
	}
	return out, nil
}

// IncludeCycles returns the include cycles of the index. Each cycle lists
// its files in path order with the first repeated at the end. A header
// that includes itself is a cycle of one.
func (q *QueryBuilder) IncludeCycles() ([][]string, error) {
	ig, err := q.loadIncludeGraph()
	if err != nil {
		return nil, err
	}
	sccs, err := graph.StronglyConnectedComponents(ig.g)
	if err != nil {
		return nil, fmt.Errorf("include cycles: %w", err)
	}
	cycles := [][]string{}
	for _, scc := range sccs {
		if len(scc) == 1 {
			if _, err := ig.g.Edge(scc[0], scc[0]); err != nil {
				continue
			}
		}
		paths := ig.sortedPaths(scc)
		cycles = append(cycles, append(paths, paths[0]))
	}
	slices.SortFunc(cycles, func(a, b []string) int { return slices.Compare(a, b) })
	return cycles, nil
}
