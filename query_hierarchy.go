package ppindex

import "fmt"

// IncludeTree is the include hierarchy below one file. A header reached
// twice is expanded only the first time; later occurrences are marked
// Repeated and have no children.
type IncludeTree struct {
	Path     string
	Repeated bool
	Children []*IncludeTree
}

// IncludeTree returns the include hierarchy rooted at file, at most
// maxDepth levels deep (0 means unlimited). Returns nil with no error for
// an unknown file.
func (q *QueryBuilder) IncludeTree(file string, maxDepth int) (*IncludeTree, error) {
	ig, root, ok, err := q.graphFor(file)
	if err != nil || !ok {
		return nil, err
	}
	adj, err := ig.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("include tree: %w", err)
	}

	seen := map[int64]bool{}
	var build func(id int64, depth int) *IncludeTree
	build = func(id int64, depth int) *IncludeTree {
		node := &IncludeTree{Path: ig.paths[id]}
		if seen[id] {
			node.Repeated = true
			return node
		}
		seen[id] = true
		if maxDepth > 0 && depth >= maxDepth {
			return node
		}
		children := make([]int64, 0, len(adj[id]))
		for child := range adj[id] {
			children = append(children, child)
		}
		for _, p := range ig.sortedPaths(children) {
			node.Children = append(node.Children, build(ig.ids[p], depth+1))
		}
		return node
	}
	return build(root, 0), nil
}
