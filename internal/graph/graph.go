// Package graph provides the directed graph of page links discovered during a
// search, with the path queries the search engine needs.
package graph

import (
	"slices"
	"sync"
)

// Edge represents a directed link from one page to another.
type Edge struct {
	From string
	To   string
}

// Graph is a concurrency-safe directed graph over page names. Successor lists
// keep insertion order, so shortest-path ties resolve to the edge added first.
type Graph struct {
	nodes   map[string]struct{}
	succ    map[string][]string
	edgeSet map[Edge]struct{}
	mu      sync.RWMutex
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		succ:    make(map[string][]string),
		edgeSet: make(map[Edge]struct{}),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[name] = struct{}{}
}

// AddEdge adds a directed edge, creating both endpoints if needed.
// Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[from] = struct{}{}
	g.nodes[to] = struct{}{}
	e := Edge{From: from, To: to}
	if _, exists := g.edgeSet[e]; exists {
		return
	}
	g.edgeSet[e] = struct{}{}
	g.succ[from] = append(g.succ[from], to)
}

// RemoveEdge deletes the edge from -> to and reports whether it existed.
// Both endpoints stay in the graph.
func (g *Graph) RemoveEdge(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := Edge{From: from, To: to}
	if _, exists := g.edgeSet[e]; !exists {
		return false
	}
	delete(g.edgeSet, e)
	g.succ[from] = slices.DeleteFunc(g.succ[from], func(n string) bool { return n == to })
	return true
}

// HasNode reports whether name is in the graph.
func (g *Graph) HasNode(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[name]
	return ok
}

// HasEdge reports whether the edge from -> to is in the graph.
func (g *Graph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edgeSet[Edge{From: from, To: to}]
	return ok
}

// Successors returns a copy of the nodes name links to, in insertion order.
func (g *Graph) Successors(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.succ[name])
}

// ShortestPath returns a path with the fewest edges from -> to, endpoints
// included. The second result is false when no path exists or either node
// is missing.
func (g *Graph) ShortestPath(from, to string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	parent, found := g.bfs(from, to, -1)
	if !found {
		return nil, false
	}
	path := []string{to}
	for cur := to; cur != from; {
		cur = parent[cur]
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path, true
}

// HasPath reports whether to is reachable from from.
func (g *Graph) HasPath(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, found := g.bfs(from, to, -1)
	return found
}

// Distance returns the number of edges on a shortest path from -> to.
// The search gives up past maxHops edges; a negative maxHops means no limit.
func (g *Graph) Distance(from, to string, maxHops int) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	parent, found := g.bfs(from, to, maxHops)
	if !found {
		return 0, false
	}
	hops := 0
	for cur := to; cur != from; cur = parent[cur] {
		hops++
	}
	return hops, true
}

// bfs runs a breadth-first search and returns the parent map. The caller
// must hold the read lock.
func (g *Graph) bfs(from, to string, maxHops int) (map[string]string, bool) {
	if _, ok := g.nodes[from]; !ok {
		return nil, false
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, false
	}
	parent := map[string]string{from: from}
	if from == to {
		return parent, true
	}

	frontier := []string{from}
	for depth := 0; len(frontier) > 0; depth++ {
		if maxHops >= 0 && depth >= maxHops {
			return nil, false
		}
		var next []string
		for _, n := range frontier {
			for _, s := range g.succ[n] {
				if _, seen := parent[s]; seen {
					continue
				}
				parent[s] = n
				if s == to {
					return parent, true
				}
				next = append(next, s)
			}
		}
		frontier = next
	}
	return nil, false
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edgeSet)
}

// Edges returns a copy of the edge list, sorted by source. Edges sharing a
// source keep insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]Edge, 0, len(g.edgeSet))
	from := make([]string, 0, len(g.succ))
	for n := range g.succ {
		from = append(from, n)
	}
	slices.Sort(from)
	for _, f := range from {
		for _, t := range g.succ[f] {
			edges = append(edges, Edge{From: f, To: t})
		}
	}
	return edges
}
