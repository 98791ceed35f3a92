// Package dag provides a small directed acyclic graph keyed by string ids.
// It backs lot genealogy: parent/child adjacency, malformed-edge rejection,
// cycle detection, upstream/downstream walks and depth levels.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Edge rejection reasons. AddEdge wraps one of these so callers can
// classify a rejected edge with errors.Is.
var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrSelfLoop      = errors.New("self-loop")
	ErrDuplicateEdge = errors.New("duplicate edge")
)

// Graph is a directed graph whose nodes carry a value of type T.
type Graph[T any] struct {
	nodes    map[string]T
	children map[string][]string // parent -> children
	parents  map[string][]string // child -> parents
	edges    int
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:    make(map[string]T),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode inserts a node or replaces the value of an existing one.
func (g *Graph[T]) AddNode(id string, value T) {
	g.nodes[id] = value
}

// AddEdge adds a directed edge parent -> child. Both nodes must exist.
func (g *Graph[T]) AddEdge(parentID, childID string) error {
	if _, ok := g.nodes[parentID]; !ok {
		return fmt.Errorf("parent %q: %w", parentID, ErrUnknownNode)
	}
	if _, ok := g.nodes[childID]; !ok {
		return fmt.Errorf("child %q: %w", childID, ErrUnknownNode)
	}
	if parentID == childID {
		return fmt.Errorf("%s: %w", parentID, ErrSelfLoop)
	}
	if slices.Contains(g.children[parentID], childID) {
		return fmt.Errorf("%s -> %s: %w", parentID, childID, ErrDuplicateEdge)
	}

	g.children[parentID] = append(g.children[parentID], childID)
	g.parents[childID] = append(g.parents[childID], parentID)
	g.edges++
	return nil
}

// Node returns the value stored for id.
func (g *Graph[T]) Node(id string) (T, bool) {
	v, ok := g.nodes[id]
	return v, ok
}

// Has reports whether id is a node of the graph.
func (g *Graph[T]) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Parents returns the direct parents of id in insertion order.
func (g *Graph[T]) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the direct children of id in insertion order.
func (g *Graph[T]) Children(id string) []string {
	return g.children[id]
}

// IDs returns all node ids, sorted.
func (g *Graph[T]) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of accepted edges.
func (g *Graph[T]) EdgeCount() int {
	return g.edges
}

// FindCycle returns the ids of one cycle, first node repeated at the end,
// or nil if the graph is acyclic.
func (g *Graph[T]) FindCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	via := make(map[string]string)

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = grey
		for _, next := range g.children[id] {
			switch color[next] {
			case white:
				via[next] = id
				if dfs(next) {
					return true
				}
			case grey:
				cycle = []string{next}
				for cur := id; cur != next; cur = via[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, next)
				slices.Reverse(cycle)
				return true
			}
		}
		color[id] = black
		return false
	}

	// Sorted start order keeps the reported cycle stable.
	for _, id := range g.IDs() {
		if color[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// Levels groups node ids by depth: level 0 holds the roots and every other
// node sits one level below its deepest parent. Fails on a cycle.
func (g *Graph[T]) Levels() ([][]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, fmt.Errorf("cycle detected: %v", cycle)
	}

	depth := make(map[string]int, len(g.nodes))
	var level func(id string) int
	level = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, p := range g.parents[id] {
			d = max(d, level(p)+1)
		}
		depth[id] = d
		return d
	}

	maxDepth := -1
	for id := range g.nodes {
		maxDepth = max(maxDepth, level(id))
	}
	levels := make([][]string, maxDepth+1)
	for id, d := range depth {
		levels[d] = append(levels[d], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Ancestors returns every node upstream of id, sorted.
func (g *Graph[T]) Ancestors(id string) []string {
	return g.walk(id, g.parents)
}

// Descendants returns every node downstream of id, sorted.
func (g *Graph[T]) Descendants(id string) []string {
	return g.walk(id, g.children)
}

func (g *Graph[T]) walk(start string, next map[string][]string) []string {
	seen := make(map[string]bool)
	stack := slices.Clone(next[start])
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, next[id]...)
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Roots returns nodes without parents, sorted.
func (g *Graph[T]) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Leaves returns nodes without children, sorted.
func (g *Graph[T]) Leaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// Subgraph returns a graph restricted to ids and the edges among them.
// Unknown ids are ignored.
func (g *Graph[T]) Subgraph(ids []string) *Graph[T] {
	sub := New[T]()
	for _, id := range ids {
		if v, ok := g.nodes[id]; ok {
			sub.AddNode(id, v)
		}
	}
	for _, id := range sub.IDs() {
		for _, child := range g.children[id] {
			if sub.Has(child) {
				_ = sub.AddEdge(id, child)
			}
		}
	}
	return sub
}
