// Package digraph is a string-keyed directed graph over a gonum arena. Node
// IDs map to dense int64 handles; edges live in a simple.DirectedGraph. The
// expander uses it for edge admission and the validator for its structural
// checks, so both agree on what a cycle is.
package digraph

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// Admission failures returned by Check and AddEdge.
var (
	ErrSelfLoop      = errors.New("edge would be a self-loop")
	ErrDuplicateEdge = errors.New("edge already exists")
	ErrCycle         = errors.New("edge would create a cycle")
)

// Graph is a directed graph keyed by node ID. Not safe for concurrent use.
type Graph struct {
	g         *simple.DirectedGraph
	handles   map[string]int64
	names     []string
	selfLoops map[string]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		g:         simple.NewDirectedGraph(),
		handles:   make(map[string]int64),
		selfLoops: make(map[string]bool),
	}
}

// AddNode inserts id if absent and returns its handle.
func (d *Graph) AddNode(id string) int64 {
	if h, ok := d.handles[id]; ok {
		return h
	}
	h := int64(len(d.names))
	d.handles[id] = h
	d.names = append(d.names, id)
	d.g.AddNode(simple.Node(h))
	return h
}

// Has reports whether id is a node.
func (d *Graph) Has(id string) bool {
	_, ok := d.handles[id]
	return ok
}

// Len returns the node count.
func (d *Graph) Len() int {
	return len(d.names)
}

// Nodes returns node IDs in insertion order.
func (d *Graph) Nodes() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// HasEdge reports whether from->to exists.
func (d *Graph) HasEdge(from, to string) bool {
	if from == to {
		return d.selfLoops[from]
	}
	f, ok1 := d.handles[from]
	t, ok2 := d.handles[to]
	return ok1 && ok2 && d.g.HasEdgeFromTo(f, t)
}

// PathExists reports whether to is reachable from from. A node always
// reaches itself.
func (d *Graph) PathExists(from, to string) bool {
	f, ok1 := d.handles[from]
	t, ok2 := d.handles[to]
	if !ok1 || !ok2 {
		return false
	}
	if f == t {
		return true
	}
	return topo.PathExistsIn(d.g, d.g.Node(f), d.g.Node(t))
}

// Check reports why from->to may not be added, or nil when it may.
func (d *Graph) Check(from, to string) error {
	if from == to {
		return ErrSelfLoop
	}
	if d.HasEdge(from, to) {
		return ErrDuplicateEdge
	}
	if d.PathExists(to, from) {
		return ErrCycle
	}
	return nil
}

// AddEdge admits from->to only if it keeps the graph a simple DAG. Missing
// endpoints are created.
func (d *Graph) AddEdge(from, to string) error {
	if err := d.Check(from, to); err != nil {
		return err
	}
	d.SetEdge(from, to)
	return nil
}

// SetEdge inserts from->to without admission checks. Self-loops are
// recorded aside since the arena cannot hold them. Used to load graphs that
// may already be malformed.
func (d *Graph) SetEdge(from, to string) {
	f := d.AddNode(from)
	t := d.AddNode(to)
	if f == t {
		d.selfLoops[from] = true
		return
	}
	if !d.g.HasEdgeFromTo(f, t) {
		d.g.SetEdge(d.g.NewEdge(d.g.Node(f), d.g.Node(t)))
	}
}

// InDegree counts distinct predecessors, self-loops included.
func (d *Graph) InDegree(id string) int {
	h, ok := d.handles[id]
	if !ok {
		return 0
	}
	n := d.g.To(h).Len()
	if d.selfLoops[id] {
		n++
	}
	return n
}

// OutDegree counts distinct successors, self-loops included.
func (d *Graph) OutDegree(id string) int {
	h, ok := d.handles[id]
	if !ok {
		return 0
	}
	n := d.g.From(h).Len()
	if d.selfLoops[id] {
		n++
	}
	return n
}

// Successors returns the targets of id's outgoing edges in insertion order.
func (d *Graph) Successors(id string) []string {
	h, ok := d.handles[id]
	if !ok {
		return nil
	}
	return d.sortedNames(d.g.From(h))
}

// Predecessors returns the sources of id's incoming edges in insertion order.
func (d *Graph) Predecessors(id string) []string {
	h, ok := d.handles[id]
	if !ok {
		return nil
	}
	return d.sortedNames(d.g.To(h))
}

// ReachableFrom returns every node reachable from any of roots, roots
// included. Unknown roots are ignored.
func (d *Graph) ReachableFrom(roots ...string) map[string]bool {
	seen := make(map[string]bool)
	bf := traverse.BreadthFirst{
		Visit: func(n graph.Node) { seen[d.names[n.ID()]] = true },
	}
	for _, r := range roots {
		h, ok := d.handles[r]
		if !ok {
			continue
		}
		bf.Walk(d.g, d.g.Node(h), nil)
	}
	return seen
}

// CanReachAny reports, for every node, whether some node in targets is
// reachable from it.
func (d *Graph) CanReachAny(targets ...string) map[string]bool {
	out := make(map[string]bool)
	for _, id := range d.names {
		for _, t := range targets {
			if d.PathExists(id, t) {
				out[id] = true
				break
			}
		}
	}
	return out
}

// Sort returns a deterministic topological order, ties broken by insertion
// order. It fails when the graph holds a cycle.
func (d *Graph) Sort() ([]string, error) {
	if len(d.selfLoops) > 0 {
		return nil, ErrCycle
	}
	nodes, err := topo.SortStabilized(d.g, d.byHandle)
	if err != nil {
		return nil, ErrCycle
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = d.names[n.ID()]
	}
	return out, nil
}

// IsAcyclic reports whether the graph has no cycles.
func (d *Graph) IsAcyclic() bool {
	_, err := d.Sort()
	return err == nil
}

// Cycles returns every strongly connected component of more than one node,
// plus each self-looping node on its own. Members and components are in
// insertion order.
func (d *Graph) Cycles() [][]string {
	var comps [][]int64
	for _, scc := range topo.TarjanSCC(d.g) {
		if len(scc) < 2 {
			continue
		}
		comp := make([]int64, len(scc))
		for i, n := range scc {
			comp[i] = n.ID()
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
		comps = append(comps, comp)
	}
	for id := range d.selfLoops {
		comps = append(comps, []int64{d.handles[id]})
	}
	sort.Slice(comps, func(i, j int) bool {
		if comps[i][0] != comps[j][0] {
			return comps[i][0] < comps[j][0]
		}
		return len(comps[i]) > len(comps[j])
	})

	out := make([][]string, len(comps))
	for i, comp := range comps {
		names := make([]string, len(comp))
		for j, h := range comp {
			names[j] = d.names[h]
		}
		out[i] = names
	}
	return out
}

func (d *Graph) byHandle(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}

func (d *Graph) sortedNames(it graph.Nodes) []string {
	var hs []int64
	for it.Next() {
		hs = append(hs, it.Node().ID())
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = d.names[h]
	}
	return out
}
