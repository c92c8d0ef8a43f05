package expander

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/stickyflow/internal/digraph"
	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

var (
	errIntoStart    = errors.New("edge would enter a start node")
	errFromTerminal = errors.New("edge would leave a terminal node")
)

// group is the working state of one flow group. Nodes live in an arena
// slice; every other list holds arena indexes.
type group struct {
	id   string // "" for main
	name string

	nodes   []schema.FlowNode
	index   map[string]int
	aliases map[string]string // author ID -> renamed node ID
	actions []int // declaration order
	starts  []int
	ends    []int
	exits   []int
	items   map[int]actionItem

	dg    *digraph.Graph
	edges []schema.FlowEdge
	notes []string

	explicitEdges  bool
	explicitStarts bool
	explicitEnds   bool
	systemSource   string
}

func newGroup(id, name string) *group {
	return &group{
		id:      id,
		name:    name,
		index:   make(map[string]int),
		aliases: make(map[string]string),
		items:   make(map[int]actionItem),
		dg:      digraph.New(),
	}
}

func (g *group) outID() string {
	return schema.GroupOf(g.id)
}

func (g *group) note(format string, args ...any) {
	g.notes = append(g.notes, fmt.Sprintf(format, args...))
}

func (g *group) add(n schema.FlowNode) int {
	n.FlowGroup = g.outID()
	i := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n.ID] = i
	g.dg.AddNode(n.ID)
	switch n.Type {
	case schema.NodeTypeStart:
		g.starts = append(g.starts, i)
	case schema.NodeTypeEnd:
		g.ends = append(g.ends, i)
	case schema.NodeTypeExit:
		g.exits = append(g.exits, i)
	default:
		g.actions = append(g.actions, i)
	}
	return i
}

func (g *group) has(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *group) in(i int) int { return g.dg.InDegree(g.nodes[i].ID) }
func (g *group) out(i int) int { return g.dg.OutDegree(g.nodes[i].ID) }

func (g *group) isDecision(i int) bool {
	return g.nodes[i].Type == schema.NodeTypeDecision
}

// connect admits from->to when it keeps the group a DAG with no edge into a
// start and none out of a terminal.
func (g *group) connect(from, to int, label, condition string, inferred bool) error {
	if g.nodes[to].Type == schema.NodeTypeStart {
		return errIntoStart
	}
	if g.nodes[from].Type.IsTerminal() {
		return errFromTerminal
	}
	if err := g.dg.AddEdge(g.nodes[from].ID, g.nodes[to].ID); err != nil {
		return err
	}
	g.edges = append(g.edges, schema.FlowEdge{
		From:      g.nodes[from].ID,
		To:        g.nodes[to].ID,
		Label:     label,
		Condition: condition,
		FlowGroup: g.outID(),
		Inferred:  inferred,
	})
	return nil
}

// tryLink connects from to the first admissible candidate.
func (g *group) tryLink(from int, candidates []int, label, condition string) (int, bool) {
	for _, to := range candidates {
		if g.connect(from, to, label, condition, true) == nil {
			return to, true
		}
	}
	return -1, false
}

// tryLinkFrom connects the first admissible candidate to to.
func (g *group) tryLinkFrom(candidates []int, to int) bool {
	for _, from := range candidates {
		if g.connect(from, to, "", "", true) == nil {
			return true
		}
	}
	return false
}

func (g *group) hasLabel(from int, label string) bool {
	id := g.nodes[from].ID
	for _, e := range g.edges {
		if e.From == id && strings.EqualFold(e.Label, label) {
			return true
		}
	}
	return false
}

func (g *group) targetOf(from int, label string) int {
	id := g.nodes[from].ID
	for _, e := range g.edges {
		if e.From == id && strings.EqualFold(e.Label, label) {
			return g.index[e.To]
		}
	}
	return -1
}

// lookup resolves a reference by ID, then by the ID the author wrote
// before a rename, then case-insensitively by ID and label.
func (g *group) lookup(ref string) (int, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return -1, false
	}
	if i, ok := g.index[ref]; ok {
		return i, true
	}
	if id, ok := g.aliases[ref]; ok {
		return g.index[id], true
	}
	for alias, id := range g.aliases {
		if strings.EqualFold(alias, ref) {
			return g.index[id], true
		}
	}
	for i, n := range g.nodes {
		if strings.EqualFold(n.ID, ref) || strings.EqualFold(n.Label, ref) {
			return i, true
		}
	}
	return -1, false
}

// resolveTarget resolves a declared decision branch. Terminal words map to
// the exit terminal; continue words and unknown text do not resolve.
func (g *group) resolveTarget(ref string) (int, bool) {
	if i, ok := g.lookup(ref); ok {
		return i, true
	}
	if heuristics.IsTerminalTarget(ref) {
		if c := g.exitTerminals(); len(c) > 0 {
			return c[0], true
		}
	}
	return -1, false
}

func (g *group) actionPos(i int) int {
	for pos, a := range g.actions {
		if a == i {
			return pos
		}
	}
	return -1
}

func (g *group) terminals() []int {
	return concat(g.ends, g.exits)
}

// exitTerminals lists exits, then error-labelled ends.
func (g *group) exitTerminals() []int {
	out := concat(g.exits)
	for _, e := range g.ends {
		if heuristics.IsErrorLabel(g.nodes[e].Label) {
			out = append(out, e)
		}
	}
	return out
}

// endsFor lists the ends a dead-end action in lane should fall through
// to: success-labelled ends, same-lane ends, any end, then exits.
func (g *group) endsFor(lane string) []int {
	var success, sameLane []int
	for _, e := range g.ends {
		if heuristics.IsSuccessLabel(g.nodes[e].Label) {
			success = append(success, e)
		}
		if g.nodes[e].Lane == lane {
			sameLane = append(sameLane, e)
		}
	}
	return concat(success, sameLane, g.ends, g.exits)
}

func (g *group) filter(ids []int, keep func(int) bool) []int {
	var out []int
	for _, i := range ids {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

func (g *group) nonDecisions(ids []int) []int {
	return g.filter(ids, func(i int) bool { return !g.isDecision(i) })
}

func concat(lists ...[]int) []int {
	var out []int
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func reversed(ids []int) []int {
	out := make([]int, len(ids))
	for i, v := range ids {
		out[len(ids)-1-i] = v
	}
	return out
}

// output renders the group: starts, actions, ends, exits.
func (g *group) output() schema.FlowGroupOutput {
	order := concat(g.starts, g.actions, g.ends, g.exits)
	out := schema.FlowGroupOutput{
		ID:     g.outID(),
		Name:   g.name,
		Starts: make([]string, 0, len(g.starts)),
		Ends:   make([]string, 0, len(g.ends)+len(g.exits)),
		Nodes:  make([]schema.FlowNode, 0, len(order)),
		Edges:  make([]schema.FlowEdge, len(g.edges)),
	}
	for _, i := range order {
		out.Nodes = append(out.Nodes, g.nodes[i])
	}
	for _, i := range g.starts {
		out.Starts = append(out.Starts, g.nodes[i].ID)
	}
	for _, i := range g.terminals() {
		out.Ends = append(out.Ends, g.nodes[i].ID)
	}
	copy(out.Edges, g.edges)
	return out
}

func (g *group) inferredCount() int {
	n := 0
	for _, node := range g.nodes {
		if node.Inferred {
			n++
		}
	}
	return n
}
