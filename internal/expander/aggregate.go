package expander

import (
	"fmt"

	"github.com/rendis/stickyflow/pkg/schema"
)

// aggregate flattens the groups into graph-level lists. Nodes dedupe by
// ID and edges by from->to; the first occurrence wins.
func (c *compilation) aggregate() *schema.FlowGraph {
	graph := &schema.FlowGraph{
		FlowGroups: make([]schema.FlowGroupOutput, 0, len(c.groups)),
		Nodes:      []schema.FlowNode{},
		Edges:      []schema.FlowEdge{},
		Starts:     []string{},
		Ends:       []string{},
	}

	seenNode := make(map[string]bool)
	seenEdge := make(map[string]bool)
	seenStart := make(map[string]bool)
	seenEnd := make(map[string]bool)

	for _, g := range c.groups {
		out := g.output()
		graph.FlowGroups = append(graph.FlowGroups, out)
		for _, n := range out.Nodes {
			if !seenNode[n.ID] {
				seenNode[n.ID] = true
				graph.Nodes = append(graph.Nodes, n)
			}
		}
		for _, e := range out.Edges {
			if !seenEdge[e.Key()] {
				seenEdge[e.Key()] = true
				graph.Edges = append(graph.Edges, e)
			}
		}
		for _, id := range out.Starts {
			if !seenStart[id] {
				seenStart[id] = true
				graph.Starts = append(graph.Starts, id)
			}
		}
		for _, id := range out.Ends {
			if !seenEnd[id] {
				seenEnd[id] = true
				graph.Ends = append(graph.Ends, id)
			}
		}
	}

	graph.Lanes = c.orderedLanes()
	graph.Assumptions = c.assumptions()
	graph.OpenQuestions = cloneStrings(c.spec.OpenQuestions)
	graph.Risks = cloneStrings(c.spec.Risks)
	if len(c.spec.AcceptanceCriteria) > 0 {
		graph.AcceptanceCriteria = make([]schema.AcceptanceCriterion, len(c.spec.AcceptanceCriteria))
		copy(graph.AcceptanceCriteria, c.spec.AcceptanceCriteria)
	}
	return graph
}

// assumptions returns the author's assumptions followed by the trail of
// what was explicit and what was inferred in each group.
func (c *compilation) assumptions() []string {
	out := cloneStrings(c.spec.Assumptions)
	out = append(out, TrailSeparator)
	for _, g := range c.groups {
		out = append(out, fmt.Sprintf("Flow group %s: %d of %d nodes inferred; edges %s; starts %s; ends %s; system steps %s",
			g.outID(),
			g.inferredCount(), len(g.nodes),
			source(g.explicitEdges),
			source(g.explicitStarts),
			source(g.explicitEnds),
			g.systemSource))
		for _, n := range g.notes {
			out = append(out, fmt.Sprintf("Flow group %s: %s", g.outID(), n))
		}
	}
	return out
}

func source(explicit bool) string {
	if explicit {
		return "explicit"
	}
	return "inferred"
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
