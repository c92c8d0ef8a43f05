package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/stickyflow/internal/digraph"
	"github.com/rendis/stickyflow/pkg/schema"
)

// validateDAG reports every directed cycle inside a flow group, then any
// cycle that only closes across the flattened graph edges. Edges whose
// endpoints are unknown and self-loops are reported by the semantic stage
// and skipped here.
func validateDAG(graph *schema.FlowGraph, idx *graphIndex) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	reported := make(map[string]bool)

	views := groupViews(graph)
	if len(graph.FlowGroups) > 0 {
		views = append(views, groupView{nodes: graph.Nodes, edges: graph.Edges})
	}
	for _, view := range views {
		for _, cycle := range cyclesOf(view, idx) {
			key := strings.Join(cycle, ",")
			if reported[key] {
				continue
			}
			reported[key] = true
			result.AddError(schema.IssueRef{FlowGroup: view.id, NodeID: cycle[0]}, schema.IssueCycleDetected,
				fmt.Sprintf("nodes %s form a cycle", strings.Join(cycle, ", ")),
				"Remove one of the edges between these nodes")
		}
	}

	return result
}

// cyclesOf returns the cycles of one view with members sorted by ID.
func cyclesOf(view groupView, idx *graphIndex) [][]string {
	dg := digraph.New()
	for _, n := range view.nodes {
		dg.AddNode(n.ID)
	}
	for _, e := range view.edges {
		if e.From == e.To || !idx.has(e.From) || !idx.has(e.To) {
			continue
		}
		dg.SetEdge(e.From, e.To)
	}

	cycles := dg.Cycles()
	for _, c := range cycles {
		sort.Strings(c)
	}
	return cycles
}
