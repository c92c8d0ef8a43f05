package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

// graphIndex holds lookups shared by the semantic and DAG stages. Degrees
// count distinct edges between existing nodes, self-loops excluded.
type graphIndex struct {
	nodes map[string]*schema.FlowNode
	in    map[string]int
	out   map[string]int
	lanes map[string]bool
}

func newGraphIndex(graph *schema.FlowGraph) *graphIndex {
	idx := &graphIndex{
		nodes: make(map[string]*schema.FlowNode, len(graph.Nodes)),
		in:    make(map[string]int),
		out:   make(map[string]int),
		lanes: make(map[string]bool, len(graph.Lanes)),
	}
	for i := range graph.Nodes {
		if _, dup := idx.nodes[graph.Nodes[i].ID]; !dup {
			idx.nodes[graph.Nodes[i].ID] = &graph.Nodes[i]
		}
	}
	for _, l := range graph.Lanes {
		idx.lanes[l] = true
	}
	seen := make(map[string]bool, len(graph.Edges))
	for _, e := range graph.Edges {
		if e.From == e.To || !idx.has(e.From) || !idx.has(e.To) || seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		idx.out[e.From]++
		idx.in[e.To]++
	}
	return idx
}

func (x *graphIndex) has(id string) bool {
	_, ok := x.nodes[id]
	return ok
}

// groupView is one flow group, or the whole graph when none are declared.
type groupView struct {
	id    string
	nodes []schema.FlowNode
	edges []schema.FlowEdge
}

func groupViews(graph *schema.FlowGraph) []groupView {
	if len(graph.FlowGroups) == 0 {
		return []groupView{{nodes: graph.Nodes, edges: graph.Edges}}
	}
	views := make([]groupView, len(graph.FlowGroups))
	for i, fg := range graph.FlowGroups {
		views[i] = groupView{id: fg.ID, nodes: fg.Nodes, edges: fg.Edges}
	}
	return views
}

// validateSemantic checks references, degrees, lanes, labels and the quality
// signals. Issues are emitted in node and edge order.
func validateSemantic(graph *schema.FlowGraph, idx *graphIndex, opts Options) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	validateNodeIDs(graph, result)
	validateEdges(graph, idx, result)
	validateGroupEdges(graph, idx, result)
	validateLanes(graph, idx, opts, result)
	for i := range graph.Nodes {
		validateNode(&graph.Nodes[i], idx, opts, result)
	}
	validateTerminals(graph, result)
	validateQuality(graph, result)

	return result
}

// validateNodeIDs requires node IDs to be unique in the graph and to belong
// to a single flow group.
func validateNodeIDs(graph *schema.FlowGraph, result *schema.ValidationResult) {
	seen := make(map[string]bool, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if seen[n.ID] {
			result.AddError(schema.IssueRef{NodeID: n.ID}, schema.IssueDuplicateNodeID,
				fmt.Sprintf("node id %q appears more than once", n.ID),
				"Give every node a unique id")
			continue
		}
		seen[n.ID] = true
	}

	owner := make(map[string]string)
	reported := make(map[string]bool)
	for _, fg := range graph.FlowGroups {
		for _, n := range fg.Nodes {
			first, ok := owner[n.ID]
			if !ok {
				owner[n.ID] = fg.ID
				continue
			}
			if first == fg.ID || reported[n.ID] {
				continue
			}
			reported[n.ID] = true
			result.AddError(schema.IssueRef{FlowGroup: fg.ID, NodeID: n.ID}, schema.IssueDuplicateNodeID,
				fmt.Sprintf("node id %q is used in flow groups %s and %s", n.ID, first, fg.ID),
				"Give every node a unique id across flow groups")
		}
	}
}

// validateGroupEdges requires each flow group's edges to stay inside the
// group. Endpoints missing from the whole graph are left to validateEdges.
func validateGroupEdges(graph *schema.FlowGraph, idx *graphIndex, result *schema.ValidationResult) {
	for _, fg := range graph.FlowGroups {
		members := make(map[string]bool, len(fg.Nodes))
		for _, n := range fg.Nodes {
			members[n.ID] = true
		}
		for _, e := range fg.Edges {
			for _, end := range []string{e.From, e.To} {
				if members[end] || !idx.has(end) {
					continue
				}
				result.AddError(schema.IssueRef{FlowGroup: fg.ID, EdgeFrom: e.From, EdgeTo: e.To}, schema.IssueCrossGroupEdge,
					fmt.Sprintf("edge %s of flow group %s references node %q outside the group", e.Key(), fg.ID, end),
					"Keep edges inside their flow group or move the node into it")
			}
		}
	}
}

func validateEdges(graph *schema.FlowGraph, idx *graphIndex, result *schema.ValidationResult) {
	seen := make(map[string]bool, len(graph.Edges))
	for _, e := range graph.Edges {
		ref := schema.IssueRef{FlowGroup: e.FlowGroup, EdgeFrom: e.From, EdgeTo: e.To}

		for _, end := range []string{e.From, e.To} {
			if !idx.has(end) {
				result.AddError(ref, schema.IssueMissingNodeReference,
					fmt.Sprintf("edge %s references unknown node %q", e.Key(), end),
					"Add the missing node or fix the edge endpoint")
			}
			if e.From == e.To {
				break
			}
		}

		if e.From == e.To {
			result.AddError(ref, schema.IssueSelfLoop,
				fmt.Sprintf("edge %s loops back to its own node", e.Key()),
				"Remove the self-loop or route it through another node")
			continue
		}

		if seen[e.Key()] {
			result.AddWarning(ref, schema.IssueDuplicateEdge,
				fmt.Sprintf("edge %s is declared more than once", e.Key()),
				"Remove the duplicate edge")
			continue
		}
		seen[e.Key()] = true
	}
}

func validateLanes(graph *schema.FlowGraph, idx *graphIndex, opts Options, result *schema.ValidationResult) {
	members := make(map[string]int)
	for _, n := range graph.Nodes {
		members[n.Lane]++
		if !idx.lanes[n.Lane] {
			result.AddError(schema.IssueRef{FlowGroup: n.FlowGroup, NodeID: n.ID}, schema.IssueUnknownLane,
				fmt.Sprintf("node %s is in lane %q which is not declared", n.ID, n.Lane),
				"Add the lane to the graph's lanes or move the node")
		}
	}

	for _, lane := range graph.Lanes {
		if members[lane] > 0 {
			continue
		}
		if lane == schema.LaneSystem && !opts.AllowEmptySystemLane {
			result.AddError(schema.IssueRef{}, schema.IssueEmptyRequiredLane,
				fmt.Sprintf("required lane %q has no nodes", lane),
				"Add a system step (SYS:) or allow an empty system lane")
			continue
		}
		result.AddWarning(schema.IssueRef{}, schema.IssueEmptyLane,
			fmt.Sprintf("lane %q has no nodes", lane),
			"Remove the lane or assign nodes to it")
	}
}

func validateNode(n *schema.FlowNode, idx *graphIndex, opts Options, result *schema.ValidationResult) {
	ref := schema.IssueRef{FlowGroup: n.FlowGroup, NodeID: n.ID}
	in, out := idx.in[n.ID], idx.out[n.ID]

	if n.Type == schema.NodeTypeDecision && out < 2 {
		result.AddError(ref, schema.IssueInsufficientDecision,
			fmt.Sprintf("decision %s has %d outgoing edge(s), needs at least 2", n.ID, out),
			"Declare both branches, e.g. \"D: Question? | yes: S2 | no: stop\"")
	}

	if limit := opts.maxLabelLength(); utf8.RuneCountInString(n.Label) > limit {
		result.AddWarning(ref, schema.IssueLabelTooLong,
			fmt.Sprintf("label of %s is longer than %d characters", n.ID, limit),
			"Shorten the label and move detail into notes")
	}

	switch {
	case n.Type == schema.NodeTypeStart && in > 0:
		result.AddError(ref, schema.IssueStartHasIncoming,
			fmt.Sprintf("start %s has %d incoming edge(s)", n.ID, in),
			"Remove edges that point into a start node")
	case n.Type.IsTerminal() && out > 0:
		result.AddError(ref, schema.IssueTerminalHasOutgoing,
			fmt.Sprintf("%s %s has %d outgoing edge(s)", n.Type, n.ID, out),
			"Remove edges that leave an end or exit node")
	}

	if n.Disconnected {
		return
	}
	switch {
	case n.Type == schema.NodeTypeStart:
		if out == 0 {
			result.AddError(ref, schema.IssueOrphanStart,
				fmt.Sprintf("start %s has no outgoing edge", n.ID),
				"Connect the start to the first step of the flow")
		}
	case n.Type.IsTerminal():
		if in == 0 {
			result.AddError(ref, schema.IssueOrphanEnd,
				fmt.Sprintf("%s %s has no incoming edge", n.Type, n.ID),
				"Connect the last step of the flow to this node")
		}
	case in == 0 && out == 0:
		msg := fmt.Sprintf("node %s has no edges", n.ID)
		suggestion := "Connect the node or mark it as intentionally disconnected"
		if opts.AllowDisconnected {
			result.AddWarning(ref, schema.IssueDisconnectedNode, msg, suggestion)
		} else {
			result.AddError(ref, schema.IssueDisconnectedNode, msg, suggestion)
		}
	case in == 0:
		result.AddWarning(ref, schema.IssueNodeNoIncoming,
			fmt.Sprintf("node %s has no incoming edge", n.ID),
			"Connect a preceding step to this node")
	case out == 0:
		result.AddWarning(ref, schema.IssueNodeNoOutgoing,
			fmt.Sprintf("node %s has no outgoing edge", n.ID),
			"Connect this node to a following step or an end")
	}
}

// validateTerminals requires a start and an end in the graph and in every
// non-empty flow group. Empty groups are reported once as EMPTY_FLOW_GROUP.
func validateTerminals(graph *schema.FlowGraph, result *schema.ValidationResult) {
	check := func(ref schema.IssueRef, scope string, nodes []schema.FlowNode) {
		var starts, ends int
		for _, n := range nodes {
			switch {
			case n.Type == schema.NodeTypeStart:
				starts++
			case n.Type.IsTerminal():
				ends++
			}
		}
		if starts == 0 {
			result.AddError(ref, schema.IssueNoStartNode,
				fmt.Sprintf("%s has no start node", scope),
				"Add a START: line or a step for the flow to begin at")
		}
		if ends == 0 {
			result.AddError(ref, schema.IssueNoEndNode,
				fmt.Sprintf("%s has no end or exit node", scope),
				"Add an END: or EXIT: line")
		}
	}

	check(schema.IssueRef{}, "graph", graph.Nodes)
	for _, fg := range graph.FlowGroups {
		ref := schema.IssueRef{FlowGroup: fg.ID}
		if len(fg.Nodes) == 0 {
			result.AddWarning(ref, schema.IssueEmptyFlowGroup,
				fmt.Sprintf("flow group %s has no nodes", fg.ID),
				"Add steps under the FG: line or remove it")
			continue
		}
		check(ref, "flow group "+fg.ID, fg.Nodes)
	}
}

func validateQuality(graph *schema.FlowGraph, result *schema.ValidationResult) {
	hasExit := false
	for _, n := range graph.Nodes {
		if n.Type == schema.NodeTypeExit || (n.Type == schema.NodeTypeEnd && heuristics.IsErrorLabel(n.Label)) {
			hasExit = true
			break
		}
	}
	if !hasExit && len(graph.Nodes) > 0 {
		result.AddWarning(schema.IssueRef{}, schema.IssueNoExitPath,
			"graph has no exit or error end node",
			"Add an EXIT: line or an END: line for the failure path")
	}

	inferred := 0
	for _, n := range graph.Nodes {
		if n.Inferred {
			inferred++
		}
	}
	if len(graph.Nodes) > 0 && float64(inferred)/float64(len(graph.Nodes)) > InferredRatioThreshold {
		result.AddWarning(schema.IssueRef{}, schema.IssueHighInferenceRatio,
			fmt.Sprintf("%d of %d nodes were inferred", inferred, len(graph.Nodes)),
			"Declare more steps, edges and terminals explicitly")
	}

	criteria := make(map[string]bool)
	for _, ac := range graph.AcceptanceCriteria {
		if !ac.Suggested && ac.AttachedTo != "" {
			criteria[ac.AttachedTo] = true
		}
	}
	for _, n := range graph.Nodes {
		if n.Type == schema.NodeTypeDecision && !criteria[n.ID] {
			result.AddWarning(schema.IssueRef{FlowGroup: n.FlowGroup, NodeID: n.ID}, schema.IssueDecisionWithoutCriteria,
				fmt.Sprintf("decision %s has no acceptance criteria", n.ID),
				fmt.Sprintf("Add \"AC: (%s) condition -> expected result\"", n.ID))
		}
	}
}
