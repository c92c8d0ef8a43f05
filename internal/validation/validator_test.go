package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/rendis/stickyflow/internal/expander"
	"github.com/rendis/stickyflow/internal/grammar"
	"github.com/rendis/stickyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fixtures ---

func node(id string, typ schema.NodeType, lane, label string) schema.FlowNode {
	return schema.FlowNode{ID: id, Type: typ, Lane: lane, Label: label, FlowGroup: "main"}
}

func edge(from, to, label string) schema.FlowEdge {
	return schema.FlowEdge{From: from, To: to, Label: label, FlowGroup: "main"}
}

// validGraph is a small graph that passes every check with no warnings.
func validGraph() *schema.FlowGraph {
	nodes := []schema.FlowNode{
		node("start", schema.NodeTypeStart, schema.LaneUser, "Start"),
		node("S1", schema.NodeTypeStep, schema.LaneUser, "Open app"),
		node("SYS1", schema.NodeTypeSystem, schema.LaneSystem, "Load songs"),
		node("D1", schema.NodeTypeDecision, schema.LaneUser, "Ready?"),
		node("end", schema.NodeTypeEnd, schema.LaneUser, "Complete"),
		node("exit", schema.NodeTypeExit, schema.LaneUser, "User Exit"),
	}
	edges := []schema.FlowEdge{
		edge("start", "S1", ""),
		edge("S1", "SYS1", ""),
		edge("SYS1", "D1", ""),
		edge("D1", "end", "Yes"),
		edge("D1", "exit", "No"),
	}
	return &schema.FlowGraph{
		Metadata: schema.GraphMetadata{
			GrammarVersion:  schema.GrammarVersion,
			ExpanderVersion: schema.ExpanderVersion,
		},
		Lanes: []string{schema.LaneUser, schema.LaneSystem},
		FlowGroups: []schema.FlowGroupOutput{{
			ID:     "main",
			Name:   "Main",
			Starts: []string{"start"},
			Ends:   []string{"end", "exit"},
			Nodes:  append([]schema.FlowNode(nil), nodes...),
			Edges:  append([]schema.FlowEdge(nil), edges...),
		}},
		Nodes:  nodes,
		Edges:  edges,
		Starts: []string{"start"},
		Ends:   []string{"end", "exit"},
		AcceptanceCriteria: []schema.AcceptanceCriterion{
			{Condition: "user is ready", ExpectedResult: "song starts", AttachedTo: "D1"},
		},
	}
}

func strict() Options { return Options{Strict: true} }

func codes(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Code
	}
	return out
}

func removeEdge(g *schema.FlowGraph, from, to string) {
	var kept []schema.FlowEdge
	for _, e := range g.Edges {
		if e.From != from || e.To != to {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
}

// --- Baseline ---

func TestValidate_CleanGraph(t *testing.T) {
	r := Validate(validGraph(), strict())

	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
	assert.NotNil(t, r.Errors, "issue lists are never nil")
	assert.NoError(t, r.ToError())
}

func TestValidate_Nil(t *testing.T) {
	r := Validate(nil, strict())
	assert.False(t, r.Valid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, schema.ErrCodeValidation, r.Errors[0].Code)

	assert.True(t, Validate(nil, Options{}).Valid)
}

func TestValidate_Stats(t *testing.T) {
	g := validGraph()
	g.Nodes[1].Inferred = true
	g.Edges[0].Inferred = true

	r := Validate(g, Options{})
	require.NotNil(t, r.Stats)
	assert.Equal(t, 6, r.Stats.TotalNodes)
	assert.Equal(t, 5, r.Stats.TotalEdges)
	assert.Equal(t, 1, r.Stats.TotalFlowGroups)
	assert.Equal(t, 1, r.Stats.InferredNodes)
	assert.Equal(t, 1, r.Stats.InferredEdges)
	assert.Equal(t, 1, r.Stats.NodesByType["decision"])
	assert.Equal(t, 5, r.Stats.NodesByLane[schema.LaneUser])
	assert.Equal(t, 1, r.Stats.NodesByLane[schema.LaneSystem])
}

func TestValidate_StrictDecidesValidity(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("S1", "ghost", ""))

	loose := Validate(g, Options{})
	assert.True(t, loose.Valid, "errors never block in non-strict mode")
	assert.True(t, loose.HasErrors())
	assert.NoError(t, loose.ToError())

	r := Validate(g, strict())
	assert.False(t, r.Valid)
	err := r.ToError()
	require.Error(t, err)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
	assert.Equal(t, len(r.Errors), fe.Details["error_count"])
}

func TestValidate_DoesNotMutate(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("S1", "S1", ""), edge("start", "S1", ""))
	before := validGraph()
	before.Edges = append(before.Edges, edge("S1", "S1", ""), edge("start", "S1", ""))

	Validate(g, strict())
	assert.Equal(t, before, g)
}

// --- Injected defects ---

func TestValidate_DanglingEdge(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("S1", "ghost", ""))

	r := Validate(g, strict())
	missing := r.IssuesWithCode(schema.IssueMissingNodeReference)
	require.Len(t, missing, 1)
	assert.Equal(t, "S1", missing[0].EdgeFrom)
	assert.Equal(t, "ghost", missing[0].EdgeTo)
	assert.Equal(t, schema.SeverityError, missing[0].Severity)
	assert.Contains(t, missing[0].Message, `"ghost"`)
	assert.NotEmpty(t, missing[0].Suggestion)
}

func TestValidate_DanglingBothEnds(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("nowhere", "ghost", ""))

	r := Validate(g, strict())
	assert.Len(t, r.IssuesWithCode(schema.IssueMissingNodeReference), 2)
}

func TestValidate_UnderBranchedDecision(t *testing.T) {
	g := validGraph()
	removeEdge(g, "D1", "exit")

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueInsufficientDecision)
	require.Len(t, issues, 1)
	assert.Equal(t, "D1", issues[0].NodeID)
	assert.False(t, r.Valid)
}

func TestValidate_FlowGroupWithoutStart(t *testing.T) {
	g := validGraph()
	p1 := schema.FlowNode{ID: "P1", Type: schema.NodeTypeStep, Lane: schema.LaneUser, Label: "Invite", FlowGroup: "party"}
	pe := schema.FlowNode{ID: "party_end", Type: schema.NodeTypeEnd, Lane: schema.LaneUser, Label: "Complete", FlowGroup: "party"}
	pEdge := schema.FlowEdge{From: "P1", To: "party_end", FlowGroup: "party"}
	g.Nodes = append(g.Nodes, p1, pe)
	g.Edges = append(g.Edges, pEdge)
	g.FlowGroups = append(g.FlowGroups, schema.FlowGroupOutput{
		ID: "party", Name: "Party", Starts: []string{}, Ends: []string{"party_end"},
		Nodes: []schema.FlowNode{p1, pe}, Edges: []schema.FlowEdge{pEdge},
	})

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueNoStartNode)
	require.Len(t, issues, 1)
	assert.Equal(t, "party", issues[0].FlowGroup)
	assert.Empty(t, r.IssuesWithCode(schema.IssueNoEndNode))
}

func TestValidate_GraphWithoutTerminals(t *testing.T) {
	g := &schema.FlowGraph{
		Lanes: []string{schema.LaneUser, schema.LaneSystem},
		Nodes: []schema.FlowNode{
			node("A", schema.NodeTypeStep, schema.LaneUser, "A"),
			node("B", schema.NodeTypeSystem, schema.LaneSystem, "B"),
		},
		Edges: []schema.FlowEdge{edge("A", "B", "")},
	}
	r := Validate(g, strict())
	assert.Len(t, r.IssuesWithCode(schema.IssueNoStartNode), 1)
	assert.Len(t, r.IssuesWithCode(schema.IssueNoEndNode), 1)
}

func TestValidate_SelfLoop(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("S1", "S1", ""))
	g.FlowGroups[0].Edges = append(g.FlowGroups[0].Edges, edge("S1", "S1", ""))

	r := Validate(g, strict())
	assert.Len(t, r.IssuesWithCode(schema.IssueSelfLoop), 1)
	assert.Empty(t, r.IssuesWithCode(schema.IssueCycleDetected))
	assert.Empty(t, r.IssuesWithCode(schema.IssueMissingNodeReference))
}

func TestValidate_Cycle(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("SYS1", "S1", ""))
	g.FlowGroups[0].Edges = append(g.FlowGroups[0].Edges, edge("SYS1", "S1", ""))

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueCycleDetected)
	require.Len(t, issues, 1)
	assert.Equal(t, "main", issues[0].FlowGroup)
	assert.Contains(t, issues[0].Message, "S1, SYS1")
}

func TestValidate_CycleWithoutFlowGroups(t *testing.T) {
	g := validGraph()
	g.FlowGroups = nil
	g.Edges = append(g.Edges, edge("D1", "S1", "Again"))

	r := Validate(g, strict())
	assert.Len(t, r.IssuesWithCode(schema.IssueCycleDetected), 1)
}

// twoGroupGraph splits validGraph's flow into a "party" group that hands
// nothing to main, so each group is acyclic on its own.
func twoGroupGraph() *schema.FlowGraph {
	g := validGraph()
	ps := schema.FlowNode{ID: "party_start", Type: schema.NodeTypeStart, Lane: schema.LaneUser, Label: "Start", FlowGroup: "party"}
	p1 := schema.FlowNode{ID: "P1", Type: schema.NodeTypeStep, Lane: schema.LaneUser, Label: "Invite", FlowGroup: "party"}
	p2 := schema.FlowNode{ID: "P2", Type: schema.NodeTypeStep, Lane: schema.LaneUser, Label: "Dance", FlowGroup: "party"}
	pe := schema.FlowNode{ID: "party_end", Type: schema.NodeTypeEnd, Lane: schema.LaneUser, Label: "Complete", FlowGroup: "party"}
	edges := []schema.FlowEdge{
		{From: "party_start", To: "P1", FlowGroup: "party"},
		{From: "P1", To: "P2", FlowGroup: "party"},
		{From: "P2", To: "party_end", FlowGroup: "party"},
	}
	g.Nodes = append(g.Nodes, ps, p1, p2, pe)
	g.Edges = append(g.Edges, edges...)
	g.Starts = append(g.Starts, "party_start")
	g.Ends = append(g.Ends, "party_end")
	g.FlowGroups = append(g.FlowGroups, schema.FlowGroupOutput{
		ID: "party", Name: "Party", Starts: []string{"party_start"}, Ends: []string{"party_end"},
		Nodes: []schema.FlowNode{ps, p1, p2, pe}, Edges: edges,
	})
	return g
}

func TestValidate_TwoGroupsClean(t *testing.T) {
	r := Validate(twoGroupGraph(), strict())
	assert.Empty(t, r.Errors)
	assert.True(t, r.Valid)
}

func TestValidate_CycleOnlyInFlattenedEdges(t *testing.T) {
	g := twoGroupGraph()
	g.Edges = append(g.Edges, edge("P2", "P1", ""))

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueCycleDetected)
	require.Len(t, issues, 1)
	assert.Equal(t, "", issues[0].FlowGroup, "reported at graph level")
	assert.Contains(t, issues[0].Message, "P1, P2")
	assert.False(t, r.Valid)
}

func TestValidate_CycleInGroupReportedOnce(t *testing.T) {
	g := twoGroupGraph()
	back := schema.FlowEdge{From: "P2", To: "P1", FlowGroup: "party"}
	g.Edges = append(g.Edges, back)
	g.FlowGroups[1].Edges = append(g.FlowGroups[1].Edges, back)

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueCycleDetected)
	require.Len(t, issues, 1)
	assert.Equal(t, "party", issues[0].FlowGroup)
}

func TestValidate_CrossGroupEdge(t *testing.T) {
	g := twoGroupGraph()
	cross := schema.FlowEdge{From: "P1", To: "S1", FlowGroup: "party"}
	g.Edges = append(g.Edges, cross)
	g.FlowGroups[1].Edges = append(g.FlowGroups[1].Edges, cross)

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueCrossGroupEdge)
	require.Len(t, issues, 1)
	assert.Equal(t, "party", issues[0].FlowGroup)
	assert.Equal(t, "S1", issues[0].EdgeTo)
	assert.Empty(t, r.IssuesWithCode(schema.IssueMissingNodeReference))
}

func TestValidate_NodeIDInTwoGroups(t *testing.T) {
	g := twoGroupGraph()
	shared := g.FlowGroups[0].Nodes[1]
	shared.FlowGroup = "party"
	g.FlowGroups[1].Nodes = append(g.FlowGroups[1].Nodes, shared)

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueDuplicateNodeID)
	require.Len(t, issues, 1)
	assert.Equal(t, "S1", issues[0].NodeID)
	assert.Contains(t, issues[0].Message, "main and party")
}

func TestValidate_Disconnected(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes, node("lonely", schema.NodeTypeStep, schema.LaneUser, "Lonely"))

	r := Validate(g, strict())
	issues := r.IssuesWithCode(schema.IssueDisconnectedNode)
	require.Len(t, issues, 1)
	assert.Equal(t, schema.SeverityError, issues[0].Severity)

	r = Validate(g, Options{Strict: true, AllowDisconnected: true})
	issues = r.IssuesWithCode(schema.IssueDisconnectedNode)
	require.Len(t, issues, 1)
	assert.Equal(t, schema.SeverityWarning, issues[0].Severity)
	assert.True(t, r.Valid)

	g.Nodes[len(g.Nodes)-1].Disconnected = true
	r = Validate(g, strict())
	assert.Empty(t, r.IssuesWithCode(schema.IssueDisconnectedNode))
	assert.True(t, r.Valid)
}

func TestValidate_HalfConnectedNodes(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes,
		node("tail", schema.NodeTypeStep, schema.LaneUser, "Tail"),
		node("head", schema.NodeTypeStep, schema.LaneUser, "Head"),
	)
	g.Edges = append(g.Edges, edge("S1", "tail", ""), edge("head", "D1", ""))

	r := Validate(g, strict())
	assert.True(t, r.Valid, "half-connected actions are warnings")
	out := r.IssuesWithCode(schema.IssueNodeNoOutgoing)
	require.Len(t, out, 1)
	assert.Equal(t, "tail", out[0].NodeID)
	in := r.IssuesWithCode(schema.IssueNodeNoIncoming)
	require.Len(t, in, 1)
	assert.Equal(t, "head", in[0].NodeID)
}

func TestValidate_OrphanTerminals(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes,
		node("start2", schema.NodeTypeStart, schema.LaneUser, "Start"),
		node("end2", schema.NodeTypeEnd, schema.LaneUser, "Done"),
	)

	r := Validate(g, Options{Strict: true, AllowDisconnected: true})
	assert.Len(t, r.IssuesWithCode(schema.IssueOrphanStart), 1)
	assert.Len(t, r.IssuesWithCode(schema.IssueOrphanEnd), 1)
	assert.Empty(t, r.IssuesWithCode(schema.IssueDisconnectedNode))
	assert.False(t, r.Valid)
}

func TestValidate_TerminalDirection(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes, node("X", schema.NodeTypeStep, schema.LaneUser, "Sneak in"))
	g.Edges = append(g.Edges, edge("X", "start", ""), edge("end", "exit", ""))

	r := Validate(g, strict())
	assert.Len(t, r.IssuesWithCode(schema.IssueStartHasIncoming), 1)
	assert.Len(t, r.IssuesWithCode(schema.IssueTerminalHasOutgoing), 1)
}

func TestValidate_Lanes(t *testing.T) {
	g := validGraph()
	g.Nodes[1].Lane = "Martian"

	r := Validate(g, strict())
	unknown := r.IssuesWithCode(schema.IssueUnknownLane)
	require.Len(t, unknown, 1)
	assert.Equal(t, "S1", unknown[0].NodeID)
}

func TestValidate_EmptySystemLane(t *testing.T) {
	g := validGraph()
	g.Nodes = append(g.Nodes[:2], g.Nodes[3:]...)
	removeEdge(g, "S1", "SYS1")
	removeEdge(g, "SYS1", "D1")
	g.Edges = append(g.Edges, edge("S1", "D1", ""))
	g.FlowGroups = nil

	r := Validate(g, strict())
	require.Len(t, r.IssuesWithCode(schema.IssueEmptyRequiredLane), 1)
	assert.False(t, r.Valid)

	r = Validate(g, Options{Strict: true, AllowEmptySystemLane: true})
	assert.Empty(t, r.IssuesWithCode(schema.IssueEmptyRequiredLane))
	assert.Len(t, r.IssuesWithCode(schema.IssueEmptyLane), 1)
	assert.True(t, r.Valid)
}

func TestValidate_EmptyCustomLaneWarns(t *testing.T) {
	g := validGraph()
	g.Lanes = append(g.Lanes, "Venue")

	r := Validate(g, strict())
	assert.True(t, r.Valid)
	assert.Equal(t, []string{schema.IssueEmptyLane}, codes(r.Warnings))
}

func TestValidate_DuplicatesAndIDs(t *testing.T) {
	g := validGraph()
	g.Edges = append(g.Edges, edge("start", "S1", ""))

	r := Validate(g, strict())
	assert.True(t, r.Valid, "duplicate edges are warnings")
	assert.Len(t, r.IssuesWithCode(schema.IssueDuplicateEdge), 1)

	g = validGraph()
	g.Nodes = append(g.Nodes, node("S1", schema.NodeTypeStep, schema.LaneUser, "Again"))
	r = Validate(g, strict())
	assert.Len(t, r.IssuesWithCode(schema.IssueDuplicateNodeID), 1)
}

// --- Quality warnings ---

func TestValidate_QualityWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *schema.FlowGraph)
		opts   Options
		want   string
	}{
		{
			name: "no exit path",
			mutate: func(g *schema.FlowGraph) {
				g.Nodes[5].Type = schema.NodeTypeEnd
				g.Nodes[5].Label = "Finished"
			},
			want: schema.IssueNoExitPath,
		},
		{
			name:   "long label",
			mutate: func(g *schema.FlowGraph) { g.Nodes[1].Label = strings.Repeat("a", 61) },
			want:   schema.IssueLabelTooLong,
		},
		{
			name: "empty flow group",
			mutate: func(g *schema.FlowGraph) {
				g.FlowGroups = append(g.FlowGroups, schema.FlowGroupOutput{ID: "later", Name: "Later"})
			},
			want: schema.IssueEmptyFlowGroup,
		},
		{
			name: "high inference ratio",
			mutate: func(g *schema.FlowGraph) {
				for i := range g.Nodes[:4] {
					g.Nodes[i].Inferred = true
				}
			},
			want: schema.IssueHighInferenceRatio,
		},
		{
			name:   "decision without criteria",
			mutate: func(g *schema.FlowGraph) { g.AcceptanceCriteria = nil },
			want:   schema.IssueDecisionWithoutCriteria,
		},
		{
			name: "suggested criteria do not count",
			mutate: func(g *schema.FlowGraph) {
				g.AcceptanceCriteria[0].Suggested = true
			},
			want: schema.IssueDecisionWithoutCriteria,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGraph()
			tt.mutate(g)
			opts := tt.opts
			opts.Strict = true

			r := Validate(g, opts)
			assert.True(t, r.Valid, "warnings never block")
			assert.Empty(t, r.Errors)
			assert.Equal(t, []string{tt.want}, codes(r.Warnings))
		})
	}
}

func TestValidate_LabelLimitIsConfigurable(t *testing.T) {
	g := validGraph()
	g.Nodes[1].Label = strings.Repeat("a", 61)

	r := Validate(g, Options{MaxLabelLength: 100})
	assert.Empty(t, r.IssuesWithCode(schema.IssueLabelTooLong))
	r = Validate(g, Options{MaxLabelLength: 10})
	assert.Len(t, r.IssuesWithCode(schema.IssueLabelTooLong), 1)
}

func TestValidate_ErrorEndCountsAsExitPath(t *testing.T) {
	g := validGraph()
	g.Nodes[5].Type = schema.NodeTypeEnd
	g.Nodes[5].Label = "Error"

	r := Validate(g, strict())
	assert.Empty(t, r.IssuesWithCode(schema.IssueNoExitPath))
}

// --- Expander output ---

func TestValidate_ExpandedScenario(t *testing.T) {
	spec := grammar.Parse([]schema.Record{
		{ID: "n1", Text: "S: (S1) User opens app"},
		{ID: "n2", Text: "S: (S2) User taps Karaoke"},
		{ID: "n3", Text: "D: Is available? | yes: continue | no: stop"},
	})
	g := expander.Expand(spec, expander.Meta{})

	r := Validate(g, Options{Strict: true, AllowDisconnected: true, AllowEmptySystemLane: true})
	assert.Empty(t, r.Errors)
	assert.True(t, r.Valid)

	r = Validate(g, strict())
	assert.Equal(t, []string{schema.IssueEmptyRequiredLane}, codes(r.Errors))
}

func TestValidate_ExpandedGroupsSharingIDs(t *testing.T) {
	spec := grammar.Parse([]schema.Record{
		{ID: "n1", Text: "FG: Signup\nS: (S1) Enter email\nS: (S2) Confirm email\nE: S1 -> S2"},
		{ID: "n2", Text: "FG: Recovery\nS: (S1) Request code\nS: (S2) Reset password\nE: S2 -> S1"},
	})
	g := expander.Expand(spec, expander.Meta{})

	r := Validate(g, Options{Strict: true, AllowEmptySystemLane: true})
	assert.Empty(t, r.Errors)
	assert.True(t, r.Valid)
	require.NotNil(t, r.Stats)
	assert.Equal(t, len(g.FlowGroups[0].Nodes)+len(g.FlowGroups[1].Nodes), r.Stats.TotalNodes)
}

func TestValidate_ExpandedGraphsHaveNoStructuralErrors(t *testing.T) {
	inputs := [][]string{
		{"S: Host creates a lobby\nD: Solo or with friends?\nS: Pick a song\nS: Save the score"},
		{"S: (A) One\nS: (B) Two\nE: A -> B\nE: B -> A\nSYS: Sync"},
		{"FG: Party\nS: Invite friends\nCH: Game | Karaoke | Trivia\nS: Karaoke\nS: Trivia", "FG: main\nS: User logs in"},
	}
	for _, texts := range inputs {
		records := make([]schema.Record, len(texts))
		for i, text := range texts {
			records[i] = schema.Record{ID: "n", Text: text}
		}
		g := expander.Expand(grammar.Parse(records), expander.Meta{})

		r := Validate(g, strict())
		assert.Empty(t, r.Errors, "input %q", texts)
	}
}
