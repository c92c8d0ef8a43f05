package schema

import "time"

// NodeType classifies a FlowGraph node.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeStep     NodeType = "step"
	NodeTypeSystem   NodeType = "system"
	NodeTypeDecision NodeType = "decision"
	NodeTypeEnd      NodeType = "end"
	NodeTypeExit     NodeType = "exit"
)

// IsTerminal reports whether the type ends a path (end or exit).
func (t NodeType) IsTerminal() bool {
	return t == NodeTypeEnd || t == NodeTypeExit
}

// IsAction reports whether the type is a step, system step or decision.
func (t NodeType) IsAction() bool {
	return t == NodeTypeStep || t == NodeTypeSystem || t == NodeTypeDecision
}

// Lane names the expander always knows about.
const (
	LaneUser   = "User"
	LaneSolo   = "Solo"
	LaneHost   = "Host"
	LaneGuest  = "Guest"
	LaneSystem = "System"
)

// Version identifiers stamped into every generated graph.
const (
	GrammarVersion  = "1.2.0"
	ExpanderVersion = "2.1.0"
)

// FlowGraph is the compiled, persisted artifact. Nodes, Edges, Starts and
// Ends are the deduplicated union of every flow group.
type FlowGraph struct {
	Metadata           GraphMetadata         `json:"metadata"`
	Lanes              []string              `json:"lanes"`
	FlowGroups         []FlowGroupOutput     `json:"flowGroups"`
	Nodes              []FlowNode            `json:"nodes"`
	Edges              []FlowEdge            `json:"edges"`
	Starts             []string              `json:"starts"`
	Ends               []string              `json:"ends"`
	Assumptions        []string              `json:"assumptions,omitempty"`
	OpenQuestions      []string              `json:"openQuestions,omitempty"`
	Risks              []string              `json:"risks,omitempty"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptanceCriteria,omitempty"`
}

// GraphMetadata describes where and how a graph was generated.
type GraphMetadata struct {
	Project         string    `json:"project,omitempty"`
	Feature         string    `json:"feature,omitempty"`
	GeneratedAt     time.Time `json:"generatedAt"`
	Source          string    `json:"source,omitempty"`
	GrammarVersion  string    `json:"grammarVersion"`
	ExpanderVersion string    `json:"expanderVersion"`
}

// FlowNode is one typed vertex. Lane must be a member of FlowGraph.Lanes.
type FlowNode struct {
	ID         string    `json:"id"`
	Type       NodeType  `json:"type"`
	Lane       string    `json:"lane"`
	Label      string    `json:"label"`
	SourceText string    `json:"sourceText,omitempty"`
	Inferred   bool      `json:"inferred"`
	FlowGroup  string    `json:"flowGroup"`
	Branches   *Branches `json:"branches,omitempty"`
	Options    []string  `json:"options,omitempty"`
	// Disconnected marks a node the author intends to stand alone; the
	// validator skips its connectivity checks.
	Disconnected bool `json:"disconnected,omitempty"`
}

// Branches is the heuristic reading of decision-like text.
type Branches struct {
	Condition string `json:"condition,omitempty"`
	IfTrue    string `json:"ifTrue,omitempty"`
	IfFalse   string `json:"ifFalse,omitempty"`
}

// FlowEdge is a directed connection. Both endpoints reference node IDs.
type FlowEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
	FlowGroup string `json:"flowGroup"`
	Inferred  bool   `json:"inferred,omitempty"`
}

// Key identifies an edge by its endpoints.
func (e FlowEdge) Key() string {
	return e.From + "->" + e.To
}

// FlowGroupOutput is a self-contained sub-graph.
type FlowGroupOutput struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Starts []string   `json:"starts"`
	Ends   []string   `json:"ends"`
	Nodes  []FlowNode `json:"nodes"`
	Edges  []FlowEdge `json:"edges"`
}

// Node returns the node with the given ID, or nil.
func (g *FlowGraph) Node(id string) *FlowNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}
