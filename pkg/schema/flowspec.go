package schema

// Record is one extracted sticky note handed to the parser by the
// upstream extractor. Text may span multiple lines.
type Record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Label classifies a single line of sticky-note text.
type Label string

const (
	LabelContext                  Label = "context"
	LabelGoal                     Label = "goal"
	LabelPersona                  Label = "persona"
	LabelProblem                  Label = "problem"
	LabelFunctionalRequirement    Label = "functional_requirement"
	LabelNonFunctionalRequirement Label = "non_functional_requirement"
	LabelStep                     Label = "step"
	LabelDecision                 Label = "decision"
	LabelEdge                     Label = "edge"
	LabelFlowGroup                Label = "flow_group"
	LabelActor                    Label = "actor"
	LabelStart                    Label = "start"
	LabelEnd                      Label = "end"
	LabelExit                     Label = "exit"
	LabelSystemStep               Label = "system_step"
	LabelChoice                   Label = "choice"
	LabelAssumption               Label = "assumption"
	LabelQuestion                 Label = "question"
	LabelRisk                     Label = "risk"
	LabelAcceptanceCriterion      Label = "acceptance_criterion"
	LabelUIElement                Label = "ui_element"
	LabelDataObject               Label = "data_object"
	LabelRule                     Label = "rule"
	LabelOutput                   Label = "output"
	LabelUnlabeled                Label = "unlabeled"
)

// ParsedLine is the classification of one input line. Produced transiently
// by the parser; it is not part of the persisted FlowSpec.
type ParsedLine struct {
	Raw            string `json:"raw"`
	Label          Label  `json:"label"`
	Value          string `json:"value"`
	SourceNodeID   string `json:"sourceNodeId,omitempty"`
	SourceNodeName string `json:"sourceNodeName,omitempty"`
	LineIndex      int    `json:"lineIndex"`
}

// MainFlowGroup is the implicit aggregate flow for untagged items. Items
// belonging to it carry an empty FlowGroup.
const MainFlowGroup = "main"

// FlowSpec is the parser's structured intermediate representation.
// Read-only once built.
type FlowSpec struct {
	Context                   []string              `json:"context,omitempty"`
	Goals                     []string              `json:"goals,omitempty"`
	Personas                  []Persona             `json:"personas,omitempty"`
	Problems                  []string              `json:"problems,omitempty"`
	FunctionalRequirements    []string              `json:"functionalRequirements,omitempty"`
	NonFunctionalRequirements []string              `json:"nonFunctionalRequirements,omitempty"`
	Actors                    []string              `json:"actors,omitempty"`
	FlowGroups                []FlowGroupDecl       `json:"flowGroups,omitempty"`
	Steps                     []Step                `json:"steps,omitempty"`
	Decisions                 []Decision            `json:"decisions,omitempty"`
	Edges                     []EdgeDecl            `json:"edges,omitempty"`
	Starts                    []TerminalDecl        `json:"starts,omitempty"`
	Ends                      []TerminalDecl        `json:"ends,omitempty"`
	Exits                     []TerminalDecl        `json:"exits,omitempty"`
	SystemSteps               []Step                `json:"systemSteps,omitempty"`
	Choices                   []Choice              `json:"choices,omitempty"`
	AcceptanceCriteria        []AcceptanceCriterion `json:"acceptanceCriteria,omitempty"`
	Assumptions               []string              `json:"assumptions,omitempty"`
	OpenQuestions             []string              `json:"openQuestions,omitempty"`
	Risks                     []string              `json:"risks,omitempty"`
	UIElements                []string              `json:"uiElements,omitempty"`
	DataObjects               []string              `json:"dataObjects,omitempty"`
	Rules                     []string              `json:"rules,omitempty"`
	Outputs                   []string              `json:"outputs,omitempty"`
	Notes                     []string              `json:"notes,omitempty"`
}

// Persona is a named user archetype, "Name - details".
type Persona struct {
	Name    string `json:"name"`
	Details string `json:"details,omitempty"`
}

// FlowGroupDecl declares a named sub-scenario.
type FlowGroupDecl struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Step is a user or system action. Seq is the global declaration order
// across steps, decisions, choices and system steps.
type Step struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Lane         string `json:"lane,omitempty"`
	FlowGroup    string `json:"flowGroup,omitempty"`
	SourceNodeID string `json:"sourceNodeId,omitempty"`
	Seq          int    `json:"seq"`
}

// Decision is a yes/no branch point. Yes and No hold the raw declared
// targets; they may name a node ID, a node label or nothing at all.
type Decision struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	Yes          string `json:"yes,omitempty"`
	No           string `json:"no,omitempty"`
	Lane         string `json:"lane,omitempty"`
	FlowGroup    string `json:"flowGroup,omitempty"`
	SourceNodeID string `json:"sourceNodeId,omitempty"`
	Seq          int    `json:"seq"`
}

// Choice is a multi-way decision.
type Choice struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options,omitempty"`
	Lane         string   `json:"lane,omitempty"`
	FlowGroup    string   `json:"flowGroup,omitempty"`
	SourceNodeID string   `json:"sourceNodeId,omitempty"`
	Seq          int      `json:"seq"`
}

// EdgeDecl is an author-declared connection, "from -> to [label=..., condition=...]".
type EdgeDecl struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
	FlowGroup string `json:"flowGroup,omitempty"`
}

// TerminalDecl is an explicit START:, END: or EXIT: declaration.
type TerminalDecl struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Lane      string `json:"lane,omitempty"`
	FlowGroup string `json:"flowGroup,omitempty"`
}

// AcceptanceCriterion is "condition -> expected result". AttachedTo names
// the node the criterion was written against, when known.
type AcceptanceCriterion struct {
	Condition      string `json:"condition"`
	ExpectedResult string `json:"expectedResult,omitempty"`
	AttachedTo     string `json:"attachedTo,omitempty"`
	Suggested      bool   `json:"suggested,omitempty"`
}

// GroupOf normalizes an item's flow group tag: empty means main.
func GroupOf(tag string) string {
	if tag == "" {
		return MainFlowGroup
	}
	return tag
}
