package grammar

import (
	"testing"

	"github.com/rendis/stickyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, name, text string) schema.Record {
	return schema.Record{ID: id, Name: name, Text: text}
}

// --- Classification ---

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line  string
		label schema.Label
		value string
	}{
		{"G: Sing together", schema.LabelGoal, "Sing together"},
		{"goal:   Sing together  ", schema.LabelGoal, "Sing together"},
		{"- S: Open app", schema.LabelStep, "Open app"},
		{"2) D: Has account?", schema.LabelDecision, "Has account?"},
		{"NFR: Under 200ms", schema.LabelNonFunctionalRequirement, "Under 200ms"},
		{"Note: call Bob", schema.LabelUnlabeled, "Note: call Bob"},
		{"Random text", schema.LabelUnlabeled, "Random text"},
		{"", schema.LabelUnlabeled, ""},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			label, value := ClassifyLine(tc.line)
			assert.Equal(t, tc.label, label)
			assert.Equal(t, tc.value, value)
		})
	}
}

func TestClassify_OneLinePerInputLine(t *testing.T) {
	records := []schema.Record{
		rec("n1", "Intro", "G: Party\n\nRandom text"),
		rec("n2", "", "S: Open app\r\nS: Pick song"),
		rec("n3", "", ""),
	}
	lines := Classify(records)
	require.Len(t, lines, 6)

	assert.Equal(t, "n1", lines[0].SourceNodeID)
	assert.Equal(t, "Intro", lines[0].SourceNodeName)
	assert.Equal(t, 1, lines[1].LineIndex)
	assert.Equal(t, schema.LabelUnlabeled, lines[1].Label)
	assert.Equal(t, "S: Open app", lines[3].Raw)
	assert.Equal(t, 1, lines[4].LineIndex)
	assert.Equal(t, "n3", lines[5].SourceNodeID)
}

// --- Parse ---

func TestParse_Goal(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "G: Users can sing karaoke together")})
	assert.Equal(t, []string{"Users can sing karaoke together"}, spec.Goals)
	assert.Empty(t, spec.Notes)
}

func TestParse_UnlabeledGoesToNotes(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "Random text\n\n")})
	assert.Equal(t, []string{"Random text"}, spec.Notes)
	assert.Empty(t, spec.Steps)
}

func TestParse_Edge(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "E: S1 -> S2 [label=Yes, condition=ok]")})
	require.Len(t, spec.Edges, 1)
	assert.Equal(t, schema.EdgeDecl{From: "S1", To: "S2", Label: "Yes", Condition: "ok"}, spec.Edges[0])
}

func TestParse_EdgeChain(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "E: A -> B -> C [label=\"go\"]")})
	require.Len(t, spec.Edges, 2)
	assert.Equal(t, "A", spec.Edges[0].From)
	assert.Equal(t, "B", spec.Edges[0].To)
	assert.Equal(t, "B", spec.Edges[1].From)
	assert.Equal(t, "C", spec.Edges[1].To)
	assert.Equal(t, "go", spec.Edges[1].Label)
}

func TestParse_UnparsedEdge(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "E: S1 to S2\nE: -> S2")})
	assert.Empty(t, spec.Edges)
	assert.Equal(t, []string{"Unparsed edge: S1 to S2", "Unparsed edge: -> S2"}, spec.Notes)
}

func TestParse_Decision(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "D: (D1) Has account? | yes: S2 | no: Sign up | maybe later")})
	require.Len(t, spec.Decisions, 1)
	d := spec.Decisions[0]
	assert.Equal(t, "D1", d.ID)
	assert.Equal(t, "Has account?", d.Question)
	assert.Equal(t, "S2", d.Yes)
	assert.Equal(t, "Sign up", d.No)
	assert.Equal(t, []string{"Unparsed decision branch: maybe later"}, spec.Notes)
}

func TestParse_Choice(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "CH: Pick mode | Karaoke | | Trivia")})
	require.Len(t, spec.Choices, 1)
	assert.Equal(t, "C1", spec.Choices[0].ID)
	assert.Equal(t, "Pick mode", spec.Choices[0].Question)
	assert.Equal(t, []string{"Karaoke", "Trivia"}, spec.Choices[0].Options)
}

func TestParse_PersonaAndCriterion(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "P: Party Host - organizes nights\nP: Solo singer\nAC: (S2) user taps join -> lobby opens\nAC: works offline")})
	assert.Equal(t, []schema.Persona{
		{Name: "Party Host", Details: "organizes nights"},
		{Name: "Solo singer"},
	}, spec.Personas)
	require.Len(t, spec.AcceptanceCriteria, 2)
	assert.Equal(t, schema.AcceptanceCriterion{Condition: "user taps join", ExpectedResult: "lobby opens", AttachedTo: "S2"}, spec.AcceptanceCriteria[0])
	assert.Equal(t, "works offline", spec.AcceptanceCriteria[1].Condition)
}

func TestParse_Terminals(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "START:\nEND: (done) Song finished\nEXIT: Leave party")})
	require.Len(t, spec.Starts, 1)
	assert.Equal(t, "Start", spec.Starts[0].Label)
	assert.Equal(t, "START1", spec.Starts[0].ID)
	require.Len(t, spec.Ends, 1)
	assert.Equal(t, "done", spec.Ends[0].ID)
	assert.Equal(t, "Song finished", spec.Ends[0].Label)
	require.Len(t, spec.Exits, 1)
	assert.Equal(t, "EXIT1", spec.Exits[0].ID)
}

func TestParse_EmptyValueKeptAsNote(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "S:\nG:   ")})
	assert.Empty(t, spec.Steps)
	assert.Equal(t, []string{"S:", "G:"}, spec.Notes)
}

// --- IDs ---

func TestParse_AllocatesIDsSkippingExplicit(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "S: Open app\nS: (S1) Pick song\nS: Sing\nSYS: Save score\nD: Again?")})
	ids := []string{spec.Steps[0].ID, spec.Steps[1].ID, spec.Steps[2].ID}
	assert.Equal(t, []string{"S2", "S1", "S3"}, ids)
	assert.Equal(t, "SYS1", spec.SystemSteps[0].ID)
	assert.Equal(t, "D1", spec.Decisions[0].ID)
}

func TestParse_DuplicateIDsSuffixed(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "S: (X) first\nS: (X) second")})
	assert.Equal(t, "X", spec.Steps[0].ID)
	assert.Equal(t, "X_2", spec.Steps[1].ID)
}

func TestParse_SameIDAcrossGroupsKept(t *testing.T) {
	spec := Parse([]schema.Record{rec("n1", "", "S: (X) main step\nFG: Party\nS: (X) shared step")})
	assert.Equal(t, "X", spec.Steps[0].ID)
	assert.Equal(t, "X", spec.Steps[1].ID)
}

func TestParse_SeqIsGlobalDeclarationOrder(t *testing.T) {
	spec := Parse([]schema.Record{
		rec("n1", "", "S: Open app\nD: Logged in?"),
		rec("n2", "", "SYS: Load songs\nCH: Mode | A | B\nS: Sing"),
	})
	assert.Equal(t, 1, spec.Steps[0].Seq)
	assert.Equal(t, 2, spec.Decisions[0].Seq)
	assert.Equal(t, 3, spec.SystemSteps[0].Seq)
	assert.Equal(t, 4, spec.Choices[0].Seq)
	assert.Equal(t, 5, spec.Steps[1].Seq)
}

// --- Scopes ---

func TestParse_FlowGroupScope(t *testing.T) {
	spec := Parse([]schema.Record{
		rec("n1", "", "FG: Party Mode\nS: Invite friends"),
		rec("n2", "", "S: Pick song\nFG: main\nS: Home"),
		rec("n3", "", "FG: (pm) Party again\nE: S1 -> S2"),
	})
	assert.Equal(t, []schema.FlowGroupDecl{
		{ID: "party_mode", Name: "Party Mode"},
		{ID: "pm", Name: "Party again"},
	}, spec.FlowGroups)
	assert.Equal(t, "party_mode", spec.Steps[0].FlowGroup)
	assert.Equal(t, "party_mode", spec.Steps[1].FlowGroup)
	assert.Equal(t, "", spec.Steps[2].FlowGroup)
	assert.Equal(t, "pm", spec.Edges[0].FlowGroup)
}

func TestParse_LanePrecedence(t *testing.T) {
	spec := Parse([]schema.Record{
		rec("n1", "HOST / setup", "S: Create lobby\nS: [guest] Join lobby"),
		rec("n2", "Notes", "A: moderator\nS: Approve singer"),
		rec("n3", "", "S: Kick user"),
		rec("n4", "GUEST: joining", "S: Enter code"),
		rec("n5", "Lane: Venue staff", "D: Room free?"),
	})
	lanes := make([]string, 0, len(spec.Steps))
	for _, s := range spec.Steps {
		lanes = append(lanes, s.Lane)
	}
	assert.Equal(t, []string{"Host", "Guest", "Moderator", "Moderator", "Guest"}, lanes)
	assert.Equal(t, "Venue staff", spec.Decisions[0].Lane)
	assert.Equal(t, []string{"Moderator"}, spec.Actors)
}

func TestLaneFromName(t *testing.T) {
	assert.Equal(t, "Host", LaneFromName("HOST / setup"))
	assert.Equal(t, "Guest", LaneFromName("GUEST: join"))
	assert.Equal(t, "Venue", LaneFromName("lane: venue"))
	assert.Equal(t, "", LaneFromName("Host setup"))
	assert.Equal(t, "", LaneFromName(""))
}
