package grammar

import (
	"fmt"
	"strings"

	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

// Classify returns exactly one ParsedLine per input line, in input order.
func Classify(records []schema.Record) []schema.ParsedLine {
	var out []schema.ParsedLine
	for _, rec := range records {
		for i, raw := range splitLines(rec.Text) {
			label, value := ClassifyLine(raw)
			out = append(out, schema.ParsedLine{
				Raw:            raw,
				Label:          label,
				Value:          value,
				SourceNodeID:   rec.ID,
				SourceNodeName: rec.Name,
				LineIndex:      i,
			})
		}
	}
	return out
}

// Parse builds a FlowSpec from records. It never fails.
func Parse(records []schema.Record) *schema.FlowSpec {
	spec, _ := ParseDetailed(records)
	return spec
}

// ParseDetailed is Parse that also returns the per-line classification.
//
// Flow group and actor scopes set by "FG:" and "A:" lines carry over into
// later records until changed. A line's lane comes from its "[Lane]" tag,
// else from its record's name, else from the active actor scope.
func ParseDetailed(records []schema.Record) (*schema.FlowSpec, []schema.ParsedLine) {
	lines := Classify(records)
	p := &parser{
		spec:      &schema.FlowSpec{},
		nameLanes: make(map[string]string),
	}
	for _, pl := range lines {
		p.apply(pl)
	}
	p.assignIDs()
	return p.spec, lines
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

type parser struct {
	spec      *schema.FlowSpec
	group     string
	actor     string
	seq       int
	nameLanes map[string]string
}

func (p *parser) nextSeq() int {
	p.seq++
	return p.seq
}

func (p *parser) laneFor(tag string, pl schema.ParsedLine) string {
	if tag != "" {
		return tag
	}
	lane, ok := p.nameLanes[pl.SourceNodeName]
	if !ok {
		lane = LaneFromName(pl.SourceNodeName)
		p.nameLanes[pl.SourceNodeName] = lane
	}
	if lane != "" {
		return lane
	}
	return p.actor
}

func (p *parser) note(s string) {
	if s = strings.TrimSpace(s); s != "" {
		p.spec.Notes = append(p.spec.Notes, s)
	}
}

func (p *parser) apply(pl schema.ParsedLine) {
	s := p.spec
	v := pl.Value

	switch pl.Label {
	case schema.LabelUnlabeled:
		p.note(v)
		return
	case schema.LabelFlowGroup:
		p.enterGroup(v)
		return
	}
	if v == "" && !isTerminalLabel(pl.Label) {
		p.note(pl.Raw)
		return
	}

	switch pl.Label {
	case schema.LabelContext:
		s.Context = append(s.Context, v)
	case schema.LabelGoal:
		s.Goals = append(s.Goals, v)
	case schema.LabelPersona:
		s.Personas = append(s.Personas, parsePersona(v))
	case schema.LabelProblem:
		s.Problems = append(s.Problems, v)
	case schema.LabelFunctionalRequirement:
		s.FunctionalRequirements = append(s.FunctionalRequirements, v)
	case schema.LabelNonFunctionalRequirement:
		s.NonFunctionalRequirements = append(s.NonFunctionalRequirements, v)
	case schema.LabelActor:
		p.enterActor(v)
	case schema.LabelStep:
		h := parseHead(v)
		s.Steps = append(s.Steps, schema.Step{
			ID:           h.id,
			Text:         h.text,
			Lane:         p.laneFor(h.lane, pl),
			FlowGroup:    p.group,
			SourceNodeID: pl.SourceNodeID,
			Seq:          p.nextSeq(),
		})
	case schema.LabelSystemStep:
		h := parseHead(v)
		s.SystemSteps = append(s.SystemSteps, schema.Step{
			ID:           h.id,
			Text:         h.text,
			Lane:         schema.LaneSystem,
			FlowGroup:    p.group,
			SourceNodeID: pl.SourceNodeID,
			Seq:          p.nextSeq(),
		})
	case schema.LabelDecision:
		d := parseDecision(v)
		for _, seg := range d.unknown {
			p.note("Unparsed decision branch: " + seg)
		}
		s.Decisions = append(s.Decisions, schema.Decision{
			ID:           d.id,
			Question:     d.text,
			Yes:          d.yes,
			No:           d.no,
			Lane:         p.laneFor(d.lane, pl),
			FlowGroup:    p.group,
			SourceNodeID: pl.SourceNodeID,
			Seq:          p.nextSeq(),
		})
	case schema.LabelChoice:
		c := parseChoice(v)
		s.Choices = append(s.Choices, schema.Choice{
			ID:           c.id,
			Question:     c.text,
			Options:      c.options,
			Lane:         p.laneFor(c.lane, pl),
			FlowGroup:    p.group,
			SourceNodeID: pl.SourceNodeID,
			Seq:          p.nextSeq(),
		})
	case schema.LabelEdge:
		edges, ok := parseEdges(v)
		if !ok {
			p.note("Unparsed edge: " + v)
			return
		}
		for _, e := range edges {
			e.FlowGroup = p.group
			s.Edges = append(s.Edges, e)
		}
	case schema.LabelStart:
		s.Starts = append(s.Starts, p.terminal(v, "Start", pl))
	case schema.LabelEnd:
		s.Ends = append(s.Ends, p.terminal(v, "End", pl))
	case schema.LabelExit:
		s.Exits = append(s.Exits, p.terminal(v, "Exit", pl))
	case schema.LabelAcceptanceCriterion:
		s.AcceptanceCriteria = append(s.AcceptanceCriteria, parseCriterion(v))
	case schema.LabelAssumption:
		s.Assumptions = append(s.Assumptions, v)
	case schema.LabelQuestion:
		s.OpenQuestions = append(s.OpenQuestions, v)
	case schema.LabelRisk:
		s.Risks = append(s.Risks, v)
	case schema.LabelUIElement:
		s.UIElements = append(s.UIElements, v)
	case schema.LabelDataObject:
		s.DataObjects = append(s.DataObjects, v)
	case schema.LabelRule:
		s.Rules = append(s.Rules, v)
	case schema.LabelOutput:
		s.Outputs = append(s.Outputs, v)
	default:
		p.note(pl.Raw)
	}
}

func isTerminalLabel(l schema.Label) bool {
	return l == schema.LabelStart || l == schema.LabelEnd || l == schema.LabelExit
}

func (p *parser) terminal(v, defaultLabel string, pl schema.ParsedLine) schema.TerminalDecl {
	h := parseHead(v)
	label := h.text
	if label == "" {
		label = defaultLabel
	}
	return schema.TerminalDecl{
		ID:        h.id,
		Label:     label,
		Lane:      p.laneFor(h.lane, pl),
		FlowGroup: p.group,
	}
}

// enterGroup switches the flow group scope. "FG: main" or an empty value
// returns to the main flow.
func (p *parser) enterGroup(v string) {
	h := parseHead(v)
	id := h.id
	if id == "" {
		id = heuristics.Slug(h.text)
	}
	if id == "" || strings.EqualFold(id, schema.MainFlowGroup) {
		p.group = ""
		return
	}
	p.group = id
	for _, g := range p.spec.FlowGroups {
		if g.ID == id {
			return
		}
	}
	name := h.text
	if name == "" {
		name = id
	}
	p.spec.FlowGroups = append(p.spec.FlowGroups, schema.FlowGroupDecl{ID: id, Name: name})
}

func (p *parser) enterActor(v string) {
	lane := heuristics.NormalizeLane(v)
	p.actor = lane
	for _, a := range p.spec.Actors {
		if heuristics.SameLane(a, lane) {
			return
		}
	}
	p.spec.Actors = append(p.spec.Actors, lane)
}

type idSlot struct {
	id     *string
	group  string
	prefix string
}

func (p *parser) idSlots() []idSlot {
	s := p.spec
	var slots []idSlot
	for i := range s.Starts {
		slots = append(slots, idSlot{&s.Starts[i].ID, s.Starts[i].FlowGroup, "START"})
	}
	for i := range s.Steps {
		slots = append(slots, idSlot{&s.Steps[i].ID, s.Steps[i].FlowGroup, "S"})
	}
	for i := range s.Decisions {
		slots = append(slots, idSlot{&s.Decisions[i].ID, s.Decisions[i].FlowGroup, "D"})
	}
	for i := range s.SystemSteps {
		slots = append(slots, idSlot{&s.SystemSteps[i].ID, s.SystemSteps[i].FlowGroup, "SYS"})
	}
	for i := range s.Choices {
		slots = append(slots, idSlot{&s.Choices[i].ID, s.Choices[i].FlowGroup, "C"})
	}
	for i := range s.Ends {
		slots = append(slots, idSlot{&s.Ends[i].ID, s.Ends[i].FlowGroup, "END"})
	}
	for i := range s.Exits {
		slots = append(slots, idSlot{&s.Exits[i].ID, s.Exits[i].FlowGroup, "EXIT"})
	}
	return slots
}

// assignIDs keeps explicit IDs, suffixes explicit duplicates within a flow
// group and allocates "<prefix><n>" IDs for the rest, skipping any ID
// already taken anywhere in the flow spec.
func (p *parser) assignIDs() {
	slots := p.idSlots()
	taken := make(map[string]bool)
	for _, sl := range slots {
		if *sl.id != "" {
			taken[*sl.id] = true
		}
	}

	inGroup := make(map[string]bool)
	for _, sl := range slots {
		id := *sl.id
		if id == "" {
			continue
		}
		key := sl.group + "\x00" + id
		if !inGroup[key] {
			inGroup[key] = true
			continue
		}
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", id, n)
			if !taken[candidate] {
				*sl.id = candidate
				taken[candidate] = true
				inGroup[sl.group+"\x00"+candidate] = true
				break
			}
		}
	}

	counters := make(map[string]int)
	for _, sl := range slots {
		if *sl.id != "" {
			continue
		}
		for {
			counters[sl.prefix]++
			candidate := fmt.Sprintf("%s%d", sl.prefix, counters[sl.prefix])
			if !taken[candidate] {
				*sl.id = candidate
				taken[candidate] = true
				break
			}
		}
	}
}
