package expander

import (
	"sort"
	"strings"

	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

// actionItem is a step, decision, choice or system step of one group before
// it becomes a node.
type actionItem struct {
	kind     schema.NodeType
	id       string
	text     string
	source   string
	lane     string
	seq      int
	yes      string
	no       string
	options  []string
	inferred bool
}

func (c *compilation) actionItems(gid string) (items []actionItem, explicitSystem bool) {
	s := c.spec
	for _, st := range s.Steps {
		if st.FlowGroup == gid {
			items = append(items, actionItem{kind: schema.NodeTypeStep, id: st.ID, text: st.Text, lane: st.Lane, seq: st.Seq})
		}
	}
	for _, d := range s.Decisions {
		if d.FlowGroup == gid {
			items = append(items, actionItem{kind: schema.NodeTypeDecision, id: d.ID, text: d.Question, lane: d.Lane, seq: d.Seq, yes: d.Yes, no: d.No})
		}
	}
	for _, ch := range s.Choices {
		if ch.FlowGroup == gid {
			items = append(items, actionItem{kind: schema.NodeTypeDecision, id: ch.ID, text: ch.Question, lane: ch.Lane, seq: ch.Seq, options: ch.Options})
		}
	}
	for _, st := range s.SystemSteps {
		if st.FlowGroup == gid {
			explicitSystem = true
			items = append(items, actionItem{kind: schema.NodeTypeSystem, id: st.ID, text: st.Text, lane: schema.LaneSystem, seq: st.Seq})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	return items, explicitSystem
}

// inferSystem inserts one system item per matched system action. The items
// form a single run in priority order, placed right after the earliest step
// that triggers any of them, or after every other item when only requirement
// text triggers them.
func (c *compilation) inferSystem(g *group, items []actionItem, requirements []string) []actionItem {
	anchor := len(items)
	var run []actionItem

	for _, a := range heuristics.SystemActions() {
		trigger, found := "", false
		for i, it := range items {
			if it.kind == schema.NodeTypeStep && a.Matches(it.text) {
				trigger, found = it.text, true
				anchor = min(anchor, i+1)
				break
			}
		}
		if !found {
			for _, r := range requirements {
				if a.Matches(r) {
					trigger, found = r, true
					break
				}
			}
		}
		if !found {
			continue
		}
		run = append(run, actionItem{
			kind:     schema.NodeTypeSystem,
			id:       c.inferredID(g, "sys_"+a.Key),
			text:     a.Label,
			source:   trigger,
			lane:     schema.LaneSystem,
			inferred: true,
		})
	}
	if len(run) == 0 {
		return items
	}

	out := make([]actionItem, 0, len(items)+len(run))
	out = append(out, items[:anchor]...)
	out = append(out, run...)
	return append(out, items[anchor:]...)
}

func (c *compilation) actionNode(it actionItem) schema.FlowNode {
	n := schema.FlowNode{
		ID:         it.id,
		Type:       it.kind,
		Label:      it.text,
		SourceText: it.text,
		Inferred:   it.inferred,
		Options:    it.options,
	}
	if it.source != "" {
		n.SourceText = it.source
	}
	if n.Label == "" {
		n.Label = n.ID
	}
	if it.kind == schema.NodeTypeSystem {
		n.Lane = c.lanes.canon(schema.LaneSystem)
		return n
	}
	n.Lane = c.laneFor(it.lane, it.text)
	if heuristics.LooksLikeDecision(it.text) {
		n.Branches = heuristics.ParseBranches(it.text)
	}
	return n
}

// addActions creates the group's action nodes in declaration order.
func (c *compilation) addActions(g *group, items []actionItem) {
	for _, it := range items {
		if it.id == "" {
			it.id = c.unique(string(it.kind))
		}
		if g.has(it.id) {
			renamed := c.unique(it.id)
			g.note("Renamed duplicate node %s to %s", it.id, renamed)
			it.id = renamed
		} else if !it.inferred {
			it.id = c.claim(g, it.id)
		}
		i := g.add(c.actionNode(it))
		if it.kind == schema.NodeTypeDecision {
			g.items[i] = it
		}
	}
}

// startLane is the lane of the first step, else of the first non-system
// action, else User.
func (c *compilation) startLane(g *group) string {
	for _, a := range g.actions {
		if g.nodes[a].Type == schema.NodeTypeStep {
			return g.nodes[a].Lane
		}
	}
	for _, a := range g.actions {
		if g.nodes[a].Type != schema.NodeTypeSystem {
			return g.nodes[a].Lane
		}
	}
	return c.lanes.canon(schema.LaneUser)
}

// terminalLane is the lane of the last non-system action, else the lane of
// the first start.
func (c *compilation) terminalLane(g *group) string {
	for k := len(g.actions) - 1; k >= 0; k-- {
		if n := g.nodes[g.actions[k]]; n.Type != schema.NodeTypeSystem {
			return n.Lane
		}
	}
	if len(g.starts) > 0 {
		return g.nodes[g.starts[0]].Lane
	}
	return c.lanes.canon(schema.LaneUser)
}

func (c *compilation) addStarts(g *group) {
	for _, d := range c.spec.Starts {
		if d.FlowGroup != g.id {
			continue
		}
		g.explicitStarts = true
		lane := c.startLane(g)
		if d.Lane != "" {
			lane = c.lanes.canon(d.Lane)
		}
		g.add(schema.FlowNode{
			ID:    c.declaredID(g, d.ID, "start"),
			Type:  schema.NodeTypeStart,
			Lane:  lane,
			Label: d.Label,
		})
	}
	if g.explicitStarts {
		return
	}

	if lanes := c.entryLanes(g); len(lanes) > 0 {
		for _, l := range lanes {
			lane := c.lanes.canon(l)
			g.add(schema.FlowNode{
				ID:       c.inferredID(g, "start_"+heuristics.Slug(lane)),
				Type:     schema.NodeTypeStart,
				Lane:     lane,
				Label:    "Start (" + lane + ")",
				Inferred: true,
			})
		}
		return
	}

	g.add(schema.FlowNode{
		ID:       c.inferredID(g, "start"),
		Type:     schema.NodeTypeStart,
		Lane:     c.startLane(g),
		Label:    "Start",
		Inferred: true,
	})
}

// entryLanes returns the entry rule's lanes when some decision of the group
// matches it.
func (c *compilation) entryLanes(g *group) []string {
	if c.entry == nil {
		return nil
	}
	for _, a := range g.actions {
		n := g.nodes[a]
		if n.Type != schema.NodeTypeDecision {
			continue
		}
		if c.entry.Match(n.Label, n.Lane, g.outID()) {
			c.logger.Debug("entry rule matched",
				"flow_group", g.outID(), "node", n.ID, "rule", c.entry.String())
			g.note("Multiple entry points inferred from decision %s", n.ID)
			return c.entry.Lanes()
		}
	}
	return nil
}

func (c *compilation) addTerminals(g *group) {
	lane := c.terminalLane(g)
	declared := func(decls []schema.TerminalDecl, typ schema.NodeType, base string) bool {
		found := false
		for _, d := range decls {
			if d.FlowGroup != g.id {
				continue
			}
			found = true
			l := lane
			if d.Lane != "" {
				l = c.lanes.canon(d.Lane)
			}
			g.add(schema.FlowNode{
				ID:    c.declaredID(g, d.ID, base),
				Type:  typ,
				Lane:  l,
				Label: d.Label,
			})
		}
		return found
	}

	g.explicitEnds = declared(c.spec.Ends, schema.NodeTypeEnd, "end")
	if !g.explicitEnds {
		g.add(schema.FlowNode{
			ID:       c.inferredID(g, "end_complete"),
			Type:     schema.NodeTypeEnd,
			Lane:     lane,
			Label:    "Complete",
			Inferred: true,
		})
		if c.needsErrorEnd() {
			g.add(schema.FlowNode{
				ID:       c.inferredID(g, "end_error"),
				Type:     schema.NodeTypeEnd,
				Lane:     lane,
				Label:    "Error",
				Inferred: true,
			})
		}
	}

	if !declared(c.spec.Exits, schema.NodeTypeExit, "exit") {
		g.add(schema.FlowNode{
			ID:       c.inferredID(g, "exit_user"),
			Type:     schema.NodeTypeExit,
			Lane:     lane,
			Label:    "User Exit",
			Inferred: true,
		})
	}
}

func (c *compilation) needsErrorEnd() bool {
	if len(c.spec.Risks) > 0 {
		return true
	}
	for _, fr := range c.spec.FunctionalRequirements {
		if heuristics.MentionsError(fr) {
			return true
		}
	}
	return false
}

// endpoint resolves an explicit edge endpoint. "start" and "end" name the
// group's first start and first end, terminal words on the target side
// name its exit. Anything else that names no node becomes an inferred step.
func (c *compilation) endpoint(g *group, ref string, source bool) int {
	if i, ok := g.lookup(ref); ok {
		return i
	}
	word := strings.ToLower(strings.TrimSpace(ref))
	switch {
	case source && word == "start" && len(g.starts) > 0:
		return g.starts[0]
	case !source && word == "end" && len(g.ends) > 0:
		return g.ends[0]
	case !source && heuristics.IsTerminalTarget(ref):
		if t := g.exitTerminals(); len(t) > 0 {
			return t[0]
		}
	}

	base := heuristics.Slug(ref)
	if base == "" {
		base = "step"
	}
	n := schema.FlowNode{
		ID:         c.inferredID(g, base),
		Type:       schema.NodeTypeStep,
		Lane:       c.laneFor("", ref),
		Label:      strings.TrimSpace(ref),
		SourceText: ref,
		Inferred:   true,
	}
	g.note("Created step %s for edge endpoint %q", n.ID, ref)
	return g.add(n)
}
