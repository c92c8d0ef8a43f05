// Package expander compiles a FlowSpec into a FlowGraph.
//
// Each flow group (plus the implicit main group) is expanded on its own:
// nodes first, then edges, either by gap-filling the author's explicit edges
// or by full inference when there are none. Every edge goes through one
// admission check backed by internal/digraph, so the output never holds a
// self-loop, a duplicate edge or a cycle. Expansion never fails; missing
// structure is inferred and recorded in the assumption trail.
package expander

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rendis/stickyflow/internal/logging"
	"github.com/rendis/stickyflow/pkg/schema"
)

// TrailSeparator divides author assumptions from the inferred-structure
// trail in FlowGraph.Assumptions.
const TrailSeparator = "--- Inferred structure ---"

// Config configures an Expander.
type Config struct {
	// EntryRule triggers one start per entry lane. Nil disables it.
	EntryRule *EntryRule
	Logger    *slog.Logger
	// Now stamps GeneratedAt. Defaults to time.Now.
	Now func() time.Time
}

// Meta carries the descriptive fields stamped into the graph metadata.
type Meta struct {
	Project string
	Feature string
	Source  string
}

// Expander turns FlowSpecs into FlowGraphs. Safe for concurrent use.
type Expander struct {
	entry  *EntryRule
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Expander.
func New(cfg Config) *Expander {
	logger := logging.OrDiscard(cfg.Logger)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Expander{entry: cfg.EntryRule, logger: logger, now: now}
}

// Expand runs the expander with the default entry rule.
func Expand(spec *schema.FlowSpec, meta Meta) *schema.FlowGraph {
	return New(Config{EntryRule: DefaultEntryRule()}).Expand(spec, meta)
}

// Expand compiles spec. It does not modify spec.
func (x *Expander) Expand(spec *schema.FlowSpec, meta Meta) *schema.FlowGraph {
	if spec == nil {
		spec = &schema.FlowSpec{}
	}
	c := &compilation{
		spec:   spec,
		entry:  x.entry,
		logger: x.logger,
		lanes:  newLaneSet(),
		taken:  make(map[string]bool),
		owner:  make(map[string]string),
	}
	c.reserveIDs()
	c.seedLanes()

	refs := c.groupRefs()
	c.requirementGroup = c.pickRequirementGroup(refs)
	for _, ref := range refs {
		c.groups = append(c.groups, c.buildGroup(ref))
	}

	graph := c.aggregate()
	graph.Metadata = schema.GraphMetadata{
		Project:         meta.Project,
		Feature:         meta.Feature,
		GeneratedAt:     x.now().UTC(),
		Source:          meta.Source,
		GrammarVersion:  schema.GrammarVersion,
		ExpanderVersion: schema.ExpanderVersion,
	}

	x.logger.Debug("expanded flow graph",
		"flow_groups", len(graph.FlowGroups),
		"nodes", len(graph.Nodes),
		"edges", len(graph.Edges),
		"lanes", graph.Lanes)
	return graph
}

// compilation is the state of a single Expand call.
type compilation struct {
	spec   *schema.FlowSpec
	entry  *EntryRule
	logger *slog.Logger

	lanes  *laneSet
	actors []string
	taken  map[string]bool
	owner  map[string]string // author ID -> group that holds it
	groups []*group

	requirementGroup string
}

type groupRef struct {
	id   string
	name string
}

// reserveIDs marks every author-supplied ID as taken so inferred IDs never
// collide with them.
func (c *compilation) reserveIDs() {
	s := c.spec
	for _, st := range s.Steps {
		c.taken[st.ID] = true
	}
	for _, st := range s.SystemSteps {
		c.taken[st.ID] = true
	}
	for _, d := range s.Decisions {
		c.taken[d.ID] = true
	}
	for _, ch := range s.Choices {
		c.taken[ch.ID] = true
	}
	for _, list := range [][]schema.TerminalDecl{s.Starts, s.Ends, s.Exits} {
		for _, t := range list {
			c.taken[t.ID] = true
		}
	}
	delete(c.taken, "")
}

func (c *compilation) unique(base string) string {
	if !c.taken[base] {
		c.taken[base] = true
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !c.taken[candidate] {
			c.taken[candidate] = true
			return candidate
		}
	}
}

// inferredID scopes base to the group; the main group is unprefixed.
func (c *compilation) inferredID(g *group, base string) string {
	if g.id != "" {
		base = g.id + "_" + base
	}
	return c.unique(base)
}

func (c *compilation) declaredID(g *group, id, base string) string {
	if id == "" || g.has(id) {
		return c.inferredID(g, base)
	}
	return c.claim(g, id)
}

// claim returns the graph-wide ID for a node the author named id in g. The
// first group to use an ID keeps it; later groups get "<group>_<id>" and
// resolve id through their alias table.
func (c *compilation) claim(g *group, id string) string {
	owner, taken := c.owner[id]
	if !taken || owner == g.id {
		c.owner[id] = g.id
		return id
	}
	base := id
	if g.id != "" {
		base = g.id + "_" + id
	}
	renamed := c.unique(base)
	c.owner[renamed] = g.id
	if _, ok := g.aliases[id]; !ok {
		g.aliases[id] = renamed
	}
	g.note("Renamed node %s to %s; flow group %s already uses %s", id, renamed, schema.GroupOf(owner), id)
	return renamed
}

// groupRefs lists main (when it has items, or when nothing else exists),
// the declared groups, then any group tag used on an item but never
// declared.
func (c *compilation) groupRefs() []groupRef {
	s := c.spec
	var tags []string
	for _, st := range s.Steps {
		tags = append(tags, st.FlowGroup)
	}
	for _, d := range s.Decisions {
		tags = append(tags, d.FlowGroup)
	}
	for _, ch := range s.Choices {
		tags = append(tags, ch.FlowGroup)
	}
	for _, st := range s.SystemSteps {
		tags = append(tags, st.FlowGroup)
	}
	for _, e := range s.Edges {
		tags = append(tags, e.FlowGroup)
	}
	for _, list := range [][]schema.TerminalDecl{s.Starts, s.Ends, s.Exits} {
		for _, t := range list {
			tags = append(tags, t.FlowGroup)
		}
	}

	mainUsed := false
	for _, t := range tags {
		if t == "" {
			mainUsed = true
			break
		}
	}

	var refs []groupRef
	if mainUsed || len(s.FlowGroups) == 0 {
		refs = append(refs, groupRef{id: "", name: "Main"})
	}
	seen := map[string]bool{"": true}
	for _, fg := range s.FlowGroups {
		if seen[fg.ID] {
			continue
		}
		seen[fg.ID] = true
		name := fg.Name
		if name == "" {
			name = fg.ID
		}
		refs = append(refs, groupRef{id: fg.ID, name: name})
	}
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			refs = append(refs, groupRef{id: t, name: t})
		}
	}
	return refs
}

// pickRequirementGroup returns the group whose system inference also scans
// requirement text: main when it has actions, else the first group.
func (c *compilation) pickRequirementGroup(refs []groupRef) string {
	if len(refs) == 0 {
		return ""
	}
	for _, ref := range refs {
		if ref.id == "" {
			if items, _ := c.actionItems(""); len(items) > 0 {
				return ""
			}
		}
	}
	for _, ref := range refs {
		if ref.id != "" {
			return ref.id
		}
	}
	return refs[0].id
}

func (c *compilation) edgesOf(gid string) []schema.EdgeDecl {
	var out []schema.EdgeDecl
	for _, e := range c.spec.Edges {
		if e.FlowGroup == gid {
			out = append(out, e)
		}
	}
	return out
}

func (c *compilation) buildGroup(ref groupRef) *group {
	g := newGroup(ref.id, ref.name)
	items, explicitSystem := c.actionItems(ref.id)
	decls := c.edgesOf(ref.id)
	g.explicitEdges = len(decls) > 0

	switch {
	case explicitSystem:
		g.systemSource = "explicit"
	case g.explicitEdges:
		g.systemSource = "none"
	default:
		var reqs []string
		if ref.id == c.requirementGroup {
			reqs = append(reqs, c.spec.FunctionalRequirements...)
			reqs = append(reqs, c.spec.NonFunctionalRequirements...)
		}
		before := len(items)
		items = c.inferSystem(g, items, reqs)
		g.systemSource = "none"
		if len(items) > before {
			g.systemSource = "inferred"
		}
	}

	c.addActions(g, items)
	c.addStarts(g)
	c.addTerminals(g)

	if g.explicitEdges {
		c.explicitMode(g, decls)
	} else {
		c.inferMode(g)
	}
	c.ensureInvariants(g)

	c.logger.Debug("expanded flow group",
		"flow_group", g.outID(),
		"nodes", len(g.nodes),
		"edges", len(g.edges),
		"explicit_edges", g.explicitEdges)
	return g
}
