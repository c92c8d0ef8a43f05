package expander

import (
	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

// explicitMode lays down the author's edges verbatim, then fills gaps:
// starts without successors, terminals without predecessors, loose actions
// and under-branched decisions.
func (c *compilation) explicitMode(g *group, decls []schema.EdgeDecl) {
	for _, e := range decls {
		from := c.endpoint(g, e.From, true)
		to := c.endpoint(g, e.To, false)
		if err := g.connect(from, to, e.Label, e.Condition, false); err != nil {
			g.note("Dropped edge %s -> %s: %v", e.From, e.To, err)
			c.logger.Debug("edge rejected",
				"flow_group", g.outID(), "from", e.From, "to", e.To, "reason", err.Error())
		}
	}
	for _, d := range g.actions {
		if g.isDecision(d) {
			c.declaredBranches(g, d)
		}
	}

	for _, s := range g.starts {
		if g.out(s) > 0 {
			continue
		}
		lane := g.nodes[s].Lane
		unconnected := g.filter(g.actions, func(i int) bool { return g.in(i) == 0 })
		inLane := g.filter(unconnected, func(i int) bool { return g.nodes[i].Lane == lane })
		g.tryLink(s, concat(inLane, unconnected, g.actions), "", "")
	}

	for _, t := range g.terminals() {
		if g.in(t) > 0 {
			continue
		}
		g.tryLinkFrom(concat(reversed(g.nonDecisions(g.actions)), reversed(g.actions)), t)
	}

	for pos, a := range g.actions {
		lane := g.nodes[a].Lane
		if !g.isDecision(a) && g.out(a) == 0 {
			after := g.actions[pos+1:]
			loose := g.filter(after, func(i int) bool { return g.in(i) == 0 })
			g.tryLink(a, concat(loose, after, g.endsFor(lane)), "", "")
		}
		if g.in(a) == 0 {
			before := g.nonDecisions(reversed(g.actions[:pos]))
			loose := g.filter(before, func(i int) bool { return g.out(i) == 0 })
			g.tryLinkFrom(concat(loose, before, g.starts, reversed(g.actions[:pos])), a)
		}
	}

	for _, d := range g.actions {
		if g.isDecision(d) {
			c.fillDecision(g, d, true)
		}
	}
}

// inferMode builds every edge: starts to the first action of their lane,
// a backbone through adjacent non-decision actions, Yes/No branches for each
// decision, then cleanup so no action or terminal is left dangling.
func (c *compilation) inferMode(g *group) {
	for _, s := range g.starts {
		lane := g.nodes[s].Lane
		inLane := g.filter(g.actions, func(i int) bool { return g.nodes[i].Lane == lane })
		g.tryLink(s, concat(inLane, g.actions), "", "")
	}

	for k := 0; k+1 < len(g.actions); k++ {
		a, b := g.actions[k], g.actions[k+1]
		if !g.isDecision(a) && !g.isDecision(b) {
			g.connect(a, b, "", "", true)
		}
	}

	for pos, d := range g.actions {
		if !g.isDecision(d) {
			continue
		}
		if pos > 0 && !g.isDecision(g.actions[pos-1]) {
			g.connect(g.actions[pos-1], d, "", "", true)
		}
		c.declaredBranches(g, d)
		c.fillDecision(g, d, false)
	}

	for _, a := range g.actions {
		if g.isDecision(a) || g.out(a) > 0 {
			continue
		}
		g.tryLink(a, g.endsFor(g.nodes[a].Lane), "", "")
	}

	for _, t := range g.terminals() {
		if g.in(t) > 0 {
			continue
		}
		g.tryLinkFrom(concat(reversed(g.nonDecisions(g.actions)), reversed(g.actions), g.starts), t)
	}

	for pos, a := range g.actions {
		if g.in(a) == 0 {
			before := reversed(g.actions[:pos])
			g.tryLinkFrom(concat(g.nonDecisions(before), before, g.starts), a)
		}
		if !g.isDecision(a) && g.out(a) == 0 {
			g.tryLink(a, concat(g.actions[pos+1:], g.endsFor(g.nodes[a].Lane)), "", "")
		}
	}
}

func branchLabels(n schema.FlowNode) (yes, no string) {
	yes, no = "Yes", "No"
	if len(n.Options) > 0 {
		yes = n.Options[0]
	}
	if len(n.Options) > 1 {
		no = n.Options[1]
	}
	return yes, no
}

// declaredBranches connects the targets the author wrote on a decision
// ("yes: S3", "no: stop") or, for a choice, its options that name nodes.
func (c *compilation) declaredBranches(g *group, d int) {
	item := g.items[d]
	n := g.nodes[d]
	yesLabel, noLabel := branchLabels(n)

	type declared struct {
		target, label string
		quiet         bool
	}
	var branches []declared
	if len(item.options) > 0 {
		for _, opt := range item.options {
			branches = append(branches, declared{target: opt, label: opt, quiet: true})
		}
	} else {
		branches = []declared{{item.yes, yesLabel, false}, {item.no, noLabel, false}}
	}

	for _, b := range branches {
		if b.target == "" || g.hasLabel(d, b.label) {
			continue
		}
		t, ok := g.resolveTarget(b.target)
		if !ok {
			if !b.quiet && !heuristics.IsContinueTarget(b.target) {
				g.note("Unresolved %s target %q on %s", b.label, b.target, n.ID)
			}
			continue
		}
		if err := g.connect(d, t, b.label, "", false); err != nil {
			g.note("Dropped %s branch %s -> %s: %v", b.label, n.ID, g.nodes[t].ID, err)
		}
	}
}

// fillDecision synthesizes the missing Yes and No branches until the
// decision has two successors. In gap-filling mode the Yes branch prefers
// the next action still lacking a predecessor.
func (c *compilation) fillDecision(g *group, d int, gapFill bool) {
	n := g.nodes[d]
	yesLabel, noLabel := branchLabels(n)
	var hintYes, hintNo, condition string
	if n.Branches != nil {
		hintYes, hintNo, condition = n.Branches.IfTrue, n.Branches.IfFalse, n.Branches.Condition
	}

	if !g.hasLabel(d, yesLabel) && g.out(d) < 2 {
		var cands []int
		if i, ok := g.lookup(hintYes); ok {
			cands = append(cands, i)
		}
		after := g.actions[g.actionPos(d)+1:]
		if gapFill {
			cands = append(cands, g.filter(after, func(i int) bool { return g.in(i) == 0 })...)
			cands = append(cands, after...)
		} else if len(after) > 0 {
			cands = append(cands, after[0])
		}
		cands = concat(cands, g.endsFor(n.Lane), g.exits)
		g.tryLink(d, cands, yesLabel, condition)
	}

	if !g.hasLabel(d, noLabel) && g.out(d) < 2 {
		var cands []int
		if i, ok := g.lookup(hintNo); ok {
			cands = append(cands, i)
		}
		cands = append(cands, g.exitTerminals()...)
		if y := g.targetOf(d, yesLabel); y >= 0 {
			if pos := g.actionPos(y); pos >= 0 && pos+1 < len(g.actions) {
				cands = append(cands, g.actions[pos+1])
			}
		}
		cands = concat(cands, g.ends, g.exits)
		g.tryLink(d, cands, noLabel, "")
	}
}

// ensureInvariants is the last pass for every group. Starts get a
// successor, terminals a predecessor and decisions a second branch, using
// edges that can never close a cycle.
func (c *compilation) ensureInvariants(g *group) {
	for _, s := range g.starts {
		if g.out(s) == 0 {
			loose := g.filter(g.actions, func(i int) bool { return g.in(i) == 0 })
			g.tryLink(s, concat(loose, g.ends, g.exits), "", "")
		}
	}
	for _, t := range g.terminals() {
		if g.in(t) == 0 {
			g.tryLinkFrom(concat(reversed(g.actions), g.starts), t)
		}
	}
	for _, d := range g.actions {
		if !g.isDecision(d) {
			continue
		}
		yesLabel, noLabel := branchLabels(g.nodes[d])
		for g.out(d) < 2 {
			label := ""
			switch {
			case !g.hasLabel(d, yesLabel):
				label = yesLabel
			case !g.hasLabel(d, noLabel):
				label = noLabel
			}
			if _, ok := g.tryLink(d, g.terminals(), label, ""); !ok {
				c.logger.Warn("decision left under-branched", "flow_group", g.outID(), "node", g.nodes[d].ID)
				break
			}
		}
	}
}
