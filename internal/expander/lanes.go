package expander

import (
	"strings"

	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

// laneSet interns lane names so every spelling of a lane maps to the first
// one seen.
type laneSet struct {
	byKey map[string]string
	order []string
}

func newLaneSet() *laneSet {
	return &laneSet{byKey: make(map[string]string)}
}

func (s *laneSet) canon(lane string) string {
	lane = heuristics.NormalizeLane(lane)
	if lane == "" {
		return ""
	}
	key := strings.ToLower(lane)
	if c, ok := s.byKey[key]; ok {
		return c
	}
	s.byKey[key] = lane
	s.order = append(s.order, lane)
	return lane
}

// seedLanes registers declared actors, persona lanes and lanes already
// attached to items, in that order.
func (c *compilation) seedLanes() {
	for _, a := range c.spec.Actors {
		c.actors = append(c.actors, c.lanes.canon(a))
	}
	for _, p := range c.spec.Personas {
		if l, ok := heuristics.PersonaLane(p.Name); ok {
			c.lanes.canon(l)
		}
	}
	for _, s := range c.spec.Steps {
		c.lanes.canon(s.Lane)
	}
	for _, d := range c.spec.Decisions {
		c.lanes.canon(d.Lane)
	}
	for _, ch := range c.spec.Choices {
		c.lanes.canon(ch.Lane)
	}
}

// laneFor picks a node's lane: the explicit lane if any, else the first hit
// of declared-actor containment, persona containment, the keyword table and
// the leading word, defaulting to User.
func (c *compilation) laneFor(explicit, text string) string {
	if explicit != "" {
		return c.lanes.canon(explicit)
	}
	for _, a := range c.actors {
		if heuristics.ContainsFold(text, a) {
			return a
		}
	}
	for _, p := range c.spec.Personas {
		if p.Name == "" || !heuristics.ContainsFold(text, p.Name) {
			continue
		}
		if l, ok := heuristics.PersonaLane(p.Name); ok {
			return c.lanes.canon(l)
		}
		return c.lanes.canon(schema.LaneUser)
	}
	if l, ok := heuristics.KeywordLane(text); ok {
		return c.lanes.canon(l)
	}
	if l, ok := heuristics.LeadingWordLane(text); ok {
		return c.lanes.canon(l)
	}
	return c.lanes.canon(schema.LaneUser)
}

// orderedLanes is the final swimlane list. A graph always has at least one
// lane besides System.
func (c *compilation) orderedLanes() []string {
	lanes := heuristics.OrderLanes(c.actors, c.lanes.order)
	if len(lanes) == 1 {
		return []string{schema.LaneUser, schema.LaneSystem}
	}
	return lanes
}
