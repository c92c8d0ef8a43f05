package expander

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

// DefaultEntryExpression fires on decisions that read like a mode choice
// ("Solo or with friends?", "Pick a mode").
const DefaultEntryExpression = `question matches "(?i)\\bsolo\\b|with friends|\\bmode\\b"`

// DefaultEntryLanes receive one start node each when the entry rule fires.
var DefaultEntryLanes = []string{schema.LaneSolo, schema.LaneHost, schema.LaneGuest}

// EntryRule decides whether a flow group gets one start node per entry lane
// instead of a single generic start. The expression sees three variables:
// question, lane and group, and must return a bool.
type EntryRule struct {
	expression string
	program    *vm.Program
	lanes      []string
}

func entryEnv(question, lane, group string) map[string]any {
	return map[string]any{
		"question": question,
		"lane":     lane,
		"group":    group,
	}
}

// NewEntryRule compiles expression. An empty expression disables the rule
// and returns nil, nil. Empty lanes fall back to DefaultEntryLanes.
func NewEntryRule(expression string, lanes []string) (*EntryRule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	prg, err := expr.Compile(expression, expr.Env(entryEnv("", "", "")), expr.AsBool())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"entry rule compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	if len(lanes) == 0 {
		lanes = DefaultEntryLanes
	}
	normalized := make([]string, 0, len(lanes))
	for _, l := range lanes {
		if l = heuristics.NormalizeLane(l); l != "" {
			normalized = append(normalized, l)
		}
	}
	return &EntryRule{expression: expression, program: prg, lanes: normalized}, nil
}

var defaultEntryRule = mustEntryRule(DefaultEntryExpression, DefaultEntryLanes)

func mustEntryRule(expression string, lanes []string) *EntryRule {
	r, err := NewEntryRule(expression, lanes)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultEntryRule returns the built-in mode-choice rule.
func DefaultEntryRule() *EntryRule {
	return defaultEntryRule
}

// Match evaluates the rule. A nil rule never matches; evaluation errors
// count as no match.
func (r *EntryRule) Match(question, lane, group string) bool {
	if r == nil {
		return false
	}
	out, err := vm.Run(r.program, entryEnv(question, lane, group))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// Lanes returns the lanes that receive a start node.
func (r *EntryRule) Lanes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.lanes))
	copy(out, r.lanes)
	return out
}

func (r *EntryRule) String() string {
	if r == nil {
		return ""
	}
	return r.expression
}
