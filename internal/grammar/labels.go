// Package grammar turns raw sticky-note records into a FlowSpec.
//
// Every line is classified independently against a fixed label table
// ("S: ...", "D: ...", "E: ..."). Label-specific sub-parsers structure the
// value. Parsing never fails: anything that cannot be structured is kept as
// a note so no input is lost.
package grammar

import (
	"regexp"
	"strings"

	"github.com/rendis/stickyflow/pkg/schema"
)

// labelTable maps an upper-cased line prefix to its label.
var labelTable = map[string]schema.Label{
	"C":          schema.LabelContext,
	"CTX":        schema.LabelContext,
	"CONTEXT":    schema.LabelContext,
	"G":          schema.LabelGoal,
	"GOAL":       schema.LabelGoal,
	"P":          schema.LabelPersona,
	"PERSONA":    schema.LabelPersona,
	"PR":         schema.LabelProblem,
	"PROBLEM":    schema.LabelProblem,
	"FR":         schema.LabelFunctionalRequirement,
	"NFR":        schema.LabelNonFunctionalRequirement,
	"S":          schema.LabelStep,
	"STEP":       schema.LabelStep,
	"D":          schema.LabelDecision,
	"DECISION":   schema.LabelDecision,
	"E":          schema.LabelEdge,
	"EDGE":       schema.LabelEdge,
	"FG":         schema.LabelFlowGroup,
	"FLOW":       schema.LabelFlowGroup,
	"A":          schema.LabelActor,
	"ACTOR":      schema.LabelActor,
	"LANE":       schema.LabelActor,
	"START":      schema.LabelStart,
	"END":        schema.LabelEnd,
	"EXIT":       schema.LabelExit,
	"SYS":        schema.LabelSystemStep,
	"SYSTEM":     schema.LabelSystemStep,
	"CH":         schema.LabelChoice,
	"CHOICE":     schema.LabelChoice,
	"AS":         schema.LabelAssumption,
	"ASSUMPTION": schema.LabelAssumption,
	"Q":          schema.LabelQuestion,
	"QUESTION":   schema.LabelQuestion,
	"R":          schema.LabelRisk,
	"RISK":       schema.LabelRisk,
	"AC":         schema.LabelAcceptanceCriterion,
	"UI":         schema.LabelUIElement,
	"DO":         schema.LabelDataObject,
	"DATA":       schema.LabelDataObject,
	"RULE":       schema.LabelRule,
	"BR":         schema.LabelRule,
	"O":          schema.LabelOutput,
	"OUT":        schema.LabelOutput,
	"OUTPUT":     schema.LabelOutput,
}

var (
	labelPattern  = regexp.MustCompile(`^([A-Za-z]+):\s*(.*)$`)
	bulletPattern = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
)

// LookupLabel resolves a prefix case-insensitively.
func LookupLabel(prefix string) (schema.Label, bool) {
	l, ok := labelTable[strings.ToUpper(prefix)]
	return l, ok
}

// ClassifyLine matches a single line against the label table. Unknown
// prefixes and empty lines are unlabeled; their value is the whole line.
func ClassifyLine(line string) (schema.Label, string) {
	trimmed := strings.TrimSpace(line)
	trimmed = bulletPattern.ReplaceAllString(trimmed, "")
	if m := labelPattern.FindStringSubmatch(trimmed); m != nil {
		if label, ok := LookupLabel(m[1]); ok {
			return label, strings.TrimSpace(m[2])
		}
	}
	return schema.LabelUnlabeled, trimmed
}
