// Package heuristics holds the natural-language pattern matching used by the
// parser and expander: branch text reading, lane keyword tables and the
// system-action table. Nothing here touches graph structure, so any of it can
// be swapped or disabled without affecting graph invariants.
//
// All tables are built once at package init and never written afterwards.
package heuristics

import (
	"regexp"
	"strings"

	"github.com/rendis/stickyflow/pkg/schema"
)

var (
	ifThenPattern    = regexp.MustCompile(`(?i)^if\s+(.+?),\s*(?:then\s+)?(.+?)(?:[,;]\s*(?:otherwise|else)\s*,?\s*(.+))?$`)
	leadingIfPattern = regexp.MustCompile(`(?i)^if\b`)
	orPattern        = regexp.MustCompile(`(?i)\s+or\s+`)
	choiceVerbs      = regexp.MustCompile(`(?i)\b(choose|chooses|select|selects|whether)\b`)
	leadingVerb      = regexp.MustCompile(`(?i)^(?:choose|chooses|select|selects|decide|decides|whether)\s+(?:between\s+|to\s+)?`)
)

// LooksLikeDecision reports whether text reads like a branch point: a
// leading "if", a trailing "?", an embedded " or ", or one of the choice
// verbs.
func LooksLikeDecision(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return leadingIfPattern.MatchString(t) ||
		strings.HasSuffix(t, "?") ||
		orPattern.MatchString(t) ||
		choiceVerbs.MatchString(t)
}

// ParseBranches reads decision-like text into a condition and its two
// outcomes. It understands "If X, Y[, otherwise Z]" and "X or Y"; anything
// else decision-like yields a bare condition. Returns nil for text that does
// not look like a decision.
func ParseBranches(text string) *schema.Branches {
	t := strings.TrimSpace(text)
	if !LooksLikeDecision(t) {
		return nil
	}

	if m := ifThenPattern.FindStringSubmatch(strings.TrimSuffix(t, ".")); m != nil {
		return &schema.Branches{
			Condition: strings.TrimSpace(m[1]),
			IfTrue:    strings.TrimSpace(m[2]),
			IfFalse:   strings.TrimSpace(m[3]),
		}
	}

	question := strings.TrimSpace(strings.TrimSuffix(t, "?"))
	if loc := orPattern.FindStringIndex(question); loc != nil {
		left := leadingVerb.ReplaceAllString(strings.TrimSpace(question[:loc[0]]), "")
		right := strings.TrimSpace(question[loc[1]:])
		if left != "" && right != "" {
			return &schema.Branches{
				Condition: question,
				IfTrue:    left,
				IfFalse:   right,
			}
		}
	}

	return &schema.Branches{Condition: question}
}
