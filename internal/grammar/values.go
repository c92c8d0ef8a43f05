package grammar

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rendis/stickyflow/internal/heuristics"
	"github.com/rendis/stickyflow/pkg/schema"
)

var (
	idPrefix      = regexp.MustCompile(`^\(([^()]+)\)\s*`)
	laneTag       = regexp.MustCompile(`^\[([^\[\]]+)\]\s*`)
	yesSegment    = regexp.MustCompile(`(?i)^yes\s*:\s*(.*)$`)
	noSegment     = regexp.MustCompile(`(?i)^no\s*:\s*(.*)$`)
	edgeAttrs     = regexp.MustCompile(`\s*\[([^\[\]]*)\]\s*$`)
	criterionSeps = []string{"->", "=>", "→"}

	nameLanePattern    = regexp.MustCompile(`(?i)^lane:\s*(.+)$`)
	nameSlashPattern   = regexp.MustCompile(`^([A-Z][A-Z0-9 _-]+?)\s*/`)
	nameCapsColPattern = regexp.MustCompile(`^([A-Z][A-Z0-9_]+):`)
)

// head is the common "(ID) [Lane] text" prefix of step-like values.
type head struct {
	id   string
	lane string
	text string
}

func parseHead(value string) head {
	var h head
	rest := strings.TrimSpace(value)
	if m := idPrefix.FindStringSubmatch(rest); m != nil {
		h.id = strings.TrimSpace(m[1])
		rest = rest[len(m[0]):]
	}
	if m := laneTag.FindStringSubmatch(rest); m != nil {
		h.lane = heuristics.NormalizeLane(m[1])
		rest = rest[len(m[0]):]
	}
	h.text = strings.TrimSpace(rest)
	return h
}

// parsePersona splits "Name - details" on the first dash-like separator.
func parsePersona(value string) schema.Persona {
	idx := strings.IndexAny(value, "-–—")
	if idx < 0 {
		return schema.Persona{Name: strings.TrimSpace(value)}
	}
	_, size := utf8.DecodeRuneInString(value[idx:])
	name := strings.TrimSpace(value[:idx])
	details := strings.TrimSpace(value[idx+size:])
	if name == "" {
		return schema.Persona{Name: details}
	}
	return schema.Persona{Name: name, Details: details}
}

// decisionParts is a decision value split on "|".
type decisionParts struct {
	head
	yes     string
	no      string
	unknown []string
}

func parseDecision(value string) decisionParts {
	segments := strings.Split(value, "|")
	d := decisionParts{head: parseHead(segments[0])}
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		switch {
		case seg == "":
		case yesSegment.MatchString(seg):
			d.yes = strings.TrimSpace(yesSegment.FindStringSubmatch(seg)[1])
		case noSegment.MatchString(seg):
			d.no = strings.TrimSpace(noSegment.FindStringSubmatch(seg)[1])
		default:
			d.unknown = append(d.unknown, seg)
		}
	}
	return d
}

// choiceParts is "Question | option | option".
type choiceParts struct {
	head
	options []string
}

func parseChoice(value string) choiceParts {
	segments := strings.Split(value, "|")
	c := choiceParts{head: parseHead(segments[0])}
	for _, seg := range segments[1:] {
		if seg = strings.TrimSpace(seg); seg != "" {
			c.options = append(c.options, seg)
		}
	}
	return c
}

// parseEdges reads "from -> to [label=..., condition=...]". A chain
// "a -> b -> c" yields one edge per hop, all sharing the attributes.
// ok is false when the arrow pattern does not match.
func parseEdges(value string) (edges []schema.EdgeDecl, ok bool) {
	body := strings.TrimSpace(value)
	var label, condition string
	if loc := edgeAttrs.FindStringSubmatchIndex(body); loc != nil {
		label, condition = parseEdgeAttrs(body[loc[2]:loc[3]])
		body = body[:loc[0]]
	}
	if !strings.Contains(body, "->") {
		return nil, false
	}

	parts := strings.Split(body, "->")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil, false
		}
	}
	for i := 0; i+1 < len(parts); i++ {
		edges = append(edges, schema.EdgeDecl{
			From:      parts[i],
			To:        parts[i+1],
			Label:     label,
			Condition: condition,
		})
	}
	return edges, true
}

func parseEdgeAttrs(attrs string) (label, condition string) {
	for _, kv := range strings.Split(attrs, ",") {
		key, val, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "label":
			label = val
		case "condition", "cond":
			condition = val
		}
	}
	return label, condition
}

// parseCriterion splits "condition -> expected" on the first arrow-like
// separator. A leading "(ID)" attaches the criterion to that node.
func parseCriterion(value string) schema.AcceptanceCriterion {
	var ac schema.AcceptanceCriterion
	text := strings.TrimSpace(value)
	if m := idPrefix.FindStringSubmatch(text); m != nil {
		ac.AttachedTo = strings.TrimSpace(m[1])
		text = strings.TrimSpace(text[len(m[0]):])
	}
	cut, sepLen := -1, 0
	for _, sep := range criterionSeps {
		if i := strings.Index(text, sep); i >= 0 && (cut < 0 || i < cut) {
			cut, sepLen = i, len(sep)
		}
	}
	if cut < 0 {
		ac.Condition = text
		return ac
	}
	ac.Condition = strings.TrimSpace(text[:cut])
	ac.ExpectedResult = strings.TrimSpace(text[cut+sepLen:])
	return ac
}

// LaneFromName infers a lane from a record's name: "Lane: X", a leading
// "ALLCAPS /" or a leading "ALLCAPS:". Returns "" when none applies.
func LaneFromName(name string) string {
	name = strings.TrimSpace(name)
	if m := nameLanePattern.FindStringSubmatch(name); m != nil {
		return heuristics.NormalizeLane(m[1])
	}
	if m := nameSlashPattern.FindStringSubmatch(name); m != nil {
		return heuristics.NormalizeLane(m[1])
	}
	if m := nameCapsColPattern.FindStringSubmatch(name); m != nil {
		return heuristics.NormalizeLane(m[1])
	}
	return ""
}
