package heuristics

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rendis/stickyflow/pkg/schema"
)

type laneKeyword struct {
	keyword string
	lane    string
}

// personaKeywords maps words in a persona name to a canonical lane.
var personaKeywords = []laneKeyword{
	{"host", schema.LaneHost},
	{"organizer", schema.LaneHost},
	{"organiser", schema.LaneHost},
	{"guest", schema.LaneGuest},
	{"friend", schema.LaneGuest},
	{"invitee", schema.LaneGuest},
	{"participant", schema.LaneGuest},
	{"solo", schema.LaneSolo},
	{"user", schema.LaneUser},
	{"player", schema.LaneUser},
	{"customer", schema.LaneUser},
	{"member", schema.LaneUser},
}

// textKeywords maps words anywhere in step text to a lane.
var textKeywords = []laneKeyword{
	{"server", schema.LaneSystem},
	{"backend", schema.LaneSystem},
	{"api", schema.LaneSystem},
	{"database", schema.LaneSystem},
	{"webhook", schema.LaneSystem},
	{"automatically", schema.LaneSystem},
	{"host", schema.LaneHost},
	{"guest", schema.LaneGuest},
	{"invitee", schema.LaneGuest},
	{"solo", schema.LaneSolo},
}

// leadingWords maps the first word of a sentence to a lane.
var leadingWords = map[string]string{
	"system":      schema.LaneSystem,
	"app":         schema.LaneSystem,
	"application": schema.LaneSystem,
	"platform":    schema.LaneSystem,
	"service":     schema.LaneSystem,
	"user":        schema.LaneUser,
	"player":      schema.LaneUser,
	"customer":    schema.LaneUser,
	"visitor":     schema.LaneUser,
	"host":        schema.LaneHost,
	"guest":       schema.LaneGuest,
}

// canonicalOrder ranks the well-known lanes. System is always last and is
// handled by OrderLanes.
var canonicalOrder = []string{schema.LaneUser, schema.LaneSolo, schema.LaneHost, schema.LaneGuest}

var knownLanes = []string{schema.LaneUser, schema.LaneSolo, schema.LaneHost, schema.LaneGuest, schema.LaneSystem}

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Words lowercases text and splits it into letter/digit runs.
func Words(text string) []string {
	var out []string
	for _, w := range wordSplit.Split(strings.ToLower(text), -1) {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func hasWord(words []string, keyword string) bool {
	for _, w := range words {
		if w == keyword || w == keyword+"s" {
			return true
		}
	}
	return false
}

// ContainsFold reports whether text contains needle, ignoring case, on word
// boundaries.
func ContainsFold(text, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}
	hay := strings.ToLower(text)
	for from := 0; from <= len(hay)-len(needle); {
		i := strings.Index(hay[from:], needle)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(needle)
		if boundaryBefore(hay, start) && boundaryAfter(hay, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// PersonaLane maps a persona name to a canonical lane by keyword.
func PersonaLane(name string) (string, bool) {
	words := Words(name)
	for _, kw := range personaKeywords {
		if hasWord(words, kw.keyword) {
			return kw.lane, true
		}
	}
	return "", false
}

// KeywordLane applies the fixed keyword table to free text.
func KeywordLane(text string) (string, bool) {
	words := Words(text)
	for _, kw := range textKeywords {
		if hasWord(words, kw.keyword) {
			return kw.lane, true
		}
	}
	return "", false
}

// LeadingWordLane looks only at the sentence-leading word.
func LeadingWordLane(text string) (string, bool) {
	words := Words(text)
	if len(words) == 0 {
		return "", false
	}
	lane, ok := leadingWords[words[0]]
	return lane, ok
}

// NormalizeLane trims and collapses whitespace, folds well-known lane names
// onto their canonical spelling and title-cases ALLCAPS names. Short ALLCAPS
// words are acronyms and keep their spelling.
func NormalizeLane(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	for _, c := range knownLanes {
		if strings.EqualFold(name, c) {
			return c
		}
	}
	if isAllCaps(name) {
		return titleCase(name)
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// SameLane compares lane names case-insensitively.
func SameLane(a, b string) bool {
	return strings.EqualFold(NormalizeLane(a), NormalizeLane(b))
}

// OrderLanes sorts lanes: declared lanes first in declaration order, then
// the canonical lanes, then custom lanes in first-seen order, System last.
// Duplicates are removed case-insensitively.
func OrderLanes(declared, discovered []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(l string) {
		l = NormalizeLane(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] || l == schema.LaneSystem {
			return
		}
		seen[key] = true
		out = append(out, l)
	}

	for _, l := range declared {
		add(l)
	}
	present := make(map[string]bool)
	for _, l := range discovered {
		present[strings.ToLower(NormalizeLane(l))] = true
	}
	for _, c := range canonicalOrder {
		if present[strings.ToLower(c)] {
			add(c)
		}
	}
	for _, l := range discovered {
		add(l)
	}
	return append(out, schema.LaneSystem)
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// maxAcronym is the longest ALLCAPS word kept as written ("DJ", "QA").
const maxAcronym = 3

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) <= maxAcronym {
			continue
		}
		r = []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
