package heuristics

import (
	"regexp"
	"strings"
)

var (
	successLabel   = regexp.MustCompile(`(?i)\b(complete|completed|success|successful|done|finish|finished)\b`)
	errorLabel     = regexp.MustCompile(`(?i)\b(error|errors|fail|failed|failure|denied|cancel|cancelled|canceled|abort|aborted|exit)\b`)
	errorMention   = regexp.MustCompile(`(?i)\b(error|errors|denied|deny|fail|fails|failed|failure)\b`)
	terminalWords  = regexp.MustCompile(`(?i)^(stop|exit|quit|cancel|abort|end|leave|give up)\b`)
	continueWords  = regexp.MustCompile(`(?i)^(continue|next|proceed|go on|yes)\b`)
	nonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// IsSuccessLabel reports whether an end label reads as the happy path.
func IsSuccessLabel(label string) bool {
	return successLabel.MatchString(label)
}

// IsErrorLabel reports whether a terminal label reads as an exit or failure.
func IsErrorLabel(label string) bool {
	return errorLabel.MatchString(label)
}

// MentionsError reports whether requirement text talks about failures.
func MentionsError(text string) bool {
	return errorMention.MatchString(text)
}

// IsTerminalTarget reports whether a declared branch target means "leave
// the flow" rather than naming a node.
func IsTerminalTarget(target string) bool {
	return terminalWords.MatchString(strings.TrimSpace(target))
}

// IsContinueTarget reports whether a declared branch target means "carry on
// to whatever comes next".
func IsContinueTarget(target string) bool {
	return continueWords.MatchString(strings.TrimSpace(target))
}

// Slug lowercases s and joins its alphanumeric runs with underscores.
func Slug(s string) string {
	return strings.Trim(nonSlugPattern.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
