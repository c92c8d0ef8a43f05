package heuristics

import (
	"regexp"
	"sort"
	"strings"
)

// SystemAction is a canonical automated step the expander can infer from
// requirement and step text.
type SystemAction struct {
	Key      string
	Label    string
	Priority int // lower runs earlier
	pattern  *regexp.Regexp
}

func systemAction(key, label string, priority int, keywords ...string) SystemAction {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return SystemAction{
		Key:      key,
		Label:    label,
		Priority: priority,
		pattern:  regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

var systemActions = []SystemAction{
	systemAction("authenticate", "Authenticate User", 10, "login", "log in", "logs in", "sign in", "signs in", "signin", "authenticate", "authentication", "password"),
	systemAction("permission", "Request Permission", 20, "permission", "permissions", "allow access", "microphone", "camera access", "consent"),
	systemAction("validate", "Validate Input", 30, "validate", "validates", "validation", "verify", "verifies", "invalid"),
	systemAction("load", "Load Data", 40, "load", "loads", "fetch", "fetches", "retrieve", "retrieves", "download", "downloads"),
	systemAction("session", "Create Session", 50, "session", "lobby", "room", "party"),
	systemAction("sync", "Sync State", 60, "sync", "syncs", "synchronize", "real-time", "realtime", "broadcast"),
	systemAction("save", "Save Data", 70, "save", "saves", "saved", "persist", "persists"),
	systemAction("notify", "Send Notification", 80, "notify", "notifies", "notification", "notifications", "alert", "email", "push notification"),
	systemAction("cleanup", "Cleanup Session", 90, "leave", "leaves", "end session", "ends session", "cleanup", "clean up", "disconnect", "disconnects"),
}

// Matches reports whether text triggers the action.
func (a SystemAction) Matches(text string) bool {
	return a.pattern.MatchString(text)
}

// MatchSystemActions returns the actions triggered by text, by priority.
func MatchSystemActions(text string) []SystemAction {
	var out []SystemAction
	for _, a := range systemActions {
		if a.Matches(text) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// SystemActions returns a copy of the full table, by priority.
func SystemActions() []SystemAction {
	out := make([]SystemAction, len(systemActions))
	copy(out, systemActions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
