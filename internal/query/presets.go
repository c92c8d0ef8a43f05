package query

import "sort"

// Presets are named queries exposed by the CLI and the MCP query tool.
var Presets = map[string]string{
	"lanes":     `.lanes`,
	"starts":    `.starts`,
	"ends":      `.ends`,
	"decisions": `[.nodes[] | select(.type == "decision") | {id, label, branches}]`,
	"inferred":  `{nodes: [.nodes[] | select(.inferred) | .id], edges: [.edges[] | select(.inferred) | "\(.from)->\(.to)"]}`,
	"by-lane":   `reduce .nodes[] as $n ({}; .[$n.lane] += [$n.id])`,
	"groups":    `[(.flowGroups // [])[] | {id, name, nodes: (.nodes | length), edges: (.edges | length)}]`,
	"lane":      `[.nodes[] | select(.lane == $lane) | .id]`,
	"outgoing":  `[.edges[] | select(.from == $node) | {to, label}]`,
}

// Resolve returns the expression for a preset name, or expression itself
// when it names no preset.
func Resolve(expression string) string {
	if q, ok := Presets[expression]; ok {
		return q
	}
	return expression
}

// PresetNames lists the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for k := range Presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
