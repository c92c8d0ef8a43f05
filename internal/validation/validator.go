package validation

import (
	"github.com/rendis/stickyflow/pkg/schema"
)

// DefaultMaxLabelLength is the label length above which LABEL_TOO_LONG is
// reported.
const DefaultMaxLabelLength = 60

// InferredRatioThreshold is the share of inferred nodes above which
// HIGH_INFERENCE_RATIO is reported.
const InferredRatioThreshold = 0.5

// Validator checks compiled flow graphs before they are trusted.
type Validator interface {
	Validate(graph *schema.FlowGraph) *schema.ValidationResult
	ValidateJSON(data []byte) (*schema.FlowGraph, *schema.ValidationResult)
}

// Options tunes the check battery.
type Options struct {
	// Strict makes Valid require zero errors. Otherwise Valid is always true.
	Strict bool
	// AllowDisconnected demotes DISCONNECTED_NODE to a warning.
	AllowDisconnected bool
	// AllowEmptySystemLane demotes an empty System lane to EMPTY_LANE.
	AllowEmptySystemLane bool
	// MaxLabelLength defaults to DefaultMaxLabelLength when zero.
	MaxLabelLength int
}

func (o Options) maxLabelLength() int {
	if o.MaxLabelLength <= 0 {
		return DefaultMaxLabelLength
	}
	return o.MaxLabelLength
}

// Validate runs the fixed check battery over graph. It never modifies graph.
//
// Checks run in two stages: semantic checks over nodes, edges, lanes and
// flow groups, then DAG checks over each flow group's edges.
func Validate(graph *schema.FlowGraph, opts Options) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if graph == nil {
		result.AddError(schema.IssueRef{}, schema.ErrCodeValidation, "flow graph is nil", "Compile the records before validating")
		return finish(result, opts)
	}

	idx := newGraphIndex(graph)
	result.Stats = computeStats(graph)

	result.Merge(validateSemantic(graph, idx, opts))
	result.Merge(validateDAG(graph, idx))

	return finish(result, opts)
}

func finish(result *schema.ValidationResult, opts Options) *schema.ValidationResult {
	if result.Errors == nil {
		result.Errors = []schema.ValidationIssue{}
	}
	if result.Warnings == nil {
		result.Warnings = []schema.ValidationIssue{}
	}
	result.Valid = !opts.Strict || !result.HasErrors()
	return result
}

func computeStats(graph *schema.FlowGraph) *schema.GraphStats {
	stats := &schema.GraphStats{
		TotalNodes:      len(graph.Nodes),
		TotalEdges:      len(graph.Edges),
		TotalFlowGroups: len(graph.FlowGroups),
		NodesByType:     make(map[string]int),
		NodesByLane:     make(map[string]int),
	}
	for _, n := range graph.Nodes {
		if n.Inferred {
			stats.InferredNodes++
		}
		stats.NodesByType[string(n.Type)]++
		stats.NodesByLane[n.Lane]++
	}
	for _, e := range graph.Edges {
		if e.Inferred {
			stats.InferredEdges++
		}
	}
	return stats
}
