package validation

import (
	"encoding/json"

	"github.com/rendis/stickyflow/pkg/schema"
)

// GraphValidator orchestrates the validation pipeline:
// 1. Structural (JSON Schema), for documents only
// 2. Semantic and DAG checks (Validate)
// 3. Policies (CEL)
type GraphValidator struct {
	jsonSchema *JSONSchemaValidator
	policies   []*Policy
	opts       Options
}

var _ Validator = (*GraphValidator)(nil)

// NewGraphValidator compiles the graph schema and the given policies.
func NewGraphValidator(opts Options, policies []PolicyConfig) (*GraphValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	compiled, err := CompilePolicies(policies)
	if err != nil {
		return nil, err
	}
	return &GraphValidator{jsonSchema: jsv, policies: compiled, opts: opts}, nil
}

// Options returns the options the validator was built with.
func (gv *GraphValidator) Options() Options {
	return gv.opts
}

// Validate runs the graph checks and the policies.
func (gv *GraphValidator) Validate(graph *schema.FlowGraph) *schema.ValidationResult {
	result := Validate(graph, gv.opts)
	if graph == nil {
		return result
	}
	result.Merge(validatePolicies(graph, result.Stats, gv.policies))
	return finish(result, gv.opts)
}

// ValidateJSON validates a FlowGraph document. Schema violations
// short-circuit: the graph checks are skipped and the returned graph is nil.
func (gv *GraphValidator) ValidateJSON(data []byte) (*schema.FlowGraph, *schema.ValidationResult) {
	result := validateStructural(gv.jsonSchema, data)
	if result.HasErrors() {
		return nil, finish(result, gv.opts)
	}

	var graph schema.FlowGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		result.AddError(schema.IssueRef{}, schema.IssueSchemaViolation, err.Error(), "")
		return nil, finish(result, gv.opts)
	}
	return &graph, gv.Validate(&graph)
}
