package validation

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rendis/stickyflow/pkg/schema"
)

// PolicyConfig declares a user-defined rule. Expression is CEL and must
// evaluate to true for a conforming graph.
//
// The environment exposes:
//   - stats:    map(string, dyn): totalNodes, totalEdges, totalFlowGroups,
//     inferredNodes, inferredEdges, inferredRatio, nodesByType, nodesByLane
//   - lanes:    list(string)
//   - metadata: map(string, dyn): project, feature, source, versions
type PolicyConfig struct {
	Code       string `koanf:"code" json:"code"`
	Expression string `koanf:"expression" json:"expression"`
	Message    string `koanf:"message" json:"message"`
	// Severity is "error" or "warning". Defaults to warning.
	Severity string `koanf:"severity" json:"severity"`
}

// Policy is a compiled PolicyConfig.
type Policy struct {
	cfg     PolicyConfig
	program cel.Program
}

func newPolicyEnv() (*cel.Env, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("stats", mapType),
		cel.Variable("lanes", cel.ListType(cel.StringType)),
		cel.Variable("metadata", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return env, nil
}

// CompilePolicies compiles every policy, failing on the first bad one.
func CompilePolicies(configs []PolicyConfig) ([]*Policy, error) {
	if len(configs) == 0 {
		return nil, nil
	}
	env, err := newPolicyEnv()
	if err != nil {
		return nil, err
	}

	out := make([]*Policy, 0, len(configs))
	for i, cfg := range configs {
		cfg.Expression = strings.TrimSpace(cfg.Expression)
		if cfg.Expression == "" {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "policy %d has an empty expression", i)
		}
		if cfg.Code == "" {
			cfg.Code = schema.IssuePolicyViolation
		}
		switch schema.ValidationSeverity(strings.ToLower(cfg.Severity)) {
		case schema.SeverityError:
			cfg.Severity = string(schema.SeverityError)
		case schema.SeverityWarning, "":
			cfg.Severity = string(schema.SeverityWarning)
		default:
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "policy %d has unknown severity %q", i, cfg.Severity)
		}

		ast, issues := env.Compile(cfg.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig,
				"CEL compile error in %q: %s", cfg.Expression, issues.Err().Error()).
				WithCause(issues.Err()).
				WithDetails(map[string]any{"expression": cfg.Expression})
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, schema.NewErrorf(schema.ErrCodeConfig,
				"policy %q must return bool, got %s", cfg.Expression, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig,
				"CEL program error for %q: %s", cfg.Expression, err.Error()).
				WithCause(err)
		}
		out = append(out, &Policy{cfg: cfg, program: prg})
	}
	return out, nil
}

// Code returns the issue code the policy reports.
func (p *Policy) Code() string { return p.cfg.Code }

// Check evaluates the policy. It returns (true, nil) when the graph
// conforms.
func (p *Policy) Check(activation map[string]any) (bool, error) {
	out, _, err := p.program.Eval(activation)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL evaluation failed for %q: %s", p.cfg.Expression, err.Error()).
			WithCause(err)
	}
	ok, _ := out.Value().(bool)
	return ok, nil
}

// policyActivation builds the CEL variables for graph.
func policyActivation(graph *schema.FlowGraph, stats *schema.GraphStats) map[string]any {
	byType := make(map[string]any, len(stats.NodesByType))
	for k, v := range stats.NodesByType {
		byType[k] = int64(v)
	}
	byLane := make(map[string]any, len(stats.NodesByLane))
	for k, v := range stats.NodesByLane {
		byLane[k] = int64(v)
	}
	lanes := make([]string, len(graph.Lanes))
	copy(lanes, graph.Lanes)

	return map[string]any{
		"stats": map[string]any{
			"totalNodes":      int64(stats.TotalNodes),
			"totalEdges":      int64(stats.TotalEdges),
			"totalFlowGroups": int64(stats.TotalFlowGroups),
			"inferredNodes":   int64(stats.InferredNodes),
			"inferredEdges":   int64(stats.InferredEdges),
			"inferredRatio":   stats.InferredRatio(),
			"nodesByType":     byType,
			"nodesByLane":     byLane,
		},
		"lanes": lanes,
		"metadata": map[string]any{
			"project":         graph.Metadata.Project,
			"feature":         graph.Metadata.Feature,
			"source":          graph.Metadata.Source,
			"grammarVersion":  graph.Metadata.GrammarVersion,
			"expanderVersion": graph.Metadata.ExpanderVersion,
		},
	}
}

// validatePolicies reports one issue per failing policy. Evaluation errors
// are reported as errors regardless of the policy's severity.
func validatePolicies(graph *schema.FlowGraph, stats *schema.GraphStats, policies []*Policy) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(policies) == 0 {
		return result
	}

	activation := policyActivation(graph, stats)
	for _, p := range policies {
		ok, err := p.Check(activation)
		if err != nil {
			result.AddError(schema.IssueRef{}, p.cfg.Code, err.Error(), "Fix the policy expression")
			continue
		}
		if ok {
			continue
		}
		msg := p.cfg.Message
		if msg == "" {
			msg = fmt.Sprintf("policy %q is not satisfied", p.cfg.Expression)
		}
		if p.cfg.Severity == string(schema.SeverityError) {
			result.AddError(schema.IssueRef{}, p.cfg.Code, msg, "")
		} else {
			result.AddWarning(schema.IssueRef{}, p.cfg.Code, msg, "")
		}
	}
	return result
}
