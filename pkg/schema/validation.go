package schema

import (
	"fmt"
	"strings"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// IssueRef locates an issue inside a graph. Every field is optional.
type IssueRef struct {
	FlowGroup string `json:"flowGroup,omitempty"`
	NodeID    string `json:"nodeId,omitempty"`
	EdgeFrom  string `json:"edgeFrom,omitempty"`
	EdgeTo    string `json:"edgeTo,omitempty"`
}

// Path renders the reference as a compact location string.
func (r IssueRef) Path() string {
	var parts []string
	if r.FlowGroup != "" {
		parts = append(parts, fmt.Sprintf("flowGroups[%s]", r.FlowGroup))
	}
	if r.NodeID != "" {
		parts = append(parts, fmt.Sprintf("nodes[%s]", r.NodeID))
	}
	if r.EdgeFrom != "" || r.EdgeTo != "" {
		parts = append(parts, fmt.Sprintf("edges[%s->%s]", r.EdgeFrom, r.EdgeTo))
	}
	if len(parts) == 0 {
		return "/"
	}
	return strings.Join(parts, ".")
}

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path       string             `json:"path"`
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Severity   ValidationSeverity `json:"severity"`
	Suggestion string             `json:"suggestion,omitempty"`
	IssueRef
}

// GraphStats summarizes a graph for observability.
type GraphStats struct {
	TotalNodes      int            `json:"totalNodes"`
	TotalEdges      int            `json:"totalEdges"`
	TotalFlowGroups int            `json:"totalFlowGroups"`
	InferredNodes   int            `json:"inferredNodes"`
	InferredEdges   int            `json:"inferredEdges"`
	NodesByType     map[string]int `json:"nodesByType"`
	NodesByLane     map[string]int `json:"nodesByLane"`
}

// InferredRatio is the share of inferred nodes, 0 for an empty graph.
func (s *GraphStats) InferredRatio() float64 {
	if s == nil || s.TotalNodes == 0 {
		return 0
	}
	return float64(s.InferredNodes) / float64(s.TotalNodes)
}

// ValidationResult aggregates all issues from the validation pipeline.
// Valid is decided by the validator: in strict mode it requires zero
// errors, otherwise warnings and errors are both advisory.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
	Stats    *GraphStats       `json:"stats,omitempty"`
}

// HasErrors reports whether any error-severity issue was recorded.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(ref IssueRef, code, message, suggestion string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: ref.Path(), Code: code, Message: message, Severity: SeverityError,
		Suggestion: suggestion, IssueRef: ref,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(ref IssueRef, code, message, suggestion string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: ref.Path(), Code: code, Message: message, Severity: SeverityWarning,
		Suggestion: suggestion, IssueRef: ref,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// IssuesWithCode returns every error and warning carrying code.
func (r *ValidationResult) IssuesWithCode(code string) []ValidationIssue {
	var out []ValidationIssue
	for _, is := range r.Errors {
		if is.Code == code {
			out = append(out, is)
		}
	}
	for _, is := range r.Warnings {
		if is.Code == code {
			out = append(out, is)
		}
	}
	return out
}

// ToError converts the result to a FlowError if it is not valid, nil otherwise.
func (r *ValidationResult) ToError() error {
	if r.Valid {
		return nil
	}

	msg := "graph validation failed"
	switch len(r.Errors) {
	case 0:
	case 1:
		msg = r.Errors[0].Message
	default:
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
