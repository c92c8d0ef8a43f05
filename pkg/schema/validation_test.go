package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyHasNoErrors(t *testing.T) {
	r := &ValidationResult{}
	assert.False(t, r.HasErrors())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError(IssueRef{NodeID: "D1"}, IssueInsufficientDecision, "decision has one branch", "add a No branch")

	assert.True(t, r.HasErrors())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "nodes[D1]", r.Errors[0].Path)
	assert.Equal(t, IssueInsufficientDecision, r.Errors[0].Code)
	assert.Equal(t, "decision has one branch", r.Errors[0].Message)
	assert.Equal(t, "add a No branch", r.Errors[0].Suggestion)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
	assert.Equal(t, "D1", r.Errors[0].NodeID)
}

func TestValidationResult_AddWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning(IssueRef{}, IssueNoExitPath, "no exit", "")

	assert.False(t, r.HasErrors(), "warnings alone are not errors")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
	assert.Equal(t, "/", r.Warnings[0].Path)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError(IssueRef{}, IssueSelfLoop, "err1", "")
	r1.AddWarning(IssueRef{}, IssueLabelTooLong, "warn1", "")

	r2 := &ValidationResult{}
	r2.AddError(IssueRef{}, IssueCycleDetected, "err2", "")
	r2.AddWarning(IssueRef{}, IssueDuplicateEdge, "warn2", "")

	r1.Merge(r2)
	r1.Merge(nil)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 2)
	assert.Len(t, r1.IssuesWithCode(IssueDuplicateEdge), 1)
}

func TestIssueRef_Path(t *testing.T) {
	tests := []struct {
		ref  IssueRef
		want string
	}{
		{IssueRef{}, "/"},
		{IssueRef{FlowGroup: "main"}, "flowGroups[main]"},
		{IssueRef{FlowGroup: "main", NodeID: "S1"}, "flowGroups[main].nodes[S1]"},
		{IssueRef{EdgeFrom: "A", EdgeTo: "B"}, "edges[A->B]"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.ref.Path())
	}
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{Valid: true}
	assert.NoError(t, r.ToError())

	r = &ValidationResult{}
	r.AddError(IssueRef{}, IssueNoStartNode, "no start node", "")
	err := r.ToError()
	require.Error(t, err)

	var fe *FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ErrCodeValidation, fe.Code)
	assert.Equal(t, "no start node", fe.Message)
	assert.Equal(t, 1, fe.Details["error_count"])

	r.AddError(IssueRef{}, IssueNoEndNode, "no end node", "")
	err = r.ToError()
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "validation failed with 2 errors", fe.Message)
}

func TestGraphStats_InferredRatio(t *testing.T) {
	var nilStats *GraphStats
	assert.Zero(t, nilStats.InferredRatio())
	assert.Zero(t, (&GraphStats{}).InferredRatio())
	assert.InDelta(t, 0.25, (&GraphStats{TotalNodes: 4, InferredNodes: 1}).InferredRatio(), 1e-9)
}

func TestFlowError(t *testing.T) {
	cause := errors.New("boom")
	err := NewErrorf(ErrCodeInvalidInput, "bad record %d", 3).WithNode("S1").WithCause(cause)
	assert.Equal(t, "[INVALID_INPUT] node S1: bad record 3", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[CONFIG_ERROR] x", NewError(ErrCodeConfig, "x").Error())
}

func TestNodeTypePredicates(t *testing.T) {
	assert.True(t, NodeTypeEnd.IsTerminal())
	assert.True(t, NodeTypeExit.IsTerminal())
	assert.False(t, NodeTypeStart.IsTerminal())
	assert.True(t, NodeTypeDecision.IsAction())
	assert.True(t, NodeTypeSystem.IsAction())
	assert.False(t, NodeTypeStart.IsAction())
	assert.Equal(t, MainFlowGroup, GroupOf(""))
	assert.Equal(t, "g", GroupOf("g"))
}
