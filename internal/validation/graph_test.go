package validation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rendis/stickyflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Policies ---

func TestCompilePolicies(t *testing.T) {
	policies, err := CompilePolicies(nil)
	require.NoError(t, err)
	assert.Nil(t, policies)

	policies, err = CompilePolicies([]PolicyConfig{
		{Expression: "stats.totalNodes > 0"},
		{Code: "LANES", Expression: `"System" in lanes`, Severity: "ERROR"},
	})
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, schema.IssuePolicyViolation, policies[0].Code())
	assert.Equal(t, "LANES", policies[1].Code())
}

func TestCompilePolicies_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  PolicyConfig
	}{
		{"empty", PolicyConfig{Expression: "  "}},
		{"syntax", PolicyConfig{Expression: "stats.totalNodes >"}},
		{"not bool", PolicyConfig{Expression: "size(lanes)"}},
		{"unknown variable", PolicyConfig{Expression: "steps.x == 1"}},
		{"bad severity", PolicyConfig{Expression: "true", Severity: "fatal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompilePolicies([]PolicyConfig{tt.cfg})
			require.Error(t, err)
			var fe *schema.FlowError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, schema.ErrCodeConfig, fe.Code)
		})
	}
}

func TestGraphValidator_Policies(t *testing.T) {
	gv, err := NewGraphValidator(strict(), []PolicyConfig{
		{Code: "TOO_SMALL", Expression: "stats.totalNodes >= 10", Message: "graph too small", Severity: "error"},
		{Expression: "stats.inferredRatio < 0.5"},
		{Expression: `stats.nodesByType["decision"] <= 1`},
		{Code: "NEEDS_PROJECT", Expression: `metadata.project != ""`},
	})
	require.NoError(t, err)

	r := gv.Validate(validGraph())
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"TOO_SMALL"}, codes(r.Errors))
	assert.Equal(t, "graph too small", r.Errors[0].Message)
	assert.Equal(t, []string{"NEEDS_PROJECT"}, codes(r.Warnings))
}

func TestGraphValidator_NoPolicies(t *testing.T) {
	gv, err := NewGraphValidator(strict(), nil)
	require.NoError(t, err)

	r := gv.Validate(validGraph())
	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Equal(t, strict(), gv.Options())

	r = gv.Validate(nil)
	assert.False(t, r.Valid)
}

// --- Documents ---

func TestGraphValidator_ValidateJSON(t *testing.T) {
	gv, err := NewGraphValidator(strict(), nil)
	require.NoError(t, err)

	data, err := json.Marshal(validGraph())
	require.NoError(t, err)

	g, r := gv.ValidateJSON(data)
	require.NotNil(t, g)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Errors)
	assert.Len(t, g.Nodes, 6)
	require.NotNil(t, r.Stats)
	assert.Equal(t, 6, r.Stats.TotalNodes)
}

func TestGraphValidator_ValidateJSON_GraphDefects(t *testing.T) {
	gv, err := NewGraphValidator(strict(), nil)
	require.NoError(t, err)

	bad := validGraph()
	bad.Edges = append(bad.Edges, edge("S1", "ghost", ""))
	data, err := json.Marshal(bad)
	require.NoError(t, err)

	g, r := gv.ValidateJSON(data)
	require.NotNil(t, g, "schema-valid documents are decoded")
	assert.False(t, r.Valid)
	assert.Len(t, r.IssuesWithCode(schema.IssueMissingNodeReference), 1)
}

func TestGraphValidator_ValidateJSON_SchemaViolations(t *testing.T) {
	gv, err := NewGraphValidator(Options{}, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"lanes": [`},
		{"empty", ``},
		{"missing edges", `{"lanes": ["User"], "nodes": []}`},
		{"bad node type", `{"lanes": ["User"], "nodes": [{"id": "a", "type": "bogus", "lane": "User"}], "edges": []}`},
		{"unknown edge field", `{"lanes": [], "nodes": [], "edges": [{"from": "a", "to": "b", "weight": 3}]}`},
		{"empty node id", `{"lanes": [], "nodes": [{"id": "", "type": "step", "lane": "User"}], "edges": []}`},
		{"bad timestamp", `{"metadata": {"generatedAt": "yesterday"}, "lanes": [], "nodes": [], "edges": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, r := gv.ValidateJSON([]byte(tt.doc))
			assert.Nil(t, g)
			require.NotEmpty(t, r.Errors)
			for _, is := range r.Errors {
				assert.Equal(t, schema.IssueSchemaViolation, is.Code)
			}
			assert.True(t, r.Valid, "non-strict results are always valid")
		})
	}
}

func TestJSONSchemaValidator_ValidateGraph(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateGraph(validGraph()))

	err = v.ValidateGraph(nil)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeInvalidInput, fe.Code)

	bad := validGraph()
	bad.Nodes[0].Type = "portal"
	err = v.ValidateGraph(bad)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
	assert.Contains(t, fe.Message, "/nodes/0/type")
}
