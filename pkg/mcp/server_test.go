package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stickyflow/internal/pipeline"
	"github.com/rendis/stickyflow/internal/validation"
)

func newServer(t *testing.T, deps ServerDeps) *Server {
	t.Helper()
	s, err := NewServer(deps)
	require.NoError(t, err)
	return s
}

func TestNewServer(t *testing.T) {
	s := newServer(t, ServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.validator)
	assert.NotNil(t, s.query)
	assert.Same(t, s.validator, s.base.Validator)
}

func TestNewServer_KeepsConfiguredValidator(t *testing.T) {
	v, err := validation.NewGraphValidator(validation.Options{Strict: true}, nil)
	require.NoError(t, err)

	s := newServer(t, ServerDeps{Pipeline: pipeline.Options{Validator: v, Project: "karaoke"}})
	assert.Same(t, v, s.validator)
	assert.Equal(t, "karaoke", s.base.Project)
}

func TestToolRegistration(t *testing.T) {
	s := newServer(t, ServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 3)

	for _, name := range []string{"stickyflow.compile", "stickyflow.validate", "stickyflow.query"} {
		assert.NotNil(t, s.mcpServer.GetTool(name), "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"compile", "stickyflow.compile", "Compile sticky-note records into a flow graph and validate it"},
		{"validate", "stickyflow.validate", "Validate a flow graph document"},
		{"query", "stickyflow.query", "Run a jq expression or named preset over a flow graph"},
	}

	s := newServer(t, ServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestHandleMessage_ToolsList(t *testing.T) {
	s := newServer(t, ServerDeps{Version: "1.2.3"})

	resp := s.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NotNil(t, resp)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stickyflow.compile")
	assert.Contains(t, string(data), "stickyflow.query")
}
