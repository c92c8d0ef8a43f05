package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/stickyflow/internal/pipeline"
	"github.com/rendis/stickyflow/internal/query"
	"github.com/rendis/stickyflow/pkg/schema"
)

// compileResult is the stickyflow.compile payload.
type compileResult struct {
	RunID   string                   `json:"runId"`
	Valid   bool                     `json:"valid"`
	Spec    *schema.FlowSpec         `json:"spec,omitempty"`
	Graph   *schema.FlowGraph        `json:"graph"`
	Report  *schema.ValidationResult `json:"report"`
	Receipt *pipeline.Receipt        `json:"receipt,omitempty"`
	Error   *schema.FlowError        `json:"error,omitempty"`
}

// handleCompile runs the pipeline over text or records.
func (s *Server) handleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := recordsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := s.base
	if p := req.GetString("project", ""); p != "" {
		opts.Project = p
	}
	if f := req.GetString("feature", ""); f != "" {
		opts.Feature = f
	}

	res, runErr := pipeline.Run(ctx, records, opts)
	if res == nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile failed: %v", runErr)), nil
	}

	out := compileResult{
		RunID:   res.RunID,
		Valid:   res.Report != nil && res.Report.Valid,
		Graph:   res.Graph,
		Report:  res.Report,
		Receipt: res.Receipt,
	}
	if req.GetBool("include_spec", false) {
		out.Spec = res.Spec
	}
	if runErr != nil {
		var fe *schema.FlowError
		if !errors.As(runErr, &fe) {
			fe = schema.NewError(schema.ErrCodeValidation, runErr.Error())
		}
		out.Error = fe
		s.logger.Debug("compile rejected", "run_id", res.RunID, "error", runErr)
		return errorResult(out)
	}
	return marshalResult(out)
}

// handleValidate checks a graph document.
func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["graph"]
	if !ok || raw == nil {
		return mcp.NewToolResultError("graph is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", err)), nil
	}

	_, report := s.validator.ValidateJSON(data)
	return marshalResult(report)
}

// handleQuery runs jq over a graph, compiling text first when no graph is
// given.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	vars := mcp.ParseStringMap(req, "vars", nil)

	var doc any
	if raw, ok := req.GetArguments()["graph"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", err)), nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid graph: %v", err)), nil
		}
	} else {
		text := req.GetString("text", "")
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("one of graph or text is required"), nil
		}
		opts := s.base
		opts.Sink = nil
		res, _ := pipeline.Run(ctx, pipeline.TextRecords(text), opts)
		if res == nil || res.Graph == nil {
			return mcp.NewToolResultError("compile failed"), nil
		}
		if doc, err = query.Document(res.Graph); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	results, err := s.query.Run(ctx, query.Resolve(expression), doc, vars)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(results)
}

// recordsArg reads the records argument, falling back to text.
func recordsArg(req mcp.CallToolRequest) ([]schema.Record, error) {
	if raw, ok := req.GetArguments()["records"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid records: %w", err)
		}
		records, err := pipeline.DecodeRecords(data)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("one of text or records is required")
	}
	return pipeline.TextRecords(text), nil
}

// marshalResult serializes v to JSON and returns it as a tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// errorResult is marshalResult flagged as a tool error, so callers still
// get the structured payload.
func errorResult(v any) (*mcp.CallToolResult, error) {
	res, err := marshalResult(v)
	if err == nil && res != nil {
		res.IsError = true
	}
	return res, err
}
