package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/stickyflow/internal/logging"
	"github.com/rendis/stickyflow/internal/pipeline"
	"github.com/rendis/stickyflow/internal/query"
	"github.com/rendis/stickyflow/internal/validation"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	// Pipeline is the base configuration for compile calls. Its Sink, if
	// any, receives every accepted graph.
	Pipeline pipeline.Options
	// Query defaults to a fresh engine.
	Query   *query.Engine
	Logger  *slog.Logger
	Version string
}

// Server wraps an MCP server with the stickyflow tool handlers.
type Server struct {
	base      pipeline.Options
	validator *validation.GraphValidator
	query     *query.Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all 3 tools registered.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := logging.OrDiscard(deps.Logger)

	v := deps.Pipeline.Validator
	if v == nil {
		var err error
		if v, err = validation.NewGraphValidator(validation.Options{}, nil); err != nil {
			return nil, err
		}
	}
	base := deps.Pipeline
	base.Validator = v
	if base.Logger == nil {
		base.Logger = logger
	}

	q := deps.Query
	if q == nil {
		q = query.New()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		base:      base,
		validator: v,
		query:     q,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"stickyflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stickyflow compiles sticky-note text into a swim-laned flow graph. Use stickyflow.compile to turn labelled notes (S:, D:, E:, SYS: ...) into a graph with a validation report, stickyflow.validate to check an existing graph, and stickyflow.query to run jq over a graph."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO is Serve over arbitrary streams.
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: compileTool(), Handler: s.handleCompile},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func compileTool() mcp.Tool {
	return mcp.NewTool("stickyflow.compile",
		mcp.WithDescription("Compile sticky-note records into a flow graph and validate it"),
		mcp.WithString("text", mcp.Description("Plain-text notes; blank lines separate records and a '# name' first line names one")),
		mcp.WithArray("records", mcp.Description("Records as {id, name, text} objects; used instead of text"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("project", mcp.Description("Project name stamped into the graph metadata")),
		mcp.WithString("feature", mcp.Description("Feature name stamped into the graph metadata")),
		mcp.WithBoolean("include_spec", mcp.Description("Include the intermediate flow spec in the result")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("stickyflow.validate",
		mcp.WithDescription("Validate a flow graph document"),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("FlowGraph JSON object")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("stickyflow.query",
		mcp.WithDescription("Run a jq expression or named preset over a flow graph"),
		mcp.WithString("expression", mcp.Required(), mcp.Description("jq expression or preset name (lanes, starts, ends, decisions, inferred, by-lane, groups, lane, outgoing)")),
		mcp.WithObject("graph", mcp.Description("FlowGraph JSON object to query")),
		mcp.WithString("text", mcp.Description("Notes to compile and query when no graph is given")),
		mcp.WithObject("vars", mcp.Description("Variables bound as $name, e.g. {\"lane\": \"Host\"}")),
	)
}
