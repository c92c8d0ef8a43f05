// Package query runs jq expressions over compiled flow graphs.
package query

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/stickyflow/pkg/schema"
)

// Engine evaluates jq expressions against the JSON form of a FlowGraph.
// Compiled programs are cached per expression and variable set, so an
// Engine is meant to be shared. It is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// New creates an Engine with an empty cache.
func New() *Engine {
	return &Engine{cache: make(map[string]*gojq.Code)}
}

// Document converts a graph into the generic value jq operates on. The
// conversion goes through the graph's JSON encoding so field names match
// what the CLI and MCP tools emit.
func Document(graph *schema.FlowGraph) (any, error) {
	if graph == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "flow graph is nil")
	}
	b, err := json.Marshal(graph)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "failed to serialize flow graph").WithCause(err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "failed to decode flow graph").WithCause(err)
	}
	return doc, nil
}

// Graph evaluates expression against graph and returns every output.
// vars are bound as jq variables; a key "lane" is visible as $lane.
func (e *Engine) Graph(ctx context.Context, expression string, graph *schema.FlowGraph, vars map[string]any) ([]any, error) {
	doc, err := Document(graph)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, expression, doc, vars)
}

// Run evaluates expression against an already decoded JSON value.
func (e *Engine) Run(ctx context.Context, expression string, input any, vars map[string]any) ([]any, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeQuery, "empty jq expression")
	}

	names, values := bindings(vars)
	code, err := e.getOrCompile(expression, names)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input, values...)
	results := []any{}
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			if herr, ok := err.(*gojq.HaltError); ok && herr.Value() == nil {
				break
			}
			return nil, schema.NewErrorf(schema.ErrCodeQuery,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}
	return results, nil
}

// First is like Graph but returns only the first output, or nil when the
// expression produced nothing.
func (e *Engine) First(ctx context.Context, expression string, graph *schema.FlowGraph, vars map[string]any) (any, error) {
	out, err := e.Graph(ctx, expression, graph, vars)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (e *Engine) getOrCompile(expression string, names []string) (*gojq.Code, error) {
	key := expression
	if len(names) > 0 {
		key = strings.Join(names, ",") + "\x00" + expression
	}

	e.mu.RLock()
	if code, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[key]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeQuery,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	dollar := make([]string, len(names))
	for i, n := range names {
		dollar[i] = "$" + n
	}
	code, err := gojq.Compile(parsed,
		gojq.WithVariables(dollar),
		// No $ENV or env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeQuery,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[key] = code
	return code, nil
}

// bindings returns the variable names in a stable order with their
// normalized values. A leading "$" on a key is optional.
func bindings(vars map[string]any) ([]string, []any) {
	if len(vars) == 0 {
		return nil, nil
	}
	byName := make(map[string]any, len(vars))
	names := make([]string, 0, len(vars))
	for k, v := range vars {
		name := strings.TrimPrefix(k, "$")
		if _, dup := byName[name]; !dup {
			names = append(names, name)
		}
		byName[name] = v
	}
	sort.Strings(names)
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = normalize(byName[name])
	}
	return names, values
}

// normalize converts Go numbers into the float64 form gojq expects.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = normalize(v)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
