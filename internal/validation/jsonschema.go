package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/stickyflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const graphSchemaURL = "https://stickyflow.dev/schemas/flowgraph.json"

// flowGraphSchemaJSON is the JSON Schema for FlowGraph documents read from
// disk or received over MCP.
const flowGraphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stickyflow.dev/schemas/flowgraph.json",
  "type": "object",
  "required": ["lanes", "nodes", "edges"],
  "properties": {
    "metadata": {
      "type": "object",
      "properties": {
        "generatedAt": { "type": "string", "format": "date-time" },
        "grammarVersion": { "type": "string" },
        "expanderVersion": { "type": "string" }
      }
    },
    "lanes": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "flowGroups": {
      "type": "array",
      "items": { "$ref": "#/$defs/flowGroup" }
    },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "starts": { "type": "array", "items": { "type": "string" } },
    "ends": { "type": "array", "items": { "type": "string" } },
    "assumptions": { "type": "array", "items": { "type": "string" } },
    "openQuestions": { "type": "array", "items": { "type": "string" } },
    "risks": { "type": "array", "items": { "type": "string" } },
    "acceptanceCriteria": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["condition"],
        "properties": {
          "condition": { "type": "string" },
          "expectedResult": { "type": "string" },
          "attachedTo": { "type": "string" },
          "suggested": { "type": "boolean" }
        },
        "additionalProperties": false
      }
    }
  },
  "$defs": {
    "flowGroup": {
      "type": "object",
      "required": ["id", "nodes", "edges"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "starts": { "type": "array", "items": { "type": "string" } },
        "ends": { "type": "array", "items": { "type": "string" } },
        "nodes": { "type": "array", "items": { "$ref": "#/$defs/node" } },
        "edges": { "type": "array", "items": { "$ref": "#/$defs/edge" } }
      },
      "additionalProperties": false
    },
    "node": {
      "type": "object",
      "required": ["id", "type", "lane"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["start", "step", "system", "decision", "end", "exit"]
        },
        "lane": { "type": "string" },
        "label": { "type": "string" },
        "sourceText": { "type": "string" },
        "inferred": { "type": "boolean" },
        "flowGroup": { "type": "string" },
        "branches": {
          "type": "object",
          "properties": {
            "condition": { "type": "string" },
            "ifTrue": { "type": "string" },
            "ifFalse": { "type": "string" }
          },
          "additionalProperties": false
        },
        "options": { "type": "array", "items": { "type": "string" } },
        "disconnected": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "condition": { "type": "string" },
        "flowGroup": { "type": "string" },
        "inferred": { "type": "boolean" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks FlowGraph documents against the FlowGraph JSON
// Schema (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	graphSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the FlowGraph schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowGraphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal flow graph schema: %w", err)
	}
	if err := c.AddResource(graphSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add flow graph schema resource: %w", err)
	}
	compiled, err := c.Compile(graphSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile flow graph schema: %w", err)
	}
	return &JSONSchemaValidator{graphSchema: compiled}, nil
}

// ValidateDocument validates raw FlowGraph JSON. Violations are returned as
// a FlowError whose details list every violation.
func (v *JSONSchemaValidator) ValidateDocument(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return schema.NewError(schema.ErrCodeInvalidInput, "flow graph document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidInput, "flow graph document is not valid JSON").WithCause(err)
	}
	if err := v.graphSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateGraph validates an in-memory graph through its JSON encoding.
func (v *JSONSchemaValidator) ValidateGraph(graph *schema.FlowGraph) error {
	if graph == nil {
		return schema.NewError(schema.ErrCodeInvalidInput, "flow graph is nil")
	}
	b, err := json.Marshal(graph)
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidInput, "failed to serialize flow graph").WithCause(err)
	}
	return v.ValidateDocument(b)
}

// toFlowError converts a jsonschema.ValidationError into a FlowError that
// lists each leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "schema validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// validateStructural converts ValidateDocument output into SCHEMA_VIOLATION
// issues.
func validateStructural(v *JSONSchemaValidator, data []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(data)
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError(schema.IssueRef{}, schema.IssueSchemaViolation, err.Error(), "")
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, msg := range violations {
			result.AddError(schema.IssueRef{}, schema.IssueSchemaViolation, msg, "Fix the document so it matches the FlowGraph schema")
		}
		return result
	}
	result.AddError(schema.IssueRef{}, schema.IssueSchemaViolation, fe.Message, "")
	return result
}
