package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeConfig       = "CONFIG_ERROR"
	ErrCodeQuery        = "QUERY_ERROR"
	ErrCodeSink         = "SINK_ERROR"
)

// Graph issue codes reported by the validator. These are stable and
// consumed by tooling; never rename one.
const (
	IssueMissingNodeReference    = "MISSING_NODE_REFERENCE"
	IssueInsufficientDecision    = "INSUFFICIENT_DECISION_EDGES"
	IssueNoStartNode             = "NO_START_NODE"
	IssueNoEndNode               = "NO_END_NODE"
	IssueSelfLoop                = "SELF_LOOP"
	IssueCycleDetected           = "CYCLE_DETECTED"
	IssueDisconnectedNode        = "DISCONNECTED_NODE"
	IssueOrphanStart             = "ORPHAN_START"
	IssueOrphanEnd               = "ORPHAN_END"
	IssueNodeNoIncoming          = "NODE_NO_INCOMING"
	IssueNodeNoOutgoing          = "NODE_NO_OUTGOING"
	IssueStartHasIncoming        = "START_HAS_INCOMING"
	IssueTerminalHasOutgoing     = "TERMINAL_HAS_OUTGOING"
	IssueDuplicateNodeID         = "DUPLICATE_NODE_ID"
	IssueUnknownLane             = "UNKNOWN_LANE"
	IssueEmptyRequiredLane       = "EMPTY_REQUIRED_LANE"
	IssueEmptyLane               = "EMPTY_LANE"
	IssueDuplicateEdge           = "DUPLICATE_EDGE"
	IssueNoExitPath              = "NO_EXIT_PATH"
	IssueLabelTooLong            = "LABEL_TOO_LONG"
	IssueEmptyFlowGroup          = "EMPTY_FLOW_GROUP"
	IssueHighInferenceRatio      = "HIGH_INFERENCE_RATIO"
	IssueDecisionWithoutCriteria = "DECISION_WITHOUT_CRITERIA"
	IssuePolicyViolation         = "POLICY_VIOLATION"
	IssueSchemaViolation         = "SCHEMA_VIOLATION"
	IssueCrossGroupEdge          = "CROSS_GROUP_EDGE"
)

// FlowError is the structured error type for all stickyflow operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"nodeId,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}
