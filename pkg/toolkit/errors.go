package toolkit

import (
	"fmt"
	"strings"
)

// DuplicateToolError reports a second registration under an existing name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s", e.Name)
}

// UnknownToolError reports an instance referencing an unregistered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// FieldViolation describes one invalid config field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidToolConfigError collects every violated field of an instance config
// so a broken assistant definition can be fixed in one pass.
type InvalidToolConfigError struct {
	Tool       string
	Violations []FieldViolation
}

func (e *InvalidToolConfigError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return fmt.Sprintf("invalid config for tool %s: %s", e.Tool, strings.Join(parts, "; "))
}

// ToolExecutionError is the typed failure a tool returns when an external
// dependency is unreachable, a referenced resource is missing, or stored data
// is malformed. Absence of results is not an execution error.
type ToolExecutionError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s failed: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Reason)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError builds a ToolExecutionError with a human-readable reason.
func NewExecutionError(tool, reason string, err error) *ToolExecutionError {
	return &ToolExecutionError{Tool: tool, Reason: reason, Err: err}
}
