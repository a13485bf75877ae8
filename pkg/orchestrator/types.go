// Package orchestrator runs an assistant's configured tool instances under a
// chosen execution strategy, merges their outputs into the prompt template
// and reports per-tool execution detail.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/ndaru/kirana/pkg/toolkit"
)

// StrategyName selects one of the closed set of execution strategies.
type StrategyName string

const (
	StrategySequential StrategyName = "sequential" // ordered, chained context
	StrategyParallel   StrategyName = "parallel"   // concurrent, independent
)

// UnknownStrategyError reports an orchestration config naming a strategy
// outside the known set.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown orchestration strategy: %s", e.Name)
}

// Config is the per-request orchestration configuration derived from the
// assistant definition.
type Config struct {
	Strategy StrategyName `json:"strategy"`
	Verbose  bool         `json:"verbose"`
	// FailFast aborts the orchestration on the first tool failure instead of
	// substituting the fallback marker and continuing. It is an explicit
	// policy field; the default is to tolerate failures.
	FailFast bool `json:"fail_fast"`
	// ToolTimeout bounds each tool execution. Zero means DefaultToolTimeout.
	ToolTimeout time.Duration `json:"tool_timeout,omitempty"`
	// Tools is the ordered list of tool instances. Order is significant: it
	// is the chaining order for sequential runs and the report order for
	// both strategies.
	Tools []toolkit.InstanceConfig `json:"tools"`
}

// DefaultToolTimeout bounds a single tool execution when the config does not
// set one.
const DefaultToolTimeout = 30 * time.Second

// Request is the completion request as seen by the orchestration entry point.
type Request struct {
	RequestID      string         `json:"request_id"`
	UserMessage    string         `json:"user_message"`
	History        []toolkit.Turn `json:"history,omitempty"`
	PromptTemplate string         `json:"prompt_template"`
}

// Status is the terminal state of one tool execution.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ToolExecutionResult records one tool instance's execution for the report.
type ToolExecutionResult struct {
	PlaceholderLabel string           `json:"placeholder_label"`
	ToolName         string           `json:"tool_name"`
	Text             string           `json:"text"`
	Sources          []toolkit.Source `json:"sources,omitempty"`
	Status           Status           `json:"status"`
	Error            string           `json:"error,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// Duration returns the wall-clock time the execution took.
func (r ToolExecutionResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AggregatedContext maps placeholder label to final text for one request.
// It holds exactly one entry per enabled tool instance; failed tools
// contribute the fallback marker, never absence.
type AggregatedContext map[string]string

// ExecutionReport is the ordered per-tool trace for one request. Results are
// in configuration order, not completion order, and the report is discarded
// after the response is sent.
type ExecutionReport struct {
	Results       []ToolExecutionResult `json:"results"`
	TotalDuration time.Duration         `json:"total_duration"`
}

// ResolvedInstance pairs an instance config with its registry resolution.
// All instances are resolved before any tool runs, so configuration errors
// abort the orchestration up front.
type ResolvedInstance struct {
	Instance toolkit.InstanceConfig
	Resolved *toolkit.ResolvedTool
}

// Message is one role-tagged entry of the processed message list handed to
// the language-model connector.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is what the orchestration entry point returns to the completion
// pipeline.
type Result struct {
	Messages []Message        `json:"messages"`
	Sources  []toolkit.Source `json:"sources,omitempty"`
	Report   *ExecutionReport `json:"report,omitempty"`
	// Trace is the human-readable execution trace, populated only in
	// verbose mode.
	Trace string `json:"trace,omitempty"`
}
