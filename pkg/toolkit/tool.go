// Package toolkit defines the tool plugin contract and the registry of
// available tool definitions.
//
// A tool is a pluggable unit that produces context text (and citations) for
// one named placeholder in a prompt template. Definitions are registered once
// during process initialization; the registry is read-only afterwards.
package toolkit

import (
	"context"
)

// Turn is a single prior message a tool is permitted to see.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryContext is the per-request input bundle handed to every tool.
type QueryContext struct {
	RequestID string `json:"request_id"`
	// UserMessage is the current user turn.
	UserMessage string `json:"user_message"`
	// History holds prior conversation turns.
	History []Turn `json:"history,omitempty"`
	// PartialPrompt is the prompt template substituted with earlier tools'
	// outputs. Populated only for sequential chains; empty for parallel
	// execution, where no instance ever sees another's output.
	PartialPrompt string `json:"partial_prompt,omitempty"`
}

// Source is a citation record attached to tool output.
type Source struct {
	Kind  string `json:"kind"`
	Ref   string `json:"ref"`
	Title string `json:"title,omitempty"`
}

// Output is what a tool produces on success. An empty Text is valid: "no
// results found" is an answer, not a failure.
type Output struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// Tool is the contract every tool implements. Execute receives the query
// bundle and a config map already validated against the tool's declared
// schema. Tools may perform external reads but must not mutate shared
// orchestration state.
type Tool interface {
	Execute(ctx context.Context, query QueryContext, config map[string]interface{}) (*Output, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc func(ctx context.Context, query QueryContext, config map[string]interface{}) (*Output, error)

// Execute implements Tool.
func (f ToolFunc) Execute(ctx context.Context, query QueryContext, config map[string]interface{}) (*Output, error) {
	return f(ctx, query, config)
}

// Factory constructs a tool instance for one resolved configuration.
type Factory func() Tool

// ConfigField declares one entry of a tool's configuration schema.
type ConfigField struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition describes a registered tool: identity, semantic placeholder
// category and the declarative config schema instances are validated against.
type Definition struct {
	Name            string        `json:"name"`
	DisplayName     string        `json:"display_name"`
	Description     string        `json:"description"`
	PlaceholderKind string        `json:"placeholder_kind"`
	ConfigFields    []ConfigField `json:"config_fields,omitempty"`
}

// InstanceConfig binds a definition to one placeholder of an assistant's
// prompt template. Created from assistant metadata at request time and
// read-only during execution.
type InstanceConfig struct {
	ToolName         string                 `json:"tool_name"`
	PlaceholderLabel string                 `json:"placeholder_label"`
	Enabled          bool                   `json:"enabled"`
	Config           map[string]interface{} `json:"config,omitempty"`
}
