package orchestrator

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/pkg/placeholder"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// Engine is the orchestration entry point. It resolves the configured tool
// instances through the registry, runs the selected strategy, substitutes the
// aggregated context into the prompt template and returns the processed
// messages plus merged sources to the completion pipeline.
type Engine struct {
	registry *toolkit.Registry
	logger   zerolog.Logger
}

// NewEngine creates an orchestration engine over a populated registry. The
// registry is the only process-lifetime dependency; everything else is
// request-scoped.
func NewEngine(registry *toolkit.Registry, logger zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   logger,
	}
}

// Run executes one completion request's orchestration. Configuration errors
// (unknown strategy, unknown tool, invalid tool config, duplicate labels)
// abort before any tool runs; tool execution failures degrade per the
// configured policy.
func (e *Engine) Run(ctx context.Context, req Request, cfg Config) (*Result, error) {
	strategy, err := NewStrategy(cfg.Strategy, e.logger)
	if err != nil {
		return nil, err
	}

	if req.RequestID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate request ID: %w", err)
		}
		req.RequestID = id
	}

	instances, err := e.resolveInstances(cfg.Tools)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("request_id", req.RequestID).Logger()

	logger.Info().
		Str("strategy", string(cfg.Strategy)).
		Int("tools", len(instances)).
		Bool("verbose", cfg.Verbose).
		Bool("fail_fast", cfg.FailFast).
		Msg("Starting orchestration")

	started := time.Now()

	agg, report, err := strategy.Run(ctx, req, instances, RunOptions{
		FailFast:    cfg.FailFast,
		ToolTimeout: cfg.ToolTimeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Orchestration did not complete")
		return nil, err
	}

	prompt := placeholder.Substitute(req.PromptTemplate, agg)
	sources := MergeSources(report)

	result := &Result{
		Messages: buildMessages(prompt, req),
		Sources:  sources,
		Report:   report,
	}

	if cfg.Verbose {
		unresolved := placeholder.Unresolved(req.PromptTemplate, agg)
		result.Trace = BuildTrace(report, unresolved, sources)
	}

	logger.Info().
		Dur("duration", time.Since(started)).
		Int("sources", len(sources)).
		Msg("Orchestration completed")

	return result, nil
}

// ValidateConfig checks an orchestration config without running anything:
// the strategy must be known, every enabled tool must resolve against the
// registry and placeholder labels must be unique. Used at authoring time so
// a broken assistant definition is rejected before it is saved.
func (e *Engine) ValidateConfig(cfg Config) error {
	if _, err := NewStrategy(cfg.Strategy, e.logger); err != nil {
		return err
	}
	_, err := e.resolveInstances(cfg.Tools)
	return err
}

// ListAvailableTools exposes the registry's definitions for the tool picker.
func (e *Engine) ListAvailableTools() []toolkit.Definition {
	return e.registry.ListAvailable()
}

// resolveInstances resolves every enabled instance up front and checks label
// uniqueness, so a broken assistant definition surfaces as a structured error
// before any tool executes. Disabled instances are dropped entirely.
func (e *Engine) resolveInstances(configs []toolkit.InstanceConfig) ([]ResolvedInstance, error) {
	instances := make([]ResolvedInstance, 0, len(configs))
	labels := make(map[string]bool, len(configs))

	for _, inst := range configs {
		if !inst.Enabled {
			continue
		}

		if inst.PlaceholderLabel == "" {
			return nil, fmt.Errorf("tool %s has no placeholder label", inst.ToolName)
		}
		if labels[inst.PlaceholderLabel] {
			return nil, fmt.Errorf("duplicate placeholder label: %s", inst.PlaceholderLabel)
		}
		labels[inst.PlaceholderLabel] = true

		resolved, err := e.registry.Resolve(inst)
		if err != nil {
			return nil, err
		}

		instances = append(instances, ResolvedInstance{Instance: inst, Resolved: resolved})
	}

	return instances, nil
}

// buildMessages assembles the role-tagged message list: the fully substituted
// prompt as the system message, then history, then the current user turn.
func buildMessages(prompt string, req Request) []Message {
	messages := make([]Message, 0, len(req.History)+2)

	if prompt != "" {
		messages = append(messages, Message{Role: "system", Content: prompt})
	}

	for _, turn := range req.History {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}

	messages = append(messages, Message{Role: "user", Content: req.UserMessage})

	return messages
}
