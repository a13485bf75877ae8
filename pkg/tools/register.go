package tools

import (
	"fmt"

	"github.com/ndaru/kirana/pkg/knowledge"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// Deps carries the backends the builtin tools need.
type Deps struct {
	Searcher    knowledge.Searcher
	Rubrics     RubricLoader
	ContentRoot string
}

// RegisterBuiltins registers the builtin tools with the registry. This is the
// single explicit registration call invoked during process initialization;
// there is no dynamic discovery.
func RegisterBuiltins(reg *toolkit.Registry, deps Deps) error {
	if deps.Searcher != nil {
		if err := reg.Register(KnowledgeDefinition(), func() toolkit.Tool {
			return NewKnowledgeTool(deps.Searcher)
		}); err != nil {
			return fmt.Errorf("failed to register knowledge tool: %w", err)
		}
	}

	if deps.Rubrics != nil {
		if err := reg.Register(RubricDefinition(), func() toolkit.Tool {
			return NewRubricTool(deps.Rubrics)
		}); err != nil {
			return fmt.Errorf("failed to register rubric tool: %w", err)
		}
	}

	if deps.ContentRoot != "" {
		if err := reg.Register(FileDefinition(), func() toolkit.Tool {
			return NewFileTool(deps.ContentRoot)
		}); err != nil {
			return fmt.Errorf("failed to register file tool: %w", err)
		}
	}

	return nil
}
