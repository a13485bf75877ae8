package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/ndaru/kirana/internal/store"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// RubricToolName is the registry key of the rubric injection tool.
const RubricToolName = "rubric"

// RubricLoader loads stored rubrics; satisfied by the store.
type RubricLoader interface {
	GetRubric(ctx context.Context, id string) (*store.Rubric, error)
}

// RubricDefinition declares the rubric tool's schema.
func RubricDefinition() toolkit.Definition {
	return toolkit.Definition{
		Name:            RubricToolName,
		DisplayName:     "Rubric",
		Description:     "Injects a stored grading rubric into the prompt",
		PlaceholderKind: "rubric",
		ConfigFields: []toolkit.ConfigField{
			{Name: "rubric_id", Type: "string", Description: "Rubric identifier", Required: true},
		},
	}
}

// RubricTool formats a stored rubric for prompt injection.
type RubricTool struct {
	loader RubricLoader
}

// NewRubricTool creates the rubric tool over a loader.
func NewRubricTool(loader RubricLoader) *RubricTool {
	return &RubricTool{loader: loader}
}

// Execute loads and formats the configured rubric.
func (t *RubricTool) Execute(ctx context.Context, query toolkit.QueryContext, config map[string]interface{}) (*toolkit.Output, error) {
	rubricID := cast.ToString(config["rubric_id"])

	rubric, err := t.loader.GetRubric(ctx, rubricID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, toolkit.NewExecutionError(RubricToolName, fmt.Sprintf("rubric not found: %s", rubricID), err)
	}
	if err != nil {
		return nil, toolkit.NewExecutionError(RubricToolName, "failed to load rubric", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rubric: %s\n", rubric.Title)
	for _, c := range rubric.Criteria {
		fmt.Fprintf(&b, "- Criterion: %s (%d pts)", c.Name, c.Points)
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", c.Description)
		}
		b.WriteString("\n")
	}

	return &toolkit.Output{
		Text: strings.TrimRight(b.String(), "\n"),
		Sources: []toolkit.Source{
			{Kind: "rubric", Ref: rubric.ID, Title: rubric.Title},
		},
	}, nil
}
