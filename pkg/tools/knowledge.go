// Package tools provides the builtin tool implementations behind the tool
// plugin contract: knowledge-base retrieval, rubric injection and single-file
// context. Each is a black box to the orchestrator; the contract is the only
// surface.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/ndaru/kirana/pkg/knowledge"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// KnowledgeToolName is the registry key of the retrieval tool.
const KnowledgeToolName = "knowledge"

// KnowledgeDefinition declares the retrieval tool's schema.
func KnowledgeDefinition() toolkit.Definition {
	return toolkit.Definition{
		Name:            KnowledgeToolName,
		DisplayName:     "Knowledge Base",
		Description:     "Retrieves the most relevant passages from a shared knowledge base",
		PlaceholderKind: "context",
		ConfigFields: []toolkit.ConfigField{
			{Name: "kb_id", Type: "string", Description: "Knowledge base identifier", Required: true},
			{Name: "top_k", Type: "integer", Description: "Number of passages to retrieve", Default: 5},
		},
	}
}

// KnowledgeTool retrieves passages through a Searcher.
type KnowledgeTool struct {
	searcher knowledge.Searcher
}

// NewKnowledgeTool creates the retrieval tool over a searcher.
func NewKnowledgeTool(searcher knowledge.Searcher) *KnowledgeTool {
	return &KnowledgeTool{searcher: searcher}
}

// Execute runs retrieval for the user's message. Finding nothing is a valid
// outcome, not a failure.
func (t *KnowledgeTool) Execute(ctx context.Context, query toolkit.QueryContext, config map[string]interface{}) (*toolkit.Output, error) {
	kbID := cast.ToString(config["kb_id"])
	topK := cast.ToInt(config["top_k"])

	results, err := t.searcher.Search(ctx, kbID, query.UserMessage, topK)
	if err != nil {
		return nil, toolkit.NewExecutionError(KnowledgeToolName, "knowledge base search failed", err)
	}

	if len(results) == 0 {
		return &toolkit.Output{Text: "No relevant knowledge base passages were found."}, nil
	}

	var b strings.Builder
	sources := make([]toolkit.Source, 0, len(results))
	seen := make(map[string]bool, len(results))

	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Content)

		if !seen[r.DocID] {
			seen[r.DocID] = true
			sources = append(sources, toolkit.Source{Kind: "document", Ref: r.DocID, Title: r.Path})
		}
	}

	return &toolkit.Output{Text: b.String(), Sources: sources}, nil
}
