package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndaru/kirana/internal/store"
	"github.com/ndaru/kirana/pkg/knowledge"
	"github.com/ndaru/kirana/pkg/toolkit"
)

type fakeSearcher struct {
	results []knowledge.Result
	err     error
	lastKB  string
	lastTop int
}

func (f *fakeSearcher) Search(ctx context.Context, kbID, query string, topK int) ([]knowledge.Result, error) {
	f.lastKB = kbID
	f.lastTop = topK
	return f.results, f.err
}

type fakeRubrics struct {
	rubric *store.Rubric
	err    error
}

func (f *fakeRubrics) GetRubric(ctx context.Context, id string) (*store.Rubric, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rubric, nil
}

func TestKnowledgeTool_FormatsResults(t *testing.T) {
	searcher := &fakeSearcher{
		results: []knowledge.Result{
			{DocID: "d1", Path: "france.md", Content: "Paris is the capital of France.", Score: 0.9},
			{DocID: "d2", Path: "geo.md", Content: "France is in Europe.", Score: 0.7},
		},
	}

	tool := NewKnowledgeTool(searcher)
	out, err := tool.Execute(context.Background(), toolkit.QueryContext{UserMessage: "capital of France?"},
		map[string]interface{}{"kb_id": "geo", "top_k": 3})
	require.NoError(t, err)

	assert.Equal(t, "geo", searcher.lastKB)
	assert.Equal(t, 3, searcher.lastTop)
	assert.Contains(t, out.Text, "[1] Paris is the capital of France.")
	assert.Contains(t, out.Text, "[2] France is in Europe.")
	require.Len(t, out.Sources, 2)
	assert.Equal(t, "document", out.Sources[0].Kind)
	assert.Equal(t, "d1", out.Sources[0].Ref)
}

func TestKnowledgeTool_NoResultsIsNotFailure(t *testing.T) {
	tool := NewKnowledgeTool(&fakeSearcher{})

	out, err := tool.Execute(context.Background(), toolkit.QueryContext{UserMessage: "anything"},
		map[string]interface{}{"kb_id": "empty"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "No relevant knowledge base passages")
	assert.Empty(t, out.Sources)
}

func TestKnowledgeTool_SearchFailure(t *testing.T) {
	tool := NewKnowledgeTool(&fakeSearcher{err: errors.New("index offline")})

	_, err := tool.Execute(context.Background(), toolkit.QueryContext{}, map[string]interface{}{"kb_id": "geo"})
	require.Error(t, err)

	var execErr *toolkit.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, KnowledgeToolName, execErr.Tool)
}

func TestKnowledgeTool_DedupesSourcesByDocument(t *testing.T) {
	searcher := &fakeSearcher{
		results: []knowledge.Result{
			{DocID: "d1", Path: "a.md", Content: "chunk one"},
			{DocID: "d1", Path: "a.md", Content: "chunk two"},
		},
	}

	out, err := NewKnowledgeTool(searcher).Execute(context.Background(), toolkit.QueryContext{},
		map[string]interface{}{"kb_id": "kb"})
	require.NoError(t, err)
	assert.Len(t, out.Sources, 1)
}

func TestRubricTool_FormatsRubric(t *testing.T) {
	rubrics := &fakeRubrics{
		rubric: &store.Rubric{
			ID:    "r1",
			Title: "Essay Rubric",
			Criteria: []store.Criterion{
				{Name: "factual accuracy", Points: 4},
				{Name: "clarity", Description: "clear structure", Points: 3},
			},
		},
	}

	out, err := NewRubricTool(rubrics).Execute(context.Background(), toolkit.QueryContext{},
		map[string]interface{}{"rubric_id": "r1"})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "Rubric: Essay Rubric")
	assert.Contains(t, out.Text, "Criterion: factual accuracy (4 pts)")
	assert.Contains(t, out.Text, "clarity (3 pts) - clear structure")
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "rubric", out.Sources[0].Kind)
	assert.Equal(t, "r1", out.Sources[0].Ref)
}

func TestRubricTool_NotFound(t *testing.T) {
	tool := NewRubricTool(&fakeRubrics{err: store.ErrNotFound})

	_, err := tool.Execute(context.Background(), toolkit.QueryContext{},
		map[string]interface{}{"rubric_id": "missing"})

	var execErr *toolkit.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Reason, "rubric not found: missing")
}

func TestFileTool_ReadsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("file body"), 0644))

	out, err := NewFileTool(root).Execute(context.Background(), toolkit.QueryContext{},
		map[string]interface{}{"path": "notes.md"})
	require.NoError(t, err)

	assert.Equal(t, "file body", out.Text)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "file", out.Sources[0].Kind)
	assert.Equal(t, "notes.md", out.Sources[0].Ref)
}

func TestFileTool_NotFound(t *testing.T) {
	_, err := NewFileTool(t.TempDir()).Execute(context.Background(), toolkit.QueryContext{},
		map[string]interface{}{"path": "missing.md"})

	var execErr *toolkit.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Reason, "file not found")
}

func TestFileTool_RejectsEscapingPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "inside.md"), []byte("x"), 0644))

	// Clean confines the path inside the root, so the traversal reads a
	// root-relative file rather than escaping.
	out, err := NewFileTool(root).Execute(context.Background(), toolkit.QueryContext{},
		map[string]interface{}{"path": "../../inside.md"})
	require.NoError(t, err)
	assert.Equal(t, "x", out.Text)
}

func TestRegisterBuiltins(t *testing.T) {
	reg := toolkit.NewRegistry(zerolog.Nop())

	err := RegisterBuiltins(reg, Deps{
		Searcher:    &fakeSearcher{},
		Rubrics:     &fakeRubrics{},
		ContentRoot: t.TempDir(),
	})
	require.NoError(t, err)

	assert.True(t, reg.Exists(KnowledgeToolName))
	assert.True(t, reg.Exists(RubricToolName))
	assert.True(t, reg.Exists(FileToolName))
	assert.Equal(t, 3, reg.Count())
}

func TestRegisterBuiltins_PartialDeps(t *testing.T) {
	reg := toolkit.NewRegistry(zerolog.Nop())

	require.NoError(t, RegisterBuiltins(reg, Deps{Rubrics: &fakeRubrics{}}))
	assert.False(t, reg.Exists(KnowledgeToolName))
	assert.True(t, reg.Exists(RubricToolName))
}
