package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"

	"github.com/ndaru/kirana/pkg/toolkit"
)

// FileToolName is the registry key of the single-file context tool.
const FileToolName = "file"

// maxFileSize caps how much of a file is injected into the prompt.
const maxFileSize = 64 * 1024

// FileDefinition declares the file tool's schema.
func FileDefinition() toolkit.Definition {
	return toolkit.Definition{
		Name:            FileToolName,
		DisplayName:     "File Context",
		Description:     "Injects the content of one configured file into the prompt",
		PlaceholderKind: "file",
		ConfigFields: []toolkit.ConfigField{
			{Name: "path", Type: "string", Description: "File path relative to the content root", Required: true},
		},
	}
}

// FileTool reads one file under a fixed content root.
type FileTool struct {
	root string
}

// NewFileTool creates the file tool rooted at root. Paths escaping the root
// are rejected.
func NewFileTool(root string) *FileTool {
	return &FileTool{root: root}
}

// Execute reads the configured file.
func (t *FileTool) Execute(ctx context.Context, query toolkit.QueryContext, config map[string]interface{}) (*toolkit.Output, error) {
	relPath := cast.ToString(config["path"])

	fullPath := filepath.Join(t.root, filepath.Clean("/"+relPath))
	if !strings.HasPrefix(fullPath, filepath.Clean(t.root)+string(os.PathSeparator)) {
		return nil, toolkit.NewExecutionError(FileToolName, fmt.Sprintf("path escapes content root: %s", relPath), nil)
	}

	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, toolkit.NewExecutionError(FileToolName, fmt.Sprintf("file not found: %s", relPath), err)
	}
	if err != nil {
		return nil, toolkit.NewExecutionError(FileToolName, fmt.Sprintf("failed to read file: %s", relPath), err)
	}

	text := string(data)
	if len(text) > maxFileSize {
		text = text[:maxFileSize] + "\n... [file truncated]"
	}

	return &toolkit.Output{
		Text: text,
		Sources: []toolkit.Source{
			{Kind: "file", Ref: relPath, Title: filepath.Base(relPath)},
		},
	}, nil
}
