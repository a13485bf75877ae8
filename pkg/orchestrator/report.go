package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/ndaru/kirana/pkg/toolkit"
)

// previewLimit caps the per-tool output excerpt in the verbose trace.
const previewLimit = 200

const timeRounding = time.Millisecond

// MergeSources flattens the per-tool source lists into one list, deduplicated
// by kind+ref, preserving first-seen order across the report.
func MergeSources(report *ExecutionReport) []toolkit.Source {
	if report == nil {
		return nil
	}

	seen := make(map[string]bool)
	merged := []toolkit.Source{}

	for _, result := range report.Results {
		for _, src := range result.Sources {
			key := src.Kind + "\x00" + src.Ref
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, src)
		}
	}

	return merged
}

// BuildTrace renders the execution report as a human-readable trace: one
// section per tool instance with status, duration and a truncated output
// preview, followed by warnings for unresolved template labels and the
// deduplicated source list. Returned only in verbose mode.
func BuildTrace(report *ExecutionReport, unresolved []string, sources []toolkit.Source) string {
	if report == nil {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Execution trace (%d tools, %s total)\n", len(report.Results), report.TotalDuration.Round(timeRounding))

	for i, result := range report.Results {
		fmt.Fprintf(&b, "\n[%d] %s -> {%s}\n", i+1, result.ToolName, result.PlaceholderLabel)
		fmt.Fprintf(&b, "    status: %s", result.Status)
		if result.Status != StatusSkipped {
			fmt.Fprintf(&b, " (%s)", result.Duration().Round(timeRounding))
		}
		b.WriteString("\n")

		if result.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", result.Error)
		}
		if result.Status == StatusOK {
			fmt.Fprintf(&b, "    output: %s\n", preview(result.Text))
		}
	}

	if len(unresolved) > 0 {
		fmt.Fprintf(&b, "\nWarning: unresolved template labels: %s\n", strings.Join(unresolved, ", "))
	}

	if len(sources) > 0 {
		b.WriteString("\nSources:\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "  - [%s] %s", src.Kind, src.Ref)
			if src.Title != "" {
				fmt.Fprintf(&b, " (%s)", src.Title)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func preview(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) <= previewLimit {
		if text == "" {
			return "(empty)"
		}
		return text
	}
	return text[:previewLimit] + "..."
}
