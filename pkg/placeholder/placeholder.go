// Package placeholder implements prompt template substitution.
//
// A template carries tokens of the form {label}. Each configured tool
// instance fills exactly one label with its output text; labels without a
// configured instance are left untouched so partially configured templates
// stay editable.
package placeholder

import (
	"regexp"
	"strings"
)

// FallbackText is substituted for a tool that failed or timed out. Using a
// fixed marker keeps prompt length and structure predictable under partial
// failure.
const FallbackText = "[tool output unavailable]"

var labelPattern = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// Substitute replaces every {label} occurrence whose label is present in
// values. Tokens without a matching value are left as-is. The operation is a
// single pass and idempotent once no configured labels remain in the result.
func Substitute(template string, values map[string]string) string {
	if len(values) == 0 {
		return template
	}

	return labelPattern.ReplaceAllStringFunc(template, func(token string) string {
		label := token[1 : len(token)-1]
		if text, ok := values[label]; ok {
			return text
		}
		return token
	})
}

// Labels returns the unique labels found in template, in first-seen order.
func Labels(template string) []string {
	matches := labelPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	labels := make([]string, 0, len(matches))

	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			labels = append(labels, m[1])
		}
	}

	return labels
}

// Unresolved returns the labels present in template that have no entry in
// values. Used for the verbose-mode warning about partially configured
// templates.
func Unresolved(template string, values map[string]string) []string {
	unresolved := []string{}
	for _, label := range Labels(template) {
		if _, ok := values[label]; !ok {
			unresolved = append(unresolved, label)
		}
	}
	return unresolved
}

// Token renders a label back into template form, e.g. "1_context" becomes
// "{1_context}".
func Token(label string) string {
	return "{" + strings.TrimSpace(label) + "}"
}
