package markdown

import (
	"fmt"
	"strings"
)

// Operation is a section edit kind.
type Operation string

const (
	OpReplace Operation = "replace"
	OpAppend  Operation = "append"
	OpPrepend Operation = "prepend"
)

// ParseOperation validates an operation name. "update" is accepted as a
// legacy alias of "replace" and produces identical output.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace", "update":
		return OpReplace, nil
	case "append":
		return OpAppend, nil
	case "prepend":
		return OpPrepend, nil
	}
	return "", fmt.Errorf("invalid section operation %q: expected replace, append, prepend, or update", s)
}

// MutationResult reports a section edit outcome.
type MutationResult struct {
	Body string
	// RenamedHeading is set when the new content itself starts with a
	// heading line, which implicitly renames or restructures the section.
	// The edit is applied anyway; callers log a warning because silent
	// header changes break hierarchical addressing for later calls.
	RenamedHeading bool
}

// Apply performs the operation on the matched section of body and returns
// the updated body. The heading line is preserved; only the section's
// content span changes. Append and prepend join old and new content with
// exactly one blank line.
func Apply(body string, match SectionMatch, op Operation, newContent string) MutationResult {
	trimmedNew := strings.TrimSpace(strings.ReplaceAll(newContent, "\r\n", "\n"))

	var content string
	switch op {
	case OpAppend:
		content = joinBlocks(match.Content, trimmedNew)
	case OpPrepend:
		content = joinBlocks(trimmedNew, match.Content)
	default:
		content = trimmedNew
	}

	lines := strings.Split(body, "\n")

	var out []string
	out = append(out, lines[:match.StartLine+1]...)
	if content != "" {
		out = append(out, "")
		out = append(out, strings.Split(content, "\n")...)
	}
	if match.EndLine+1 < len(lines) {
		out = append(out, "")
		out = append(out, lines[match.EndLine+1:]...)
	} else {
		out = append(out, "")
	}

	return MutationResult{
		Body:           strings.Join(out, "\n"),
		RenamedHeading: headingPattern.MatchString(firstLine(trimmedNew)),
	}
}

func joinBlocks(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n\n" + b
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
