// Package markdown implements section-addressed editing of CR documents:
// frontmatter splitting, heading location, and span mutation.
package markdown

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoFrontmatter is returned when a document lacks a well-formed
// ---\n...\n--- frontmatter block. Mutation requires the block as a hard
// precondition; without it the markdown body cannot be safely located.
var ErrNoFrontmatter = errors.New("document has no YAML frontmatter block")

const delimiter = "---"

// Document is a CR file split into its raw YAML frontmatter and markdown body.
type Document struct {
	Frontmatter string // raw YAML between the delimiters, without them
	Body        string // everything after the closing delimiter line
}

// Split separates a raw document into frontmatter and body. The document
// must start with a delimiter line and contain a closing one.
func Split(raw string) (Document, error) {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return Document{}, ErrNoFrontmatter
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			return Document{
				Frontmatter: strings.Join(lines[1:i], "\n"),
				Body:        strings.Join(lines[i+1:], "\n"),
			}, nil
		}
	}
	return Document{}, fmt.Errorf("%w: closing delimiter missing", ErrNoFrontmatter)
}

// Render reassembles the document with delimiters.
func (d Document) Render() string {
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.WriteString(d.Frontmatter)
	if !strings.HasSuffix(d.Frontmatter, "\n") && d.Frontmatter != "" {
		b.WriteString("\n")
	}
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.WriteString(d.Body)
	return b.String()
}

// UpsertField replaces the value of a top-level scalar frontmatter field,
// or appends the field when absent. The rest of the block is untouched
// byte-for-byte, which keeps section mutation from reshuffling YAML.
func (d Document) UpsertField(key, value string) Document {
	lines := strings.Split(d.Frontmatter, "\n")
	prefix := key + ":"
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			lines[i] = fmt.Sprintf("%s: %s", key, value)
			d.Frontmatter = strings.Join(lines, "\n")
			return d
		}
	}
	fm := d.Frontmatter
	if fm != "" && !strings.HasSuffix(fm, "\n") {
		fm += "\n"
	}
	d.Frontmatter = fm + fmt.Sprintf("%s: %s", key, value)
	return d
}
