package tickets

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/markdown-ticket/mdt/internal/markdown"
	"github.com/markdown-ticket/mdt/internal/models"
)

// timestampLayout is the ISO-8601 form written to frontmatter. Millisecond
// precision keeps lastModified strictly increasing across rapid edits.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// stringList unmarshals either a YAML sequence or a comma-separated scalar
// into a string slice, so both "MDT-001, MDT-002" and [MDT-001, MDT-002]
// are accepted.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = normalizeList(items)
		return nil
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = normalizeList(strings.Split(s, ","))
		return nil
	}
	return fmt.Errorf("unsupported YAML node for string list (line %d)", node.Line)
}

func normalizeList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// frontmatter is the typed YAML block of a ticket file. Field order here
// is the serialization order.
type frontmatter struct {
	Code           string     `yaml:"code"`
	Title          string     `yaml:"title"`
	Status         string     `yaml:"status"`
	Type           string     `yaml:"type"`
	Priority       string     `yaml:"priority"`
	PhaseEpic      string     `yaml:"phaseEpic,omitempty"`
	Assignee       string     `yaml:"assignee,omitempty"`
	RelatedTickets stringList `yaml:"relatedTickets,omitempty,flow"`
	DependsOn      stringList `yaml:"dependsOn,omitempty,flow"`
	Blocks         stringList `yaml:"blocks,omitempty,flow"`
	DateCreated    string     `yaml:"dateCreated"`
	LastModified   string     `yaml:"lastModified"`
}

// parseFrontmatter decodes the raw YAML block of a document. A YAML error
// is a caller-visible file-format error.
func parseFrontmatter(doc markdown.Document, path string) (*frontmatter, error) {
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(doc.Frontmatter), &fm); err != nil {
		return nil, fmt.Errorf("malformed YAML frontmatter in %s: %w", path, err)
	}
	return &fm, nil
}

func (fm *frontmatter) render() (string, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("serialize frontmatter: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// ticket converts the frontmatter into the transient Ticket projection.
func (fm *frontmatter) ticket() *models.Ticket {
	return &models.Ticket{
		Code:           fm.Code,
		Title:          fm.Title,
		Status:         models.Status(fm.Status),
		Type:           models.Type(fm.Type),
		Priority:       models.Priority(fm.Priority),
		PhaseEpic:      fm.PhaseEpic,
		Assignee:       fm.Assignee,
		RelatedTickets: fm.RelatedTickets,
		DependsOn:      fm.DependsOn,
		Blocks:         fm.Blocks,
		DateCreated:    parseTimestamp(fm.DateCreated),
		LastModified:   parseTimestamp(fm.LastModified),
	}
}

// parseTimestamp tolerates the layouts seen in existing ticket files.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timestampLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// nextTimestamp returns now, nudged forward when needed so the rendered
// lastModified is strictly later than prev.
func nextTimestamp(prev string) string {
	now := time.Now().UTC()
	if prevT := parseTimestamp(prev); !prevT.IsZero() && !now.After(prevT) {
		now = prevT.Add(time.Millisecond)
	}
	return now.Format(timestampLayout)
}
