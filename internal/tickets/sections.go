package tickets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/markdown-ticket/mdt/internal/markdown"
)

// ListSections returns every heading of a ticket in document order.
func (s *Store) ListSections(ctx context.Context, p Project, code string) ([]markdown.SectionMatch, error) {
	_, doc, err := s.readDocument(ctx, p, code)
	if err != nil {
		return nil, err
	}
	return markdown.FindSections(doc.Body, ""), nil
}

// GetSection resolves a section query to exactly one section. Zero matches
// and multiple matches are distinct caller-visible errors; an ambiguous
// query is never resolved by guessing since that would target the wrong
// section silently.
func (s *Store) GetSection(ctx context.Context, p Project, code, section string) (*markdown.SectionMatch, error) {
	code, doc, err := s.readDocument(ctx, p, code)
	if err != nil {
		return nil, err
	}
	return locateOne(doc.Body, code, section)
}

// MutateSection applies a section operation and rewrites the ticket file.
// Only the section's content span and the frontmatter lastModified field
// change; the rest of the file is preserved byte-for-byte.
func (s *Store) MutateSection(ctx context.Context, p Project, code, section string, op markdown.Operation, content string) (*markdown.SectionMatch, error) {
	code, res, err := s.resolve(ctx, p, code)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(res.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read ticket %s: %w", code, err)
	}
	doc, err := markdown.Split(string(raw))
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", code, err)
	}

	match, err := locateOne(doc.Body, code, section)
	if err != nil {
		return nil, err
	}

	result := markdown.Apply(doc.Body, *match, op, content)
	if result.RenamedHeading {
		s.logger.Warn("section content starts with a heading, implicit rename applied",
			"code", code, "section", match.HierarchicalPath)
	}

	doc.Body = result.Body
	doc = doc.UpsertField("lastModified", nextTimestamp(currentField(doc, "lastModified")))

	if err := os.WriteFile(res.FilePath, []byte(doc.Render()), 0o644); err != nil {
		return nil, fmt.Errorf("write ticket %s: %w", code, err)
	}

	updated := markdown.FindSections(doc.Body, section)
	if len(updated) == 1 {
		return &updated[0], nil
	}
	return match, nil
}

// readDocument is the shared resolve-once read-once prefix of the section
// read operations.
func (s *Store) readDocument(ctx context.Context, p Project, code string) (string, markdown.Document, error) {
	code, res, err := s.resolve(ctx, p, code)
	if err != nil {
		return "", markdown.Document{}, err
	}
	raw, err := os.ReadFile(res.FilePath)
	if err != nil {
		return "", markdown.Document{}, fmt.Errorf("read ticket %s: %w", code, err)
	}
	doc, err := markdown.Split(string(raw))
	if err != nil {
		return "", markdown.Document{}, fmt.Errorf("ticket %s: %w", code, err)
	}
	return code, doc, nil
}

func locateOne(body, code, section string) (*markdown.SectionMatch, error) {
	matches := markdown.FindSections(body, section)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q in ticket %s", ErrSectionNotFound, section, code)
	case 1:
		return &matches[0], nil
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.HierarchicalPath
	}
	return nil, fmt.Errorf("%w: %q matches %d sections in %s; disambiguate with a hierarchical path: %s",
		ErrAmbiguousSection, section, len(matches), code, strings.Join(paths, "; "))
}

// currentField reads a top-level scalar frontmatter value without a full
// YAML round-trip.
func currentField(doc markdown.Document, key string) string {
	for _, line := range strings.Split(doc.Frontmatter, "\n") {
		if strings.HasPrefix(line, key+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, key+":"))
		}
	}
	return ""
}
