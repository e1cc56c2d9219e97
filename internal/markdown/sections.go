package markdown

import (
	"regexp"
	"strings"
)

// SectionMatch describes one heading located in a document body. Matches
// are produced fresh from the current text on every call and never cached:
// the document may be rewritten between calls by other operations.
type SectionMatch struct {
	HeaderText  string // heading text without the # markers
	HeaderLevel int    // 1-6
	StartLine   int    // body line index of the heading
	EndLine     int    // last body line belonging to the section (inclusive)
	Content     string // section content, trimmed of surrounding blank lines
	// HierarchicalPath joins ancestor heading texts with " / ",
	// e.g. "1. Description / 1.2 Background".
	HierarchicalPath string
}

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*\S)\s*$`)
	ordinalPrefix  = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+`)
)

// FindSections locates headings in body matching query and returns them in
// document order.
//
// Matching accepts the exact heading ("## 1. Description"), the heading text
// ("1. Description"), or the bare name ("Description"): leading # markers
// and ordinal prefixes are stripped and comparison is case-insensitive. An
// empty query returns every heading. A query containing " / " is treated as
// a hierarchical path and must match the trailing ancestors of the heading,
// which disambiguates same-named headings at different nesting depths.
func FindSections(body, query string) []SectionMatch {
	sections := scan(body)

	if strings.TrimSpace(query) == "" {
		return sections
	}

	var wantPath []string
	for _, part := range strings.Split(query, "/") {
		wantPath = append(wantPath, normalizeHeading(part))
	}

	var matches []SectionMatch
	for _, s := range sections {
		if pathMatches(s, wantPath) {
			matches = append(matches, s)
		}
	}
	return matches
}

// scan walks the body and builds a SectionMatch for every ATX heading.
func scan(body string) []SectionMatch {
	lines := strings.Split(body, "\n")

	type heading struct {
		line  int
		level int
		text  string
	}
	var headings []heading
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			headings = append(headings, heading{line: i, level: len(m[1]), text: m[2]})
		}
	}

	sections := make([]SectionMatch, 0, len(headings))
	var stack []heading // ancestor chain
	for idx, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}

		var pathParts []string
		for _, a := range stack {
			pathParts = append(pathParts, a.text)
		}
		pathParts = append(pathParts, h.text)

		// Content runs to the line before the next heading with the same
		// or a shallower level, so a section owns its subsections.
		end := len(lines) - 1
		for _, later := range headings[idx+1:] {
			if later.level <= h.level {
				end = later.line - 1
				break
			}
		}

		content := ""
		if h.line+1 <= end {
			content = strings.TrimSpace(strings.Join(lines[h.line+1:end+1], "\n"))
		}

		sections = append(sections, SectionMatch{
			HeaderText:       h.text,
			HeaderLevel:      h.level,
			StartLine:        h.line,
			EndLine:          end,
			Content:          content,
			HierarchicalPath: strings.Join(pathParts, " / "),
		})
		stack = append(stack, h)
	}
	return sections
}

// pathMatches reports whether the section's hierarchical path ends with the
// wanted path components.
func pathMatches(s SectionMatch, want []string) bool {
	have := strings.Split(s.HierarchicalPath, " / ")
	if len(want) > len(have) {
		return false
	}
	offset := len(have) - len(want)
	for i, w := range want {
		if normalizeHeading(have[offset+i]) != w {
			return false
		}
	}
	return true
}

// normalizeHeading strips # markers, ordinal prefixes ("1. ", "2.3 ") and
// case for comparison purposes.
func normalizeHeading(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)
	s = ordinalPrefix.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}
