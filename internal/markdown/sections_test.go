package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sectionedBody = `# MDT-004: Section editing

Intro paragraph.

## 1. Description

High-level description.

### 1.1 Background

Why it exists.

## 2. Solution Analysis

### Approach

Chosen approach.

## 3. Implementation Notes

` + "```" + `
## not a heading
` + "```" + `

Closing text.
`

func TestFindSections_All(t *testing.T) {
	sections := FindSections(sectionedBody, "")

	var paths []string
	for _, s := range sections {
		paths = append(paths, s.HierarchicalPath)
	}
	assert.Equal(t, []string{
		"MDT-004: Section editing",
		"MDT-004: Section editing / 1. Description",
		"MDT-004: Section editing / 1. Description / 1.1 Background",
		"MDT-004: Section editing / 2. Solution Analysis",
		"MDT-004: Section editing / 2. Solution Analysis / Approach",
		"MDT-004: Section editing / 3. Implementation Notes",
	}, paths)
}

func TestFindSections_FencedHeadingIgnored(t *testing.T) {
	matches := FindSections(sectionedBody, "not a heading")
	assert.Empty(t, matches)
}

func TestFindSections_ByBareName(t *testing.T) {
	matches := FindSections(sectionedBody, "Description")
	require.Len(t, matches, 1)
	assert.Equal(t, "1. Description", matches[0].HeaderText)
	assert.Equal(t, 2, matches[0].HeaderLevel)
}

func TestFindSections_OrdinalAndHashInsensitive(t *testing.T) {
	for _, q := range []string{"## 1. Description", "1. Description", "description", "DESCRIPTION"} {
		matches := FindSections(sectionedBody, q)
		assert.Len(t, matches, 1, "query %q", q)
	}
}

func TestFindSections_HierarchicalPath(t *testing.T) {
	matches := FindSections(sectionedBody, "Solution Analysis / Approach")
	require.Len(t, matches, 1)
	assert.Equal(t, "Approach", matches[0].HeaderText)
	assert.Equal(t, 3, matches[0].HeaderLevel)
}

func TestFindSections_NestedDuplicateNames(t *testing.T) {
	body := `## Alpha

### Details

a details

## Beta

### Details

b details
`
	matches := FindSections(body, "Details")
	assert.Len(t, matches, 2, "bare name is ambiguous")

	matches = FindSections(body, "Beta / Details")
	require.Len(t, matches, 1)
	assert.Equal(t, "b details", matches[0].Content)
}

func TestFindSections_ContentOwnsSubsections(t *testing.T) {
	matches := FindSections(sectionedBody, "Solution Analysis")
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Content, "### Approach")
	assert.Contains(t, matches[0].Content, "Chosen approach.")
	assert.NotContains(t, matches[0].Content, "Implementation Notes")
}

func TestFindSections_ContentTrimmed(t *testing.T) {
	matches := FindSections(sectionedBody, "1.1 Background")
	require.Len(t, matches, 1)
	assert.Equal(t, "Why it exists.", matches[0].Content)
}

func TestFindSections_NoMatch(t *testing.T) {
	assert.Empty(t, FindSections(sectionedBody, "Nonexistent"))
}

func TestFindSections_EmptyBody(t *testing.T) {
	assert.Empty(t, FindSections("", ""))
}

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"## 1. Description", "description"},
		{"2.3 Sub Item", "sub item"},
		{"  PLAIN  ", "plain"},
		{"4 Steps to Success", "steps to success"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeHeading(tt.in), "input %q", tt.in)
	}
}
