package tickets

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-ticket/mdt/internal/markdown"
)

const sectionedTicket = `---
code: MDT-004
title: Section editing
status: In Progress
type: Feature Enhancement
priority: High
dateCreated: 2025-01-01T10:00:00.000Z
lastModified: 2025-01-01T10:00:00.000Z
---
# MDT-004: Section editing

## 1. Description

The description.

## 2. Solution Analysis

### Approach

First approach.

## 3. Implementation Notes

### Approach

Second approach.
`

func TestListSections(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	sections, err := s.ListSections(context.Background(), p, "MDT-004")
	require.NoError(t, err)

	var names []string
	for _, sec := range sections {
		names = append(names, sec.HeaderText)
	}
	assert.Equal(t, []string{
		"MDT-004: Section editing",
		"1. Description",
		"2. Solution Analysis",
		"Approach",
		"3. Implementation Notes",
		"Approach",
	}, names)
}

func TestGetSection(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	sec, err := s.GetSection(context.Background(), p, "MDT-004", "Description")
	require.NoError(t, err)
	assert.Equal(t, "The description.", sec.Content)
}

func TestGetSection_NotFound(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	_, err := s.GetSection(context.Background(), p, "MDT-004", "Nonexistent")
	assert.ErrorIs(t, err, ErrSectionNotFound)
}

func TestGetSection_Ambiguous(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	_, err := s.GetSection(context.Background(), p, "MDT-004", "Approach")
	require.ErrorIs(t, err, ErrAmbiguousSection)
	assert.Contains(t, err.Error(), "Solution Analysis / Approach",
		"the error lists hierarchical paths for disambiguation")
	assert.Contains(t, err.Error(), "Implementation Notes / Approach")
}

func TestGetSection_HierarchicalDisambiguation(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	sec, err := s.GetSection(context.Background(), p, "MDT-004", "Implementation Notes / Approach")
	require.NoError(t, err)
	assert.Equal(t, "Second approach.", sec.Content)
}

func TestMutateSection_Replace(t *testing.T) {
	p := testProject(t)
	path := seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	sec, err := s.MutateSection(context.Background(), p, "MDT-004", "Description", markdown.OpReplace, "New description.")
	require.NoError(t, err)
	assert.Equal(t, "New description.", sec.Content)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "New description.")
	assert.NotContains(t, string(raw), "The description.")
	assert.Contains(t, string(raw), "First approach.", "other sections untouched")
}

func TestMutateSection_PreservesFrontmatterBytes(t *testing.T) {
	p := testProject(t)
	path := seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	_, err := s.MutateSection(context.Background(), p, "MDT-004", "Description", markdown.OpReplace, "x")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := markdown.Split(string(raw))
	require.NoError(t, err)

	// Every frontmatter line except lastModified is byte-identical.
	origDoc, err := markdown.Split(sectionedTicket)
	require.NoError(t, err)
	origLines := strings.Split(origDoc.Frontmatter, "\n")
	newLines := strings.Split(doc.Frontmatter, "\n")
	require.Equal(t, len(origLines), len(newLines))
	for i := range origLines {
		if strings.HasPrefix(origLines[i], "lastModified:") {
			assert.NotEqual(t, origLines[i], newLines[i], "lastModified is bumped")
			continue
		}
		assert.Equal(t, origLines[i], newLines[i])
	}
}

func TestMutateSection_UpdateAliasBehavesLikeReplace(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	op, err := markdown.ParseOperation("update")
	require.NoError(t, err)

	sec, err := s.MutateSection(context.Background(), p, "MDT-004", "Description", op, "Via alias.")
	require.NoError(t, err)
	assert.Equal(t, "Via alias.", sec.Content)
}

func TestMutateSection_AppendJoinsWithBlankLine(t *testing.T) {
	p := testProject(t)
	seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	sec, err := s.MutateSection(context.Background(), p, "MDT-004", "Description", markdown.OpAppend, "Appended.")
	require.NoError(t, err)
	assert.Equal(t, "The description.\n\nAppended.", sec.Content)
}

func TestMutateSection_Ambiguous(t *testing.T) {
	p := testProject(t)
	path := seedTicket(t, p, "MDT-004-editing.md", sectionedTicket)
	s := newTestStore(&stubGit{})

	_, err := s.MutateSection(context.Background(), p, "MDT-004", "Approach", markdown.OpReplace, "x")
	require.ErrorIs(t, err, ErrAmbiguousSection)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sectionedTicket, string(raw), "ambiguity leaves the file unchanged")
}

func TestMutateSection_NoFrontmatterIsHardFailure(t *testing.T) {
	p := testProject(t)
	path := seedTicket(t, p, "MDT-004-editing.md", "# MDT-004 without frontmatter\n\n## A\n\nx\n")
	s := newTestStore(&stubGit{})

	_, err := s.MutateSection(context.Background(), p, "MDT-004", "A", markdown.OpReplace, "y")
	require.ErrorIs(t, err, markdown.ErrNoFrontmatter)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# MDT-004 without frontmatter\n\n## A\n\nx\n", string(raw), "no partial write")
}
