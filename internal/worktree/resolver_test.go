package worktree

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-ticket/mdt/internal/git"
)

func writeTicket(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("---\ncode: X\n---\nbody\n"), 0o644))
	return path
}

func TestResolve_WorktreeWins(t *testing.T) {
	root := t.TempDir()
	wt := t.TempDir()

	writeTicket(t, filepath.Join(root, "docs", "CRs"), "MDT-004-feature.md")
	wtPath := writeTicket(t, filepath.Join(wt, "docs", "CRs"), "MDT-004-feature.md")

	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: wt, Branch: "feature/MDT-004-x"},
	}}
	r := NewResolver(newTestRegistry(fg))

	res := r.Resolve(context.Background(), root, testConfig(), "MDT-004")
	assert.Equal(t, wtPath, res.FilePath)
	assert.True(t, res.Exists)
	assert.True(t, res.InWorktree)
	assert.Equal(t, wt, res.WorktreePath)
}

func TestResolve_MappedWorktreeWithoutFileFallsBackToMain(t *testing.T) {
	root := t.TempDir()
	wt := t.TempDir() // worktree exists but has no ticket file

	mainPath := writeTicket(t, filepath.Join(root, "docs", "CRs"), "MDT-004-feature.md")

	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: wt, Branch: "feature/MDT-004-x"},
	}}
	r := NewResolver(newTestRegistry(fg))

	res := r.Resolve(context.Background(), root, testConfig(), "MDT-004")
	assert.Equal(t, mainPath, res.FilePath)
	assert.True(t, res.Exists)
	assert.False(t, res.InWorktree)
}

func TestResolve_NoMappingUsesMain(t *testing.T) {
	root := t.TempDir()
	mainPath := writeTicket(t, filepath.Join(root, "docs", "CRs"), "MDT-004-feature.md")

	r := NewResolver(newTestRegistry(&fakeGit{}))

	res := r.Resolve(context.Background(), root, testConfig(), "MDT-004")
	assert.Equal(t, mainPath, res.FilePath)
	assert.True(t, res.Exists)
	assert.False(t, res.InWorktree)
}

func TestResolve_MissingTicketReturnsCandidatePath(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(newTestRegistry(&fakeGit{}))

	res := r.Resolve(context.Background(), root, testConfig(), "MDT-099")
	assert.False(t, res.Exists)
	assert.Equal(t, filepath.Join(root, "docs", "CRs", "MDT-099.md"), res.FilePath)
}

func TestResolve_WorktreeDisabledIgnoresMapping(t *testing.T) {
	root := t.TempDir()
	wt := t.TempDir()

	mainPath := writeTicket(t, filepath.Join(root, "docs", "CRs"), "MDT-004.md")
	writeTicket(t, filepath.Join(wt, "docs", "CRs"), "MDT-004.md")

	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: wt, Branch: "MDT-004"},
	}}
	cfg := testConfig()
	cfg.WorktreeEnabled = false
	r := NewResolver(newTestRegistry(fg))

	res := r.Resolve(context.Background(), root, cfg, "MDT-004")
	assert.Equal(t, mainPath, res.FilePath)
	assert.False(t, res.InWorktree)
}

func TestFindTicketFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crs")

	t.Run("plain code name", func(t *testing.T) {
		path := writeTicket(t, dir, "MDT-001.md")
		got, found := FindTicketFile(dir, "MDT-001")
		require.True(t, found)
		assert.Equal(t, path, got)
	})

	t.Run("code with slug suffix", func(t *testing.T) {
		path := writeTicket(t, dir, "MDT-002-some-title.md")
		got, found := FindTicketFile(dir, "MDT-002")
		require.True(t, found)
		assert.Equal(t, path, got)
	})

	t.Run("prefix collision is not a match", func(t *testing.T) {
		writeTicket(t, dir, "MDT-066-real.md")
		_, found := FindTicketFile(dir, "MDT-06")
		assert.False(t, found, "MDT-06 must not match MDT-066-real.md")
	})

	t.Run("missing", func(t *testing.T) {
		_, found := FindTicketFile(dir, "MDT-999")
		assert.False(t, found)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, found := FindTicketFile(filepath.Join(dir, "nope"), "MDT-001")
		assert.False(t, found)
	})
}
