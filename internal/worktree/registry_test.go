package worktree

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/git"
)

// fakeGit implements git.Client with canned worktree listings and a call
// counter for cache assertions.
type fakeGit struct {
	mu        sync.Mutex
	worktrees []git.WorktreeInfo
	err       error
	calls     int
}

func (f *fakeGit) RepoRoot(_ context.Context, path string) (string, error) {
	return path, nil
}

func (f *fakeGit) CurrentBranch(_ context.Context, _ string) (string, error) {
	return "main", nil
}

func (f *fakeGit) WorktreeList(_ context.Context, _ string) ([]git.WorktreeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.worktrees, nil
}

func (f *fakeGit) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.ProjectConfig {
	return &config.ProjectConfig{
		Name:            "mdt",
		Code:            "MDT",
		TicketsPath:     "docs/CRs",
		WorktreeEnabled: true,
		CacheTTL:        30 * time.Second,
	}
}

func newTestRegistry(fg *fakeGit) *Registry {
	return NewRegistry(fg, slog.New(slog.DiscardHandler))
}

func TestDetect_MapsTicketBranches(t *testing.T) {
	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: "/repo", Branch: "main"},
		{Path: "/repo.wt/a", Branch: "feature/MDT-4-section-editing"},
		{Path: "/repo.wt/b", Branch: "bugfix/mdt-66"},
		{Path: "/repo.wt/c", Branch: "chore/cleanup"},
	}}
	r := newTestRegistry(fg)

	mapping := r.Detect(context.Background(), "/repo", testConfig())

	require.Len(t, mapping, 2)
	assert.Equal(t, "/repo.wt/a", mapping["MDT-004"].Path)
	assert.Equal(t, "/repo.wt/b", mapping["MDT-066"].Path, "codes are normalized case- and pad-insensitively")
}

func TestDetect_SkipsMainCheckout(t *testing.T) {
	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: "/repo", Branch: "feature/MDT-001-on-main"},
	}}
	r := newTestRegistry(fg)

	mapping := r.Detect(context.Background(), "/repo", testConfig())
	assert.Empty(t, mapping)
}

func TestDetect_DuplicateKeepsFirst(t *testing.T) {
	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: "/repo.wt/first", Branch: "feature/MDT-007-one"},
		{Path: "/repo.wt/second", Branch: "feature/MDT-7-two"},
	}}
	r := newTestRegistry(fg)

	mapping := r.Detect(context.Background(), "/repo", testConfig())
	require.Len(t, mapping, 1)
	assert.Equal(t, "/repo.wt/first", mapping["MDT-007"].Path)
}

func TestDetect_GitFailureYieldsEmptyMapping(t *testing.T) {
	fg := &fakeGit{err: errors.New("fatal: not a git repository")}
	r := newTestRegistry(fg)

	mapping := r.Detect(context.Background(), "/repo", testConfig())
	assert.NotNil(t, mapping)
	assert.Empty(t, mapping)
}

func TestDetect_DisabledSkipsGit(t *testing.T) {
	fg := &fakeGit{}
	r := newTestRegistry(fg)

	cfg := testConfig()
	cfg.WorktreeEnabled = false

	mapping := r.Detect(context.Background(), "/repo", cfg)
	assert.Empty(t, mapping)
	assert.Equal(t, 0, fg.callCount())
}

func TestDetect_CachesWithinTTL(t *testing.T) {
	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: "/repo.wt/a", Branch: "feature/MDT-001"},
	}}
	r := newTestRegistry(fg)
	cfg := testConfig()

	first := r.Detect(context.Background(), "/repo", cfg)
	second := r.Detect(context.Background(), "/repo", cfg)

	assert.Equal(t, 1, fg.callCount(), "second call within TTL must not hit git")
	assert.Equal(t, first, second)
}

func TestDetect_TTLExpiry(t *testing.T) {
	fg := &fakeGit{}
	r := newTestRegistry(fg)
	cfg := testConfig()
	cfg.CacheTTL = time.Millisecond

	r.Detect(context.Background(), "/repo", cfg)
	time.Sleep(5 * time.Millisecond)
	r.Detect(context.Background(), "/repo", cfg)

	assert.Equal(t, 2, fg.callCount())
}

func TestDetect_FailureResultIsCached(t *testing.T) {
	fg := &fakeGit{err: errors.New("boom")}
	r := newTestRegistry(fg)
	cfg := testConfig()

	r.Detect(context.Background(), "/repo", cfg)
	r.Detect(context.Background(), "/repo", cfg)

	assert.Equal(t, 1, fg.callCount(), "empty mapping from a failure still honors the TTL")
}

func TestInvalidate(t *testing.T) {
	fg := &fakeGit{}
	r := newTestRegistry(fg)
	cfg := testConfig()

	r.Detect(context.Background(), "/repo", cfg)
	r.Invalidate("/repo")
	r.Detect(context.Background(), "/repo", cfg)

	assert.Equal(t, 2, fg.callCount())
}

func TestDetect_ConcurrentMissesRunOneDetection(t *testing.T) {
	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: "/repo.wt/a", Branch: "MDT-001"},
	}}
	r := newTestRegistry(fg)
	cfg := testConfig()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Detect(context.Background(), "/repo", cfg)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fg.callCount())
}

func TestWorktreePaths(t *testing.T) {
	fg := &fakeGit{worktrees: []git.WorktreeInfo{
		{Path: "/repo.wt/a", Branch: "feature/MDT-001-and-MDT-002"},
		{Path: "/repo.wt/b", Branch: "feature/MDT-003"},
	}}
	r := newTestRegistry(fg)

	paths := r.WorktreePaths(context.Background(), "/repo", testConfig())
	assert.ElementsMatch(t, []string{"/repo.wt/a", "/repo.wt/b"}, paths)
}
