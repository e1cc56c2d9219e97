// Package git shells out to the git CLI with argument-array invocations.
// Arguments are never concatenated into a shell string.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// WorktreeInfo holds parsed worktree metadata from `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string // short branch name, empty when detached
	HEAD   string
}

// Client defines the interface for git operations on arbitrary repos.
// All methods take a repo path since mdt operates on multiple projects.
type Client interface {
	RepoRoot(ctx context.Context, path string) (string, error)
	CurrentBranch(ctx context.Context, path string) (string, error)
	WorktreeList(ctx context.Context, path string) ([]WorktreeInfo, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(ctx context.Context, path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) CurrentBranch(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) WorktreeList(ctx context.Context, path string) ([]WorktreeInfo, error) {
	out, err := gitCmd(ctx, path, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreePorcelain(out), nil
}

// ParseWorktreePorcelain parses `git worktree list --porcelain` output.
// Records are separated by blank lines; unknown attribute lines are skipped.
func ParseWorktreePorcelain(out string) []WorktreeInfo {
	var (
		worktrees []WorktreeInfo
		current   WorktreeInfo
		open      bool
	)

	flush := func() {
		if open && current.Path != "" {
			worktrees = append(worktrees, current)
		}
		current = WorktreeInfo{}
		open = false
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
			open = true
		case strings.HasPrefix(line, "HEAD "):
			current.HEAD = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		}
	}
	flush()

	return worktrees
}
