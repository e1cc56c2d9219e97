package worktree

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markdown-ticket/mdt/internal/config"
)

// Resolution is the outcome of resolving a ticket code to a file path.
// FilePath always points at the single authoritative location; Exists
// reports whether a file is actually present there. Existence of the
// ticket itself is the caller's concern, not the resolver's.
type Resolution struct {
	FilePath     string
	Exists       bool
	InWorktree   bool
	WorktreePath string
}

// Resolver applies the single resolution policy shared by every consumer:
// a worktree wins if and only if it is verifiably valid (mapped branch and
// ticket file present inside it), otherwise the main project path is used.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver backed by the shared registry instance.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the authoritative path for a normalized ticket code.
// It never fails for worktree-related reasons; worktree lookup silently
// degrades to the main project path.
func (r *Resolver) Resolve(ctx context.Context, projectRoot string, cfg *config.ProjectConfig, code string) Resolution {
	if cfg.WorktreeEnabled {
		mapping := r.registry.Detect(ctx, projectRoot, cfg)
		if entry, ok := mapping[code]; ok {
			wtDir := filepath.Join(entry.Path, filepath.FromSlash(cfg.TicketsPath))
			if path, found := FindTicketFile(wtDir, code); found {
				return Resolution{
					FilePath:     path,
					Exists:       true,
					InWorktree:   true,
					WorktreePath: entry.Path,
				}
			}
			// Mapped worktree without the ticket file falls back to main.
		}
	}

	mainDir := cfg.TicketsDir(projectRoot)
	if path, found := FindTicketFile(mainDir, code); found {
		return Resolution{FilePath: path, Exists: true}
	}

	// Candidate path for a ticket that does not exist yet.
	return Resolution{FilePath: filepath.Join(mainDir, code+".md")}
}

// FindTicketFile locates the markdown file for a ticket code inside dir,
// matching the {code}*.md naming convention. When several files match,
// the lexically first one is used.
func FindTicketFile(dir, code string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, code+"*.md"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	for _, m := range matches {
		// Guard against prefix collisions such as MDT-06 vs MDT-066:
		// after the code the name must end or continue with a separator.
		rest := strings.TrimPrefix(filepath.Base(m), code)
		if rest != ".md" && !strings.HasPrefix(rest, "-") && !strings.HasPrefix(rest, ".") {
			continue
		}
		if info, err := os.Stat(m); err == nil && !info.IsDir() {
			return m, true
		}
	}
	return "", false
}
