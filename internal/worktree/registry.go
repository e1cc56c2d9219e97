// Package worktree detects git worktrees that hold ticket branches and
// resolves ticket codes to the checkout that owns the authoritative file.
//
// Detection failures are soft by policy: a missing git binary, a non-zero
// exit, a timeout, or disabled worktree support all yield an empty mapping
// and a warning log, never an error to the caller.
package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/git"
	"github.com/markdown-ticket/mdt/internal/models"
)

// DetectTimeout bounds a single `git worktree list` invocation. On expiry
// the detection is treated exactly like a git failure.
const DetectTimeout = 3 * time.Second

// Entry maps one ticket code to the worktree that carries its branch.
type Entry struct {
	TicketCode   string
	Path         string
	Branch       string
	DiscoveredAt time.Time
}

// Mapping is the ticket-code to worktree mapping for one project.
type Mapping map[string]Entry

// Registry caches per-project worktree mappings with TTL-based expiry.
// One Registry instance is shared by every consumer (REST, MCP, watcher);
// constructing more than one breaks cache coherence.
type Registry struct {
	git    git.Client
	logger *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectCache
}

type projectCache struct {
	// detectMu serializes git detection for the project so concurrent
	// cache misses run a single invocation.
	detectMu sync.Mutex

	mu         sync.RWMutex
	mapping    Mapping
	discovered time.Time
}

// NewRegistry creates a worktree registry on top of a git client.
func NewRegistry(gc git.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		git:      gc,
		logger:   logger,
		projects: make(map[string]*projectCache),
	}
}

// Detect returns the ticket-code to worktree mapping for the project.
// A cached mapping younger than the project's TTL is returned as-is.
// The returned mapping is never nil and must not be mutated by callers.
func (r *Registry) Detect(ctx context.Context, projectRoot string, cfg *config.ProjectConfig) Mapping {
	if cfg == nil || !cfg.WorktreeEnabled {
		return Mapping{}
	}

	pc := r.cacheFor(projectRoot)

	pc.mu.RLock()
	mapping, discovered := pc.mapping, pc.discovered
	pc.mu.RUnlock()
	if mapping != nil && time.Since(discovered) < cfg.CacheTTL {
		return mapping
	}

	pc.detectMu.Lock()
	defer pc.detectMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	pc.mu.RLock()
	mapping, discovered = pc.mapping, pc.discovered
	pc.mu.RUnlock()
	if mapping != nil && time.Since(discovered) < cfg.CacheTTL {
		return mapping
	}

	fresh := r.detect(ctx, projectRoot, cfg)

	// The mapping is swapped wholesale so readers never observe a
	// partially built state.
	pc.mu.Lock()
	pc.mapping = fresh
	pc.discovered = time.Now()
	pc.mu.Unlock()

	return fresh
}

// Invalidate drops the cached mapping for a project. The next Detect call
// re-runs git detection regardless of TTL.
func (r *Registry) Invalidate(projectRoot string) {
	pc := r.cacheFor(projectRoot)
	pc.mu.Lock()
	pc.mapping = nil
	pc.discovered = time.Time{}
	pc.mu.Unlock()
}

// WorktreePaths returns the distinct worktree paths currently mapped for a
// project, using the same TTL cache as Detect. The watcher uses this to
// reconcile its per-worktree watch set.
func (r *Registry) WorktreePaths(ctx context.Context, projectRoot string, cfg *config.ProjectConfig) []string {
	mapping := r.Detect(ctx, projectRoot, cfg)
	seen := make(map[string]bool, len(mapping))
	var paths []string
	for _, entry := range mapping {
		if !seen[entry.Path] {
			seen[entry.Path] = true
			paths = append(paths, entry.Path)
		}
	}
	return paths
}

func (r *Registry) cacheFor(projectRoot string) *projectCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.projects[projectRoot]
	if !ok {
		pc = &projectCache{}
		r.projects[projectRoot] = pc
	}
	return pc
}

// detect runs git and builds a fresh mapping. All failures degrade to an
// empty mapping with a warning.
func (r *Registry) detect(ctx context.Context, projectRoot string, cfg *config.ProjectConfig) Mapping {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	worktrees, err := r.git.WorktreeList(ctx, projectRoot)
	if err != nil {
		r.logger.Warn("worktree detection failed, falling back to main project paths",
			"project", projectRoot, "error", err)
		return Mapping{}
	}

	pattern := codePattern(cfg.Code)
	now := time.Now()
	mapping := make(Mapping, len(worktrees))

	for _, wt := range worktrees {
		if wt.Path == projectRoot {
			continue // main checkout is not a worktree entry
		}
		code, ok := extractCode(pattern, wt.Branch)
		if !ok {
			// Branches without a ticket code are expected (main, ad-hoc
			// feature branches) and are skipped silently.
			continue
		}
		if existing, dup := mapping[code]; dup {
			r.logger.Warn("duplicate worktree for ticket code, keeping first listed",
				"code", code, "kept", existing.Path, "ignored", wt.Path)
			continue
		}
		mapping[code] = Entry{
			TicketCode:   code,
			Path:         wt.Path,
			Branch:       wt.Branch,
			DiscoveredAt: now,
		}
	}

	return mapping
}

// codePattern builds the project-code-aware ticket pattern, e.g. MDT-\d+.
func codePattern(projectCode string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(projectCode) + `-(\d+)\b`)
}

// extractCode pulls a normalized ticket code out of a branch name.
func extractCode(pattern *regexp.Regexp, branch string) (string, bool) {
	if branch == "" {
		return "", false
	}
	m := pattern.FindStringSubmatch(branch)
	if m == nil {
		return "", false
	}
	code, err := models.NormalizeCode(m[0])
	if err != nil {
		return "", false
	}
	return code, true
}

// String renders a mapping for debug logs.
func (m Mapping) String() string {
	if len(m) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{")
	first := true
	for code, e := range m {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s→%s", code, e.Path)
	}
	b.WriteString("}")
	return b.String()
}
