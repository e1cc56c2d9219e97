// Package tickets implements whole-ticket and section-level operations on
// markdown CR files. It is the façade consumed by the REST and MCP layers:
// every operation resolves the authoritative file path exactly once through
// the worktree resolver, then performs exactly one read and, for mutations,
// one write. File content is never cached across calls since files may be
// modified externally between them.
package tickets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/markdown"
	"github.com/markdown-ticket/mdt/internal/models"
	"github.com/markdown-ticket/mdt/internal/worktree"
)

// Project is the resolved project context every operation runs against.
type Project struct {
	ID     string
	Root   string
	Config *config.ProjectConfig
}

// GetMode selects how much of a ticket Get returns.
type GetMode string

const (
	ModeFull       GetMode = "full"       // attributes plus markdown body
	ModeAttributes GetMode = "attributes" // parsed frontmatter only
	ModeMetadata   GetMode = "metadata"   // code, title and resolved path
)

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Status   models.Status
	Type     models.Type
	Priority models.Priority
}

// CreateData carries user-supplied fields for a new ticket.
type CreateData struct {
	Title          string
	Priority       models.Priority
	PhaseEpic      string
	Assignee       string
	RelatedTickets []string
	DependsOn      []string
	Blocks         []string
	Content        string // markdown body; empty means template skeleton
}

// StatusTransition reports an old→new status change for confirmation
// messages.
type StatusTransition struct {
	Code     string        `json:"code"`
	FilePath string        `json:"filePath"`
	Old      models.Status `json:"oldStatus"`
	New      models.Status `json:"newStatus"`
}

// Store orchestrates path resolution, section location and document
// mutation over raw file I/O.
type Store struct {
	resolver *worktree.Resolver
	registry *worktree.Registry
	logger   *slog.Logger
}

// NewStore creates the ticket store. The resolver and registry must be the
// process-wide shared instances.
func NewStore(resolver *worktree.Resolver, registry *worktree.Registry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{resolver: resolver, registry: registry, logger: logger}
}

// Get reads a single ticket in the requested mode.
func (s *Store) Get(ctx context.Context, p Project, code string, mode GetMode) (*models.Ticket, error) {
	code, res, err := s.resolve(ctx, p, code)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(res.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read ticket %s: %w", code, err)
	}

	if mode == ModeMetadata {
		t := &models.Ticket{Code: code}
		if doc, err := markdown.Split(string(raw)); err == nil {
			if fm, err := parseFrontmatter(doc, res.FilePath); err == nil {
				t = fm.ticket()
			}
		}
		annotate(t, res)
		t.Content = ""
		return t, nil
	}

	doc, err := markdown.Split(string(raw))
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", code, err)
	}
	fm, err := parseFrontmatter(doc, res.FilePath)
	if err != nil {
		return nil, err
	}

	t := fm.ticket()
	annotate(t, res)
	if mode == ModeFull {
		t.Content = strings.TrimSpace(doc.Body)
	}
	return t, nil
}

// List returns all tickets in the project's main tickets directory,
// filtered and sorted by code. Each ticket is annotated with worktree
// membership from the registry mapping; files that fail to parse are
// skipped with a warning so one bad file cannot hide the rest.
func (s *Store) List(ctx context.Context, p Project, f Filter) ([]*models.Ticket, error) {
	dir := p.Config.TicketsDir(p.Root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Ticket{}, nil
		}
		return nil, fmt.Errorf("list tickets in %s: %w", dir, err)
	}

	mapping := s.registry.Detect(ctx, p.Root, p.Config)

	var out []*models.Ticket
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable ticket file", "path", path, "error", err)
			continue
		}
		doc, err := markdown.Split(string(raw))
		if err != nil {
			s.logger.Warn("skipping ticket file without frontmatter", "path", path)
			continue
		}
		fm, err := parseFrontmatter(doc, path)
		if err != nil {
			s.logger.Warn("skipping ticket file with malformed frontmatter", "path", path, "error", err)
			continue
		}

		t := fm.ticket()
		t.FilePath = path
		if entry, ok := mapping[t.Code]; ok {
			t.InWorktree = true
			t.WorktreePath = entry.Path
		}
		if !f.matches(t) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f Filter) matches(t *models.Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	return true
}

// Create validates the type and data, allocates the next sequence number,
// and writes a new ticket file to the main tickets directory.
func (s *Store) Create(ctx context.Context, p Project, typ models.Type, data CreateData) (*models.Ticket, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: ticket type %q must be one of %s", ErrInvalidInput, typ, joinTypes())
	}
	if strings.TrimSpace(data.Title) == "" {
		return nil, fmt.Errorf("%w: ticket title is required", ErrInvalidInput)
	}
	priority := data.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q must be Low, Medium, High, or Critical", ErrInvalidInput, priority)
	}

	dir := p.Config.TicketsDir(p.Root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tickets directory: %w", err)
	}

	num, err := s.nextNumber(dir, p.Config)
	if err != nil {
		return nil, err
	}
	code := fmt.Sprintf("%s-%03d", p.Config.Code, num)

	now := nextTimestamp("")
	fm := &frontmatter{
		Code:           code,
		Title:          data.Title,
		Status:         string(models.StatusProposed),
		Type:           string(typ),
		Priority:       string(priority),
		PhaseEpic:      data.PhaseEpic,
		Assignee:       data.Assignee,
		RelatedTickets: normalizeList(data.RelatedTickets),
		DependsOn:      normalizeList(data.DependsOn),
		Blocks:         normalizeList(data.Blocks),
		DateCreated:    now,
		LastModified:   now,
	}

	body := data.Content
	if strings.TrimSpace(body) == "" {
		body = templateSkeleton(code, data.Title)
	}

	fmText, err := fm.render()
	if err != nil {
		return nil, err
	}
	doc := markdown.Document{Frontmatter: fmText, Body: "\n" + strings.TrimSpace(body) + "\n"}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", code, slug(data.Title)))
	if err := os.WriteFile(path, []byte(doc.Render()), 0o644); err != nil {
		return nil, fmt.Errorf("write ticket %s: %w", code, err)
	}

	t := fm.ticket()
	t.FilePath = path
	t.Content = strings.TrimSpace(body)
	return t, nil
}

// UpdateStatus validates and applies a status change, returning the
// transition for caller-facing confirmation.
func (s *Store) UpdateStatus(ctx context.Context, p Project, code string, newStatus models.Status) (*StatusTransition, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: status %q must be one of %s", ErrInvalidInput, newStatus, joinStatuses())
	}

	var transition *StatusTransition
	err := s.rewrite(ctx, p, code, func(fm *frontmatter, res worktree.Resolution) error {
		transition = &StatusTransition{
			Code:     fm.Code,
			FilePath: res.FilePath,
			Old:      models.Status(fm.Status),
			New:      newStatus,
		}
		fm.Status = string(newStatus)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

// UpdateAttrs merges the supplied attribute key/value pairs into the
// frontmatter and returns the updated ticket. Unknown keys are rejected.
func (s *Store) UpdateAttrs(ctx context.Context, p Project, code string, attrs map[string]any) (*models.Ticket, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: no attributes provided", ErrInvalidInput)
	}

	var (
		merged   *frontmatter
		resolved worktree.Resolution
	)
	err := s.rewrite(ctx, p, code, func(fm *frontmatter, res worktree.Resolution) error {
		if err := mergeAttrs(fm, attrs); err != nil {
			return err
		}
		merged, resolved = fm, res
		return nil
	})
	if err != nil {
		return nil, err
	}

	// rewrite bumps lastModified after the callback, so build the ticket
	// from the final frontmatter state.
	updated := merged.ticket()
	annotate(updated, resolved)
	return updated, nil
}

// Delete removes the ticket file at its resolved location.
func (s *Store) Delete(ctx context.Context, p Project, code string) error {
	code, res, err := s.resolve(ctx, p, code)
	if err != nil {
		return err
	}
	if err := os.Remove(res.FilePath); err != nil {
		return fmt.Errorf("delete ticket %s: %w", code, err)
	}
	return nil
}

// resolve normalizes the code and resolves it through the shared policy,
// surfacing not-found when no file exists at the authoritative path.
func (s *Store) resolve(ctx context.Context, p Project, code string) (string, worktree.Resolution, error) {
	normalized, err := models.NormalizeCode(code)
	if err != nil {
		return "", worktree.Resolution{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	res := s.resolver.Resolve(ctx, p.Root, p.Config, normalized)
	if !res.Exists {
		return "", worktree.Resolution{}, NotFoundError(normalized, p.Config.Name, res.FilePath)
	}
	return normalized, res, nil
}

// rewrite performs the single read-modify-write cycle shared by the
// frontmatter mutations: resolve once, read once, mutate, bump
// lastModified, write once.
func (s *Store) rewrite(ctx context.Context, p Project, code string, mutate func(*frontmatter, worktree.Resolution) error) error {
	code, res, err := s.resolve(ctx, p, code)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(res.FilePath)
	if err != nil {
		return fmt.Errorf("read ticket %s: %w", code, err)
	}
	doc, err := markdown.Split(string(raw))
	if err != nil {
		return fmt.Errorf("ticket %s: %w", code, err)
	}
	fm, err := parseFrontmatter(doc, res.FilePath)
	if err != nil {
		return err
	}

	if err := mutate(fm, res); err != nil {
		return err
	}
	fm.LastModified = nextTimestamp(fm.LastModified)

	fmText, err := fm.render()
	if err != nil {
		return err
	}
	doc.Frontmatter = fmText

	if err := os.WriteFile(res.FilePath, []byte(doc.Render()), 0o644); err != nil {
		return fmt.Errorf("write ticket %s: %w", code, err)
	}
	return nil
}

// mergeAttrs applies caller-supplied attributes onto the frontmatter,
// validating enums and key names.
func mergeAttrs(fm *frontmatter, attrs map[string]any) error {
	for key, value := range attrs {
		switch key {
		case "title":
			s, err := stringAttr(key, value)
			if err != nil {
				return err
			}
			fm.Title = s
		case "status":
			s, err := stringAttr(key, value)
			if err != nil {
				return err
			}
			if !models.Status(s).Valid() {
				return fmt.Errorf("%w: status %q must be one of %s", ErrInvalidInput, s, joinStatuses())
			}
			fm.Status = s
		case "type":
			s, err := stringAttr(key, value)
			if err != nil {
				return err
			}
			if !models.Type(s).Valid() {
				return fmt.Errorf("%w: ticket type %q must be one of %s", ErrInvalidInput, s, joinTypes())
			}
			fm.Type = s
		case "priority":
			s, err := stringAttr(key, value)
			if err != nil {
				return err
			}
			if !models.Priority(s).Valid() {
				return fmt.Errorf("%w: priority %q must be Low, Medium, High, or Critical", ErrInvalidInput, s)
			}
			fm.Priority = s
		case "phaseEpic":
			s, err := stringAttr(key, value)
			if err != nil {
				return err
			}
			fm.PhaseEpic = s
		case "assignee":
			s, err := stringAttr(key, value)
			if err != nil {
				return err
			}
			fm.Assignee = s
		case "relatedTickets":
			l, err := listAttr(key, value)
			if err != nil {
				return err
			}
			fm.RelatedTickets = l
		case "dependsOn":
			l, err := listAttr(key, value)
			if err != nil {
				return err
			}
			fm.DependsOn = l
		case "blocks":
			l, err := listAttr(key, value)
			if err != nil {
				return err
			}
			fm.Blocks = l
		default:
			return fmt.Errorf("%w: unknown attribute key %q", ErrInvalidInput, key)
		}
	}
	return nil
}

func stringAttr(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: attribute %q must be a string", ErrInvalidInput, key)
	}
	return s, nil
}

// listAttr accepts an array or a comma-separated string, mirroring the
// frontmatter parser's normalization.
func listAttr(key string, value any) (stringList, error) {
	switch v := value.(type) {
	case string:
		return normalizeList(strings.Split(v, ",")), nil
	case []string:
		return normalizeList(v), nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute %q must contain only strings", ErrInvalidInput, key)
			}
			items = append(items, s)
		}
		return normalizeList(items), nil
	}
	return nil, fmt.Errorf("%w: attribute %q must be an array or comma-separated string", ErrInvalidInput, key)
}

// nextNumber scans existing filenames for the highest ticket number.
func (s *Store) nextNumber(dir string, cfg *config.ProjectConfig) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scan tickets directory: %w", err)
	}
	max := cfg.StartNumber - 1
	prefix := cfg.Code + "-"
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".md") {
			continue
		}
		numPart := strings.TrimPrefix(name, prefix)
		end := 0
		for end < len(numPart) && numPart[end] >= '0' && numPart[end] <= '9' {
			end++
		}
		if end == 0 {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(numPart[:end], "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

func annotate(t *models.Ticket, res worktree.Resolution) {
	t.FilePath = res.FilePath
	t.InWorktree = res.InWorktree
	t.WorktreePath = res.WorktreePath
}

// slug converts a ticket title to a filename fragment.
func slug(title string) string {
	s := strings.ToLower(title)
	s = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		if r == ' ' {
			return '-'
		}
		return -1
	}, s)
	parts := strings.Split(s, "-")
	var clean []string
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}
	result := strings.Join(clean, "-")
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "untitled"
	}
	return result
}

func joinStatuses() string {
	out := make([]string, len(models.AllStatuses))
	for i, s := range models.AllStatuses {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

func joinTypes() string {
	out := make([]string, len(models.AllTypes))
	for i, t := range models.AllTypes {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}
