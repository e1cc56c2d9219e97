package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/llm"
	"github.com/markdown-ticket/mdt/internal/markdown"
	"github.com/markdown-ticket/mdt/internal/models"
	"github.com/markdown-ticket/mdt/internal/store"
	"github.com/markdown-ticket/mdt/internal/tickets"
	"github.com/markdown-ticket/mdt/internal/watcher"
	"github.com/markdown-ticket/mdt/internal/worktree"
)

// Server provides the REST API handlers.
type Server struct {
	store       store.Store
	tickets     *tickets.Store
	registry    *worktree.Registry
	broadcaster *watcher.Broadcaster
	llm         *llm.Client
}

// NewServer creates a new API server. The registry and broadcaster must be
// the process-wide shared instances; llmClient may be nil when no API key
// is configured.
func NewServer(s store.Store, ts *tickets.Store, registry *worktree.Registry, b *watcher.Broadcaster, llmClient *llm.Client) *Server {
	return &Server{
		store:       s,
		tickets:     ts,
		registry:    registry,
		broadcaster: b,
		llm:         llmClient,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("POST /api/v1/projects", s.createProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", s.getProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.deleteProject)

	mux.HandleFunc("GET /api/v1/projects/{id}/tickets", s.listTickets)
	mux.HandleFunc("POST /api/v1/projects/{id}/tickets", s.createTicket)
	mux.HandleFunc("GET /api/v1/projects/{id}/tickets/{code}", s.getTicket)
	mux.HandleFunc("PATCH /api/v1/projects/{id}/tickets/{code}", s.updateTicketAttrs)
	mux.HandleFunc("PATCH /api/v1/projects/{id}/tickets/{code}/status", s.updateTicketStatus)
	mux.HandleFunc("DELETE /api/v1/projects/{id}/tickets/{code}", s.deleteTicket)

	mux.HandleFunc("GET /api/v1/projects/{id}/tickets/{code}/sections", s.getSections)
	mux.HandleFunc("POST /api/v1/projects/{id}/tickets/{code}/sections", s.mutateSection)

	mux.HandleFunc("POST /api/v1/projects/{id}/tickets/{code}/summarize", s.summarizeTicket)

	mux.HandleFunc("POST /api/v1/projects/{id}/worktrees/invalidate", s.invalidateWorktrees)

	mux.HandleFunc("GET /api/v1/events", s.events)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTicketError maps business errors to HTTP statuses. Soft worktree
// failures never reach this point; they degrade inside the resolver.
func writeTicketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tickets.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tickets.ErrSectionNotFound),
		errors.Is(err, tickets.ErrAmbiguousSection),
		errors.Is(err, tickets.ErrInvalidInput),
		errors.Is(err, markdown.ErrNoFrontmatter):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// projectContext loads a registered project (by id or code) and its
// on-disk configuration into the ticket store's project context.
func (s *Server) projectContext(r *http.Request) (tickets.Project, error) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if p2, err2 := s.store.GetProjectByCode(r.Context(), id); err2 == nil {
			p = p2
		} else {
			return tickets.Project{}, err
		}
	}
	cfg, err := config.Load(p.Path)
	if err != nil {
		return tickets.Project{}, err
	}
	return tickets.Project{ID: p.ID, Root: p.Path, Config: cfg}, nil
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if p.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	// Fill name/code from the project's own config when omitted.
	if p.Name == "" || p.Code == "" {
		if cfg, err := config.Load(p.Path); err == nil {
			if p.Name == "" {
				p.Name = cfg.Name
			}
			if p.Code == "" {
				p.Code = cfg.Code
			}
		}
	}
	if err := s.store.CreateProject(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.broadcaster != nil {
		if cfg, err := config.Load(p.Path); err == nil {
			s.broadcaster.WatchProject(p.ID, cfg.TicketsDir(p.Path))
		}
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.broadcaster != nil {
		s.broadcaster.UnwatchProject(id)
	}
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tickets ---

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	filter := tickets.Filter{
		Status:   models.Status(r.URL.Query().Get("status")),
		Type:     models.Type(r.URL.Query().Get("type")),
		Priority: models.Priority(r.URL.Query().Get("priority")),
	}
	list, err := s.tickets.List(r.Context(), p, filter)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	mode := tickets.GetMode(r.URL.Query().Get("mode"))
	switch mode {
	case "":
		mode = tickets.ModeFull
	case tickets.ModeFull, tickets.ModeAttributes, tickets.ModeMetadata:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q: expected full, attributes, or metadata", mode))
		return
	}
	t, err := s.tickets.Get(r.Context(), p, r.PathValue("code"), mode)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateTicketRequest is the JSON body for POST .../tickets.
type CreateTicketRequest struct {
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Priority       string   `json:"priority"`
	PhaseEpic      string   `json:"phaseEpic"`
	Assignee       string   `json:"assignee"`
	RelatedTickets []string `json:"relatedTickets"`
	DependsOn      []string `json:"dependsOn"`
	Blocks         []string `json:"blocks"`
	Content        string   `json:"content"`
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	t, err := s.tickets.Create(r.Context(), p, models.Type(req.Type), tickets.CreateData{
		Title:          req.Title,
		Priority:       models.Priority(req.Priority),
		PhaseEpic:      req.PhaseEpic,
		Assignee:       req.Assignee,
		RelatedTickets: req.RelatedTickets,
		DependsOn:      req.DependsOn,
		Blocks:         req.Blocks,
		Content:        req.Content,
	})
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTicketStatus(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	transition, err := s.tickets.UpdateStatus(r.Context(), p, r.PathValue("code"), models.Status(req.Status))
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transition)
}

func (s *Server) updateTicketAttrs(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	t, err := s.tickets.UpdateAttrs(r.Context(), p, r.PathValue("code"), attrs)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTicket(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.tickets.Delete(r.Context(), p, r.PathValue("code")); err != nil {
		writeTicketError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sections ---

func (s *Server) getSections(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	code := r.PathValue("code")

	if section := r.URL.Query().Get("section"); section != "" {
		match, err := s.tickets.GetSection(r.Context(), p, code, section)
		if err != nil {
			writeTicketError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, match)
		return
	}

	sections, err := s.tickets.ListSections(r.Context(), p, code)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// MutateSectionRequest is the JSON body for POST .../sections.
// "update" is accepted as a legacy alias of "replace".
type MutateSectionRequest struct {
	Operation string `json:"operation"`
	Section   string `json:"section"`
	Content   string `json:"content"`
}

func (s *Server) mutateSection(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req MutateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	op, err := markdown.ParseOperation(req.Operation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Section == "" {
		writeError(w, http.StatusBadRequest, "section is required")
		return
	}
	match, err := s.tickets.MutateSection(r.Context(), p, r.PathValue("code"), req.Section, op, req.Content)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// --- Summarize ---

func (s *Server) summarizeTicket(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set MDT_ANTHROPIC_API_KEY)")
		return
	}
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	t, err := s.tickets.Get(r.Context(), p, r.PathValue("code"), tickets.ModeFull)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	summary, err := s.llm.SummarizeTicket(r.Context(), t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("summarization failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"code":    t.Code,
		"summary": summary,
	})
}

// --- Worktrees ---

func (s *Server) invalidateWorktrees(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectContext(r)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.registry.Invalidate(p.Root)
	w.WriteHeader(http.StatusNoContent)
}
