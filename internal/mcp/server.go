package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/markdown"
	"github.com/markdown-ticket/mdt/internal/models"
	"github.com/markdown-ticket/mdt/internal/store"
	"github.com/markdown-ticket/mdt/internal/tickets"
)

// Server wraps the mdt data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	tickets *tickets.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, ts *tickets.Store) *Server {
	return &Server{
		store:   s,
		tickets: ts,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("mdt", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listProjectsTool())
	srv.AddTool(s.listCRsTool())
	srv.AddTool(s.getCRTool())
	srv.AddTool(s.createCRTool())
	srv.AddTool(s.updateCRStatusTool())
	srv.AddTool(s.updateCRAttrsTool())
	srv.AddTool(s.manageCRSectionsTool())
	srv.AddTool(s.deleteCRTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// resolveProject looks up a registered project by id or code and loads
// its on-disk configuration.
func (s *Server) resolveProject(ctx context.Context, key string) (tickets.Project, error) {
	p, err := s.store.GetProject(ctx, key)
	if err != nil {
		p, err = s.store.GetProjectByCode(ctx, key)
		if err != nil {
			return tickets.Project{}, fmt.Errorf("project not found: %s", key)
		}
	}
	cfg, err := config.Load(p.Path)
	if err != nil {
		return tickets.Project{}, fmt.Errorf("load project config: %w", err)
	}
	return tickets.Project{ID: p.ID, Root: p.Path, Config: cfg}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// list_projects
func (s *Server) listProjectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_projects",
		mcp.WithDescription("List all registered projects. Returns a JSON array with id, name, code, and path."),
	)
	return tool, s.handleListProjects
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list projects: %v", err)), nil
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return jsonResult(projects)
}

// list_crs
func (s *Server) listCRsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_crs",
		mcp.WithDescription("List change requests for a project. Each entry includes attributes, the resolved file path, and whether the ticket currently lives in a git worktree."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("status", mcp.Description("Filter by status (e.g. Proposed, In Progress, Implemented)")),
		mcp.WithString("type", mcp.Description("Filter by type (e.g. Feature Enhancement, Bug Fix)")),
		mcp.WithString("priority", mcp.Description("Filter by priority (Low, Medium, High, Critical)")),
	)
	return tool, s.handleListCRs
}

func (s *Server) handleListCRs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filter := tickets.Filter{
		Status:   models.Status(request.GetString("status", "")),
		Type:     models.Type(request.GetString("type", "")),
		Priority: models.Priority(request.GetString("priority", "")),
	}
	list, err := s.tickets.List(ctx, p, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tickets: %v", err)), nil
	}
	return jsonResult(list)
}

// get_cr
func (s *Server) getCRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_cr",
		mcp.WithDescription("Get a single change request by code. The result always includes the resolved absolute file path (worktree-aware). Mode controls payload size: full (default) returns everything, attributes omits the markdown body, metadata returns code, title, status, and path only."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Ticket code, e.g. MDT-004")),
		mcp.WithString("mode", mcp.Description("full, attributes, or metadata (default full)")),
	)
	return tool, s.handleGetCR
}

func (s *Server) handleGetCR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mode := tickets.GetMode(request.GetString("mode", string(tickets.ModeFull)))
	switch mode {
	case tickets.ModeFull, tickets.ModeAttributes, tickets.ModeMetadata:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid mode %q: expected full, attributes, or metadata", mode)), nil
	}

	t, err := s.tickets.Get(ctx, p, code, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

// create_cr
func (s *Server) createCRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("create_cr",
		mcp.WithDescription("Create a new change request. Allocates the next ticket number, writes the markdown file with YAML frontmatter, and returns the created ticket including its file path."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Ticket type: Architecture, Feature Enhancement, Bug Fix, Technical Debt, Documentation, or Research")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Ticket title")),
		mcp.WithString("priority", mcp.Description("Low, Medium, High, or Critical (default Medium)")),
		mcp.WithString("phaseEpic", mcp.Description("Phase or epic label")),
		mcp.WithString("assignee", mcp.Description("Assignee name")),
		mcp.WithString("content", mcp.Description("Initial markdown body; a section skeleton is generated when omitted")),
	)
	return tool, s.handleCreateCR
}

func (s *Server) handleCreateCR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	typ, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: type"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t, err := s.tickets.Create(ctx, p, models.Type(typ), tickets.CreateData{
		Title:     title,
		Priority:  models.Priority(request.GetString("priority", "")),
		PhaseEpic: request.GetString("phaseEpic", ""),
		Assignee:  request.GetString("assignee", ""),
		Content:   request.GetString("content", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

// update_cr_status
func (s *Server) updateCRStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("update_cr_status",
		mcp.WithDescription("Update a change request's status. Returns the old and new status along with the resolved file path."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Ticket code")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: Proposed, Approved, In Progress, Implemented, Partially Implemented, On Hold, Rejected, Superseded, Deprecated, or Duplicate")),
	)
	return tool, s.handleUpdateCRStatus
}

func (s *Server) handleUpdateCRStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}
	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	transition, err := s.tickets.UpdateStatus(ctx, p, code, models.Status(status))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(transition)
}

// update_cr_attrs
func (s *Server) updateCRAttrsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("update_cr_attrs",
		mcp.WithDescription("Update change request frontmatter attributes. Accepts a JSON object of attribute keys (title, status, type, priority, phaseEpic, assignee, relatedTickets, dependsOn, blocks) to new values. Unknown keys are rejected."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Ticket code")),
		mcp.WithString("attrs", mcp.Required(), mcp.Description("JSON object of attribute updates, e.g. {\"priority\": \"High\", \"assignee\": \"alice\"}")),
	)
	return tool, s.handleUpdateCRAttrs
}

func (s *Server) handleUpdateCRAttrs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	attrsJSON, err := request.RequireString("attrs")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: attrs"), nil
	}

	var attrs map[string]any
	if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("attrs is not a valid JSON object: %v", err)), nil
	}

	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t, err := s.tickets.UpdateAttrs(ctx, p, code, attrs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t)
}

// manage_cr_sections
func (s *Server) manageCRSectionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("manage_cr_sections",
		mcp.WithDescription("Read or edit sections of a change request's markdown body. Operation 'list' enumerates headings, 'get' returns one section's content, and 'replace'/'append'/'prepend' edit a section ('update' is accepted as an alias of 'replace'). Section queries match heading text case-insensitively, ignore numbering prefixes, and accept hierarchical paths like 'Solution Analysis / Approach'."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Ticket code")),
		mcp.WithString("operation", mcp.Required(), mcp.Description("list, get, replace, append, prepend, or update")),
		mcp.WithString("section", mcp.Description("Section heading or hierarchical path (required for all operations except list)")),
		mcp.WithString("content", mcp.Description("New content (required for replace/append/prepend)")),
	)
	return tool, s.handleManageCRSections
}

func (s *Server) handleManageCRSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	operation, err := request.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: operation"), nil
	}

	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch operation {
	case "list":
		sections, err := s.tickets.ListSections(ctx, p, code)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(sections)

	case "get":
		section, err := request.RequireString("section")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: section"), nil
		}
		match, err := s.tickets.GetSection(ctx, p, code, section)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(match)

	default:
		op, err := markdown.ParseOperation(operation)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		section, err := request.RequireString("section")
		if err != nil {
			return mcp.NewToolResultError("missing required parameter: section"), nil
		}
		content := request.GetString("content", "")
		match, err := s.tickets.MutateSection(ctx, p, code, section, op, content)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(match)
	}
}

// delete_cr
func (s *Server) deleteCRTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("delete_cr",
		mcp.WithDescription("Delete a change request's markdown file. Resolves the file the same way get_cr does, so a ticket living in a worktree is deleted there."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id or code")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Ticket code")),
	)
	return tool, s.handleDeleteCR
}

func (s *Server) handleDeleteCR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectKey, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}
	p, err := s.resolveProject(ctx, projectKey)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.tickets.Delete(ctx, p, code); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	normalized, err := models.NormalizeCode(code)
	if err != nil {
		normalized = code
	}
	return jsonResult(map[string]string{"deleted": normalized})
}
