package store

import (
	"context"

	"github.com/markdown-ticket/mdt/internal/models"
)

// Store defines the project registry persistence interface. Only project
// registrations live here; ticket data stays in markdown files on disk.
type Store interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetProjectByCode(ctx context.Context, code string) (*models.Project, error)
	GetProjectByPath(ctx context.Context, path string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}
