// Package config loads per-project configuration from .mdt-config.toml
// at the project root. A missing file or missing keys fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the per-project config file looked up at the project root.
const ConfigFileName = ".mdt-config.toml"

const (
	// DefaultTicketsPath is the tickets subdirectory when the config is silent.
	DefaultTicketsPath = "docs/CRs"

	// DefaultCacheTTL is the worktree mapping cache validity window.
	DefaultCacheTTL = 30 * time.Second

	// DefaultStartNumber is the first ticket sequence number for a new project.
	DefaultStartNumber = 1
)

// ProjectSection holds the [project] table of .mdt-config.toml.
type ProjectSection struct {
	Name        string `toml:"name"`
	Code        string `toml:"code"`
	Path        string `toml:"path"` // tickets subdirectory, relative to project root
	StartNumber int    `toml:"startNumber"`
}

// WorktreeSection holds the [worktree] table of .mdt-config.toml.
type WorktreeSection struct {
	Enabled    *bool `toml:"enabled"`
	CacheTTLMs int   `toml:"cacheTtlMs"`
}

// ProjectConfig is the decoded and defaulted per-project configuration.
type ProjectConfig struct {
	Name        string
	Code        string
	TicketsPath string // relative to project root
	StartNumber int

	WorktreeEnabled bool
	CacheTTL        time.Duration
}

type rawConfig struct {
	Project  ProjectSection  `toml:"project"`
	Worktree WorktreeSection `toml:"worktree"`
}

// Load reads the project config from projectRoot. A missing file yields all
// defaults with the code derived from the directory name; a malformed file is
// an error since silently ignoring it would misroute every ticket operation.
func Load(projectRoot string) (*ProjectConfig, error) {
	cfg := &ProjectConfig{
		Name:            filepath.Base(projectRoot),
		Code:            DeriveCode(projectRoot),
		TicketsPath:     DefaultTicketsPath,
		StartNumber:     DefaultStartNumber,
		WorktreeEnabled: true,
		CacheTTL:        DefaultCacheTTL,
	}

	data, err := os.ReadFile(filepath.Join(projectRoot, ConfigFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read %s: %w", ConfigFileName, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}

	if raw.Project.Name != "" {
		cfg.Name = raw.Project.Name
	}
	if raw.Project.Code != "" {
		cfg.Code = strings.ToUpper(raw.Project.Code)
	}
	if raw.Project.Path != "" {
		cfg.TicketsPath = raw.Project.Path
	}
	if raw.Project.StartNumber > 0 {
		cfg.StartNumber = raw.Project.StartNumber
	}
	if raw.Worktree.Enabled != nil {
		cfg.WorktreeEnabled = *raw.Worktree.Enabled
	}
	if raw.Worktree.CacheTTLMs > 0 {
		cfg.CacheTTL = time.Duration(raw.Worktree.CacheTTLMs) * time.Millisecond
	}

	return cfg, nil
}

// TicketsDir returns the absolute tickets directory for a project root.
func (c *ProjectConfig) TicketsDir(projectRoot string) string {
	return filepath.Join(projectRoot, filepath.FromSlash(c.TicketsPath))
}

// DeriveCode builds an uppercase fallback project code from the directory name.
func DeriveCode(projectRoot string) string {
	base := filepath.Base(projectRoot)
	var b strings.Builder
	for _, r := range strings.ToUpper(base) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	code := b.String()
	if len(code) > 6 {
		code = code[:6]
	}
	if code == "" {
		code = "PRJ"
	}
	return code
}
