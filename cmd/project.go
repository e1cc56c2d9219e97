package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/models"
	"github.com/markdown-ticket/mdt/internal/output"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage registered projects",
	Long:  "Add, remove, and list projects registered with the mdt server.",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a project",
	Long:  "Register a project directory. Use '.' for the current directory. The directory should contain a " + config.ConfigFileName + " file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(cmd, args[0])
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <id-or-code>",
	Aliases: []string{"rm"},
	Short:   "Unregister a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(cmd, args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd)
	},
}

func init() {
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectAddRun(cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("path does not exist: %s", abs)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return fmt.Errorf("load %s: %w", config.ConfigFileName, err)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	p := &models.Project{
		Name: cfg.Name,
		Code: cfg.Code,
		Path: abs,
	}
	if err := s.CreateProject(cmd.Context(), p); err != nil {
		return err
	}

	ui.Success("registered %s (%s) at %s", p.Name, output.Cyan(p.Code), abs)
	return nil
}

func projectRemoveRun(cmd *cobra.Command, key string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	p, err := s.GetProject(cmd.Context(), key)
	if err != nil {
		p, err = s.GetProjectByCode(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("project not found: %s", key)
		}
	}

	if err := s.DeleteProject(cmd.Context(), p.ID); err != nil {
		return err
	}
	ui.Success("removed %s", p.Name)
	return nil
}

func projectListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	projects, err := s.ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		ui.Info("No projects registered. Use 'mdt project add <path>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Code", "Name", "Path"})
	for _, p := range projects {
		table.Append([]string{
			output.Cyan(p.Code),
			p.Name,
			p.Path,
		})
	}
	table.Render()
	return nil
}
