package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdown-ticket/mdt/internal/config"
)

var (
	initName string
	initCode string
	initPath string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a " + config.ConfigFileName + " in a project directory",
	Long:  "Write a " + config.ConfigFileName + " with the project's name, ticket code prefix, and tickets path. Defaults to the current directory.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		return initRun(dir)
	},
}

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "Project name (default: directory name)")
	initCmd.Flags().StringVar(&initCode, "code", "", "Ticket code prefix (default: derived from directory name)")
	initCmd.Flags().StringVar(&initPath, "path", config.DefaultTicketsPath, "Tickets directory relative to the project root")
	rootCmd.AddCommand(initCmd)
}

func initRun(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(abs, config.ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	name := initName
	if name == "" {
		name = filepath.Base(abs)
	}
	code := strings.ToUpper(initCode)
	if code == "" {
		code = config.DeriveCode(abs)
	}

	content := fmt.Sprintf(`[project]
name = %q
code = %q
path = %q
startNumber = 1

[worktree]
enabled = true
cacheTtlMs = 30000
`, name, code, initPath)

	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(abs, initPath), 0755); err != nil {
		return err
	}

	ui.Success("created %s (code %s, tickets in %s)", cfgPath, code, initPath)
	return nil
}
