package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/git"
	"github.com/markdown-ticket/mdt/internal/output"
	"github.com/markdown-ticket/mdt/internal/store"
	"github.com/markdown-ticket/mdt/internal/tickets"
	"github.com/markdown-ticket/mdt/internal/worktree"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool

	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "mdt",
	Short: "Markdown ticket board - file-backed change request tracking",
	Long: `mdt tracks change requests as markdown files with YAML frontmatter,
living inside the repositories they describe. It resolves ticket files
across git worktrees, serves a REST API with live change notifications,
and exposes the same operations as MCP tools for coding agents.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/mdt/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "mdt")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MDT")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "mdt")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "mdt.db"))
	viper.SetDefault("port", 3001)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newTicketStore builds the worktree-aware ticket store shared by all
// surfaces.
func newTicketStore() (*tickets.Store, *worktree.Registry) {
	registry := worktree.NewRegistry(git.NewClient(), logger)
	resolver := worktree.NewResolver(registry)
	return tickets.NewStore(resolver, registry, logger), registry
}

// resolveProjectFromCwd walks up from the working directory looking for a
// .mdt-config.toml, falling back to the registry when the cwd is inside a
// registered project path.
func resolveProjectFromCwd(ctx context.Context) (tickets.Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return tickets.Project{}, err
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, config.ConfigFileName)); err == nil {
			cfg, err := config.Load(dir)
			if err != nil {
				return tickets.Project{}, err
			}
			return tickets.Project{ID: cfg.Code, Root: dir, Config: cfg}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return tickets.Project{}, fmt.Errorf("no %s found in %s or any parent directory", config.ConfigFileName, cwd)
}

// resolveProjectArg resolves the --project flag value (id or code) via the
// registry, or falls back to the working directory when empty.
func resolveProjectArg(ctx context.Context, key string) (tickets.Project, error) {
	if key == "" {
		return resolveProjectFromCwd(ctx)
	}

	s, err := getStore()
	if err != nil {
		return tickets.Project{}, err
	}
	p, err := s.GetProject(ctx, key)
	if err != nil {
		p, err = s.GetProjectByCode(ctx, key)
		if err != nil {
			return tickets.Project{}, fmt.Errorf("project not found: %s", key)
		}
	}
	cfg, err := config.Load(p.Path)
	if err != nil {
		return tickets.Project{}, err
	}
	return tickets.Project{ID: p.ID, Root: p.Path, Config: cfg}, nil
}
