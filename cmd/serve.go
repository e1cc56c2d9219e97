package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/markdown-ticket/mdt/internal/api"
	"github.com/markdown-ticket/mdt/internal/config"
	"github.com/markdown-ticket/mdt/internal/llm"
	"github.com/markdown-ticket/mdt/internal/store"
	"github.com/markdown-ticket/mdt/internal/watcher"
	"github.com/markdown-ticket/mdt/internal/worktree"
)

// reconcileInterval is how often worktree watches are re-synced with the
// current git worktree layout.
const reconcileInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the ticket REST API and a Server-Sent
Events stream of file changes. All registered projects are watched for
markdown changes, including ticket files living in git worktrees.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 3001, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func serveRun(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ticketStore, registry := newTicketStore()

	broadcaster := watcher.New(logger)
	defer broadcaster.Close()

	var llmClient *llm.Client
	if key := viper.GetString("anthropic.api_key"); key != "" {
		llmClient = llm.NewClient(key, viper.GetString("anthropic.model"))
	}

	// Watch every registered project's tickets directory up front.
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		cfg, err := config.Load(p.Path)
		if err != nil {
			ui.Warning("skipping watch for %s: %v", p.Name, err)
			continue
		}
		broadcaster.WatchProject(p.ID, cfg.TicketsDir(p.Path))
	}

	go reconcileLoop(ctx, s, registry, broadcaster)

	srv := api.NewServer(s, ticketStore, registry, broadcaster, llmClient)
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	ui.Info("mdt API listening on http://localhost%s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// reconcileLoop re-syncs worktree watches so that tickets moved into or
// out of worktrees keep emitting change events. The first pass runs
// immediately so worktree tickets are covered from startup, not only
// after the first tick.
func reconcileLoop(ctx context.Context, s store.Store, registry *worktree.Registry, broadcaster *watcher.Broadcaster) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		reconcileWorktreeWatches(ctx, s, registry, broadcaster)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func reconcileWorktreeWatches(ctx context.Context, s store.Store, registry *worktree.Registry, broadcaster *watcher.Broadcaster) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return
	}
	for _, p := range projects {
		cfg, err := config.Load(p.Path)
		if err != nil || !cfg.WorktreeEnabled {
			continue
		}
		var dirs []string
		for _, root := range registry.WorktreePaths(ctx, p.Path, cfg) {
			dirs = append(dirs, cfg.TicketsDir(root))
		}
		broadcaster.ReconcileWorktrees(p.ID, dirs)
	}
}
