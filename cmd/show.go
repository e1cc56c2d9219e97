package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/markdown-ticket/mdt/internal/llm"
	"github.com/markdown-ticket/mdt/internal/output"
	"github.com/markdown-ticket/mdt/internal/tickets"
)

var (
	showProject   string
	showSummarize bool
)

var showCmd = &cobra.Command{
	Use:   "show <code>",
	Short: "Show a change request",
	Long:  "Show a change request's attributes and markdown body. With --summarize, an LLM-generated summary replaces the body.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(cmd, args[0])
	},
}

func init() {
	showCmd.Flags().StringVar(&showProject, "project", "", "Project id or code (default: detect from cwd)")
	showCmd.Flags().BoolVar(&showSummarize, "summarize", false, "Summarize the ticket body with an LLM")
	rootCmd.AddCommand(showCmd)
}

func showRun(cmd *cobra.Command, code string) error {
	ctx := cmd.Context()
	p, err := resolveProjectArg(ctx, showProject)
	if err != nil {
		return err
	}

	ticketStore, _ := newTicketStore()
	t, err := ticketStore.Get(ctx, p, code, tickets.ModeFull)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan(t.Code), t.Title)
	fmt.Fprintf(ui.Out, "Status:    %s\n", output.StatusColor(t.Status))
	fmt.Fprintf(ui.Out, "Type:      %s\n", t.Type)
	fmt.Fprintf(ui.Out, "Priority:  %s\n", output.PriorityColor(t.Priority))
	if t.Assignee != "" {
		fmt.Fprintf(ui.Out, "Assignee:  %s\n", t.Assignee)
	}
	if t.PhaseEpic != "" {
		fmt.Fprintf(ui.Out, "Phase:     %s\n", t.PhaseEpic)
	}
	if len(t.DependsOn) > 0 {
		fmt.Fprintf(ui.Out, "Depends:   %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Blocks) > 0 {
		fmt.Fprintf(ui.Out, "Blocks:    %s\n", strings.Join(t.Blocks, ", "))
	}
	fmt.Fprintf(ui.Out, "File:      %s\n", t.FilePath)
	if t.InWorktree {
		fmt.Fprintf(ui.Out, "Worktree:  %s\n", output.Yellow(t.WorktreePath))
	}

	if showSummarize {
		key := viper.GetString("anthropic.api_key")
		if key == "" {
			return fmt.Errorf("no Anthropic API key configured (set MDT_ANTHROPIC_API_KEY or anthropic.api_key)")
		}
		client := llm.NewClient(key, viper.GetString("anthropic.model"))
		summary, err := client.SummarizeTicket(ctx, t)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		fmt.Fprintf(ui.Out, "\n%s\n", summary)
		return nil
	}

	fmt.Fprintf(ui.Out, "\n%s\n", t.Content)
	return nil
}
