package cmd

import (
	"github.com/spf13/cobra"

	"github.com/markdown-ticket/mdt/internal/models"
	"github.com/markdown-ticket/mdt/internal/output"
	"github.com/markdown-ticket/mdt/internal/tickets"
)

var (
	listProject  string
	listStatus   string
	listType     string
	listPriority string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List change requests",
	Long:    "List change requests for a project. Without --project the project is detected from the working directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun(cmd)
	},
}

func init() {
	listCmd.Flags().StringVar(&listProject, "project", "", "Project id or code (default: detect from cwd)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by type")
	listCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority")
	rootCmd.AddCommand(listCmd)
}

func listRun(cmd *cobra.Command) error {
	ctx := cmd.Context()
	p, err := resolveProjectArg(ctx, listProject)
	if err != nil {
		return err
	}

	ticketStore, _ := newTicketStore()
	list, err := ticketStore.List(ctx, p, tickets.Filter{
		Status:   models.Status(listStatus),
		Type:     models.Type(listType),
		Priority: models.Priority(listPriority),
	})
	if err != nil {
		return err
	}

	if len(list) == 0 {
		ui.Info("no tickets found in %s", p.Config.TicketsDir(p.Root))
		return nil
	}

	table := ui.Table([]string{"CODE", "TITLE", "STATUS", "TYPE", "PRIORITY", "WT"})
	for _, t := range list {
		wt := ""
		if t.InWorktree {
			wt = output.Cyan("✓")
		}
		table.Append([]string{
			output.Cyan(t.Code),
			t.Title,
			output.StatusColor(t.Status),
			string(t.Type),
			output.PriorityColor(t.Priority),
			wt,
		})
	}
	table.Render()
	return nil
}
