package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shreyachakravarty07/AgentTrace/internal/log"
	"github.com/shreyachakravarty07/AgentTrace/pkg/service"
	"github.com/spf13/cobra"
)

func (a *App) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := service.NewRunService(store, log.GetLogger()).ListRuns(limit)
			if err != nil {
				log.GetLogger().Errorf("Failed to list runs: %v", err)
				return err
			}
			if len(runs) == 0 {
				a.printf("No runs found.\n")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.ID, run.WorkflowName, run.Status, run.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a run and its agent steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			run, err := service.NewRunService(store, log.GetLogger()).GetRun(args[0])
			if err != nil {
				return err
			}
			a.printf("Run:      %s\n", run.ID)
			a.printf("Workflow: %s\n", run.WorkflowName)
			a.printf("Task:     %s\n", run.GlobalTask)
			a.printf("Status:   %s\n", run.Status)
			a.printf("Created:  %s\n", run.CreatedAt.Format(time.RFC3339))
			if run.FinishedAt != nil {
				a.printf("Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
			}
			if run.ErrorMsg != "" {
				a.printf("Error:    %s\n", run.ErrorMsg)
			}
			for _, ar := range run.AgentRuns {
				a.printf("\n#%d %s (%s) %s\n", ar.Position+1, ar.AgentID, ar.Model, ar.Status)
				a.printf("  Input:  %s\n", ar.Input)
				if ar.Output != "" {
					a.printf("  Output: %s\n", ar.Output)
				}
				if ar.ErrorMsg != "" {
					a.printf("  Error:  %s\n", ar.ErrorMsg)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}
