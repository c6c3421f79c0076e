package cli

import (
	"encoding/json"
	"strings"

	"github.com/shreyachakravarty07/AgentTrace/internal/definition"
	"github.com/shreyachakravarty07/AgentTrace/internal/log"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
	"github.com/shreyachakravarty07/AgentTrace/pkg/export"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/shreyachakravarty07/AgentTrace/pkg/service"
	"github.com/spf13/cobra"
)

func (a *App) runCmd() *cobra.Command {
	var (
		file   string
		task   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workflow definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := definition.Load(file)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			gen, release, err := a.openGenerator()
			if err != nil {
				return err
			}
			defer release()

			svc := service.NewWorkflowService(gen, store, log.GetLogger())
			if err := svc.PutWorkflow(wf); err != nil {
				return err
			}
			outcome, runErr := svc.RunWorkflow(cmd.Context(), wf.Name, task)
			if outcome.Result != nil {
				if asJSON {
					a.printRunJSON(outcome, runErr)
				} else {
					a.printRun(wf, outcome)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow definition file (.yaml, .yml or .hcl)")
	cmd.Flags().StringVar(&task, "task", "", "Override the global task for this run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *App) printRun(wf *engine.Workflow, outcome service.RunOutcome) {
	names := make(map[string]string)
	for _, agent := range wf.Agents() {
		names[agent.ID] = agent.DisplayName() + " (" + agent.Model + ")"
	}
	a.printf("Run %s\n", outcome.RunID)
	a.printf("Order: %s\n", strings.Join(outcome.Result.Order, " -> "))
	for _, edge := range outcome.Result.Edges {
		a.printf("Edge: %s -> %s\n", edge.Source, edge.Target)
	}
	for _, id := range outcome.Result.Order {
		output, ok := outcome.Result.Outputs[id]
		if !ok {
			continue
		}
		a.printf("\n[%s] %s\n%s\n", id, names[id], output)
	}
}

func (a *App) printRunJSON(outcome service.RunOutcome, runErr error) {
	out := struct {
		RunID   string              `json:"run_id"`
		Order   []string            `json:"order"`
		Outputs map[string]string   `json:"outputs"`
		Edges   []models.Dependency `json:"edges"`
		Error   string              `json:"error,omitempty"`
	}{
		RunID:   outcome.RunID,
		Order:   outcome.Result.Order,
		Outputs: outcome.Result.Outputs,
		Edges:   outcome.Result.Edges,
	}
	if out.Edges == nil {
		out.Edges = []models.Dependency{}
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func (a *App) validateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a workflow definition file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := definition.Load(file)
			if err != nil {
				return err
			}
			g, err := engine.Build(wf.Agents(), wf.Dependencies())
			if err != nil {
				return err
			}
			order, err := engine.Schedule(g)
			if err != nil {
				return err
			}
			a.printf("Workflow '%s' is valid: %d agents, %d dependencies\n", wf.Name, len(wf.Agents()), len(wf.Dependencies()))
			a.printf("Execution order: %s\n", strings.Join(order, " -> "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow definition file (.yaml, .yml or .hcl)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *App) graphCmd() *cobra.Command {
	var file, output string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render a workflow as Graphviz DOT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := definition.Load(file)
			if err != nil {
				return err
			}
			dot := engine.DOT(wf.Agents(), engine.Edges(wf))
			if output == "" {
				a.printf("%s", dot)
				return nil
			}
			if err := export.WriteFile(output, []byte(dot)); err != nil {
				return err
			}
			a.printf("Wrote graph of workflow '%s' to %s\n", wf.Name, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Workflow definition file (.yaml, .yml or .hcl)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the DOT graph to this file instead of stdout")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
