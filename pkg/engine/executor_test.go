package engine_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/internal/testutil"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	events []string
	runIDs []string
}

func (o *recordingObserver) AgentStarted(ctx context.Context, step engine.Step) {
	o.events = append(o.events, "start:"+step.Agent.ID)
	o.runIDs = append(o.runIDs, engine.RunIDFromContext(ctx))
}

func (o *recordingObserver) AgentCompleted(ctx context.Context, step engine.Step) {
	o.events = append(o.events, "done:"+step.Agent.ID)
}

func (o *recordingObserver) AgentFailed(ctx context.Context, step engine.Step) {
	o.events = append(o.events, "fail:"+step.Agent.ID)
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("SourceAgentsReceiveGlobalTask", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		result, err := exec.Run(ctx, agentsOf("A", "B"), nil, "write a poem")
		require.NoError(t, err)
		require.Len(t, result.Steps, 2)
		for _, step := range result.Steps {
			assert.Equal(t, "write a poem", step.Input)
		}
		assert.Equal(t, `{"raw_output":"model-A: write a poem"}`, result.Outputs["A"])
	})

	t.Run("PredecessorOutputsJoinedInEdgeOrder", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		// s2 runs before s1, but the s1 edge was added first
		agents := agentsOf("s2", "s1", "t")
		edges := []models.Dependency{dep("s1", "t"), dep("s2", "t")}
		result, err := exec.Run(ctx, agents, edges, "task")
		require.NoError(t, err)
		assert.Equal(t, []string{"s2", "s1", "t"}, result.Order)

		last := result.Steps[2]
		assert.Equal(t, "t", last.Agent.ID)
		assert.Equal(t, result.Outputs["s1"]+"\n"+result.Outputs["s2"], last.Input)
		assert.Equal(t, last.Input, last.Prompt)
	})

	t.Run("TemplateFilledWithAggregatedInput", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		agents := agentsOf("A", "B")
		agents[1].PromptTemplate = "Review this: {task}"
		result, err := exec.Run(ctx, agents, []models.Dependency{dep("A", "B")}, "task")
		require.NoError(t, err)

		calls := gen.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "Review this: "+result.Outputs["A"], calls[1].Prompt)
		assert.Equal(t, "model-B", calls[1].Model)
		assert.Equal(t, 50, calls[1].MaxLength)
	})

	t.Run("StructuredOutputCanonicalised", func(t *testing.T) {
		gen := testutil.NewFakeGenerator().WithResponse(func(model, prompt string) string {
			return "Sure! Here is the plan:\n{ \"plan\": [ {\"step_number\": 1} ] }\nDone."
		})
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		result, err := exec.Run(ctx, agentsOf("A"), nil, "task")
		require.NoError(t, err)
		assert.Equal(t, `{"plan":[{"step_number":1}]}`, result.Outputs["A"])
	})

	t.Run("Deterministic", func(t *testing.T) {
		agents := agentsOf("A", "B", "C", "D")
		edges := []models.Dependency{dep("A", "C"), dep("B", "C"), dep("C", "D")}

		first, err := engine.NewExecutor(testutil.NewFakeGenerator(), testutil.NopLogger{}).Run(ctx, agents, edges, "task")
		require.NoError(t, err)
		second, err := engine.NewExecutor(testutil.NewFakeGenerator(), testutil.NopLogger{}).Run(ctx, agents, edges, "task")
		require.NoError(t, err)

		assert.Equal(t, first.Order, second.Order)
		assert.Equal(t, first.Outputs, second.Outputs)
	})

	t.Run("FailFastKeepsPartialResult", func(t *testing.T) {
		gen := testutil.NewFakeGenerator().FailModel("model-B", errors.New("out of memory"))
		obs := &recordingObserver{}
		exec := engine.NewExecutor(gen, testutil.NopLogger{}, engine.WithObserver(obs))

		edges := []models.Dependency{dep("A", "B"), dep("B", "C")}
		result, err := exec.Run(engine.WithRunID(ctx, "run-1"), agentsOf("A", "B", "C"), edges, "task")
		require.Error(t, err)
		require.NotNil(t, result)

		var agentErr *engine.AgentError
		require.ErrorAs(t, err, &agentErr)
		assert.Equal(t, "B", agentErr.AgentID)
		var genErr *generation.Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, "model-B", genErr.Model)

		assert.Equal(t, "B", result.FailedAgent)
		assert.Contains(t, result.Outputs, "A")
		assert.Equal(t, "Error: generation with model 'model-B' failed: out of memory", result.Outputs["B"])
		assert.NotContains(t, result.Outputs, "C")
		assert.Len(t, gen.Calls(), 2)

		assert.Equal(t, []string{"start:A", "done:A", "start:B", "fail:B"}, obs.events)
		assert.Equal(t, []string{"run-1", "run-1"}, obs.runIDs)
	})

	t.Run("GenerationErrorPassedThrough", func(t *testing.T) {
		gen := testutil.NewFakeGenerator().FailModel("model-A", generation.Errorf("model-A", "model not found"))
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		result, err := exec.Run(ctx, agentsOf("A"), nil, "task")
		require.Error(t, err)
		assert.Equal(t, "Error: generation with model 'model-A' failed: model not found", result.Outputs["A"])
	})

	t.Run("CycleRejectedBeforeGeneration", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		result, err := exec.Run(ctx, agentsOf("A", "B"), []models.Dependency{dep("A", "B"), dep("B", "A")}, "task")
		assert.Nil(t, result)
		assert.True(t, engine.IsCycle(err))
		assert.Empty(t, gen.Calls())
	})

	t.Run("InvalidAgentRejectedBeforeGeneration", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		agents := agentsOf("A", "B")
		agents[1].MaxOutputLength = 0
		_, err := exec.Run(ctx, agents, nil, "task")
		assert.Equal(t, engine.CodeInvalidMaxLength, engine.ValidationCode(err))
		assert.Empty(t, gen.Calls())
	})

	t.Run("EmptyTemplateUsesDefault", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		agents := agentsOf("A")
		agents[0].PromptTemplate = ""
		_, err := exec.Run(ctx, agents, nil, "plan a trip")
		require.NoError(t, err)
		assert.Equal(t, engine.RenderPrompt(engine.DefaultPromptTemplate, "plan a trip"), gen.Calls()[0].Prompt)
	})

	t.Run("CancelledBeforeStart", func(t *testing.T) {
		gen := testutil.NewFakeGenerator()
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		result, err := exec.Run(cancelled, agentsOf("A", "B"), nil, "task")
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, result)
		assert.Empty(t, result.Outputs)
		assert.Empty(t, gen.Calls())
	})

	t.Run("CancelledBetweenSteps", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		gen := testutil.NewFakeGenerator().WithResponse(func(model, prompt string) string {
			cancel()
			return "ok"
		})
		exec := engine.NewExecutor(gen, testutil.NopLogger{})

		result, err := exec.Run(cancelled, agentsOf("A", "B"), nil, "task")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, map[string]string{"A": `{"raw_output":"ok"}`}, result.Outputs)
	})

	t.Run("ExecuteUsesWorkflowSnapshot", func(t *testing.T) {
		wf := engine.NewWorkflow("demo", "task")
		for _, a := range agentsOf("A", "B") {
			require.NoError(t, wf.AddAgent(a))
		}
		require.NoError(t, wf.AddDependency("A", "B"))

		result, err := engine.NewExecutor(testutil.NewFakeGenerator(), testutil.NopLogger{}).Execute(ctx, wf)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, result.Order)
		assert.Equal(t, engine.Edges(wf), result.Edges)
	})

	t.Run("DanglingEdgeRevalidatedBeforeRun", func(t *testing.T) {
		wf := engine.NewWorkflow("demo", "task")
		require.NoError(t, wf.AddDependency("A", "B"))
		require.NoError(t, wf.AddAgent(agentsOf("A")[0]))

		_, err := engine.NewExecutor(testutil.NewFakeGenerator(), testutil.NopLogger{}).Execute(ctx, wf)
		assert.Equal(t, engine.CodeUnknownAgent, engine.ValidationCode(err))
	})
}
