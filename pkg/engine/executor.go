package engine

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// ErrorOutputPrefix tags the output recorded for the agent that halted a run.
const ErrorOutputPrefix = "Error: "

// Logger defines the logging interface used by the Executor.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Step describes one attempted agent of a run.
type Step struct {
	Position int
	Agent    models.Agent
	Input    string
	Prompt   string
	Output   string
	Err      error
	Elapsed  time.Duration
}

// RunResult is what a run produced up to the point it stopped.
type RunResult struct {
	// Topological order of every agent, including those never attempted.
	Order []string
	// Canonical output per attempted agent. The failing agent holds an
	// ErrorOutputPrefix entry; agents after it are absent.
	Outputs map[string]string
	Steps   []Step
	// Edge list for visualisation, in insertion order.
	Edges []models.Dependency
	// Set when a generation call halted the run.
	FailedAgent string
}

// Observer is notified around every agent step. Calls happen on the
// goroutine running the workflow, in execution order.
type Observer interface {
	AgentStarted(ctx context.Context, step Step)
	AgentCompleted(ctx context.Context, step Step)
	AgentFailed(ctx context.Context, step Step)
}

type runIDKey struct{}

// WithRunID attaches a run id to ctx so observers can correlate steps.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver registers observers, notified in registration order.
func WithObserver(observers ...Observer) Option {
	return func(e *Executor) {
		for _, o := range observers {
			if o != nil {
				e.observers = append(e.observers, o)
			}
		}
	}
}

// Executor runs agents one at a time in topological order.
type Executor struct {
	gen       generation.Generator
	logger    Logger
	observers []Observer
}

func NewExecutor(gen generation.Generator, logger Logger, opts ...Option) *Executor {
	e := &Executor{gen: gen, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a snapshot of wf.
func (e *Executor) Execute(ctx context.Context, wf *Workflow) (*RunResult, error) {
	snapshot := wf.Clone()
	return e.Run(ctx, snapshot.Agents(), snapshot.Dependencies(), snapshot.GlobalTask)
}

// Run validates the graph, schedules it and executes every agent in order.
// Validation and cycle errors are returned before any generation call, with a
// nil result. A generation failure records an error-tagged output for the
// failing agent, stops the run and is returned as an *AgentError together
// with the partial result. ctx is checked between steps.
func (e *Executor) Run(ctx context.Context, agents []models.Agent, edges []models.Dependency, globalTask string) (*RunResult, error) {
	agents = append([]models.Agent(nil), agents...)
	for i := range agents {
		if agents[i].PromptTemplate == "" {
			agents[i].PromptTemplate = DefaultPromptTemplate
		}
		if err := ValidateAgent(agents[i]); err != nil {
			return nil, err
		}
	}

	graph, err := Build(agents, edges)
	if err != nil {
		return nil, err
	}
	order, err := Schedule(graph)
	if err != nil {
		e.logger.Errorf("Failed to schedule workflow: %v", err)
		return nil, err
	}

	byID := make(map[string]models.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	preds := Predecessors(edges)

	result := &RunResult{
		Order:   order,
		Outputs: make(map[string]string, len(order)),
		Edges:   append([]models.Dependency(nil), edges...),
	}
	e.logger.Infof("Running %d agents in order %v", len(order), order)

	for pos, id := range order {
		if err := ctx.Err(); err != nil {
			e.logger.Infof("Run cancelled before agent '%s': %v", id, err)
			return result, err
		}

		agent := byID[id]
		input := aggregateInput(preds[id], result.Outputs, globalTask)
		step := Step{
			Position: pos,
			Agent:    agent,
			Input:    input,
			Prompt:   RenderPrompt(agent.PromptTemplate, input),
		}
		e.notifyStarted(ctx, step)

		start := time.Now()
		text, genErr := e.gen.Generate(ctx, agent.Model, step.Prompt, agent.MaxOutputLength)
		step.Elapsed = time.Since(start)

		if genErr != nil {
			gerr := asGenerationError(agent.Model, genErr)
			step.Err = gerr
			step.Output = ErrorOutputPrefix + gerr.Error()
			result.Outputs[id] = step.Output
			result.Steps = append(result.Steps, step)
			result.FailedAgent = id
			e.logger.Errorf("Agent '%s' failed, skipping %d remaining agents: %v", id, len(order)-pos-1, gerr)
			e.notifyFailed(ctx, step)
			return result, &AgentError{AgentID: id, Err: gerr}
		}

		step.Output = ParseOutput(text).String()
		result.Outputs[id] = step.Output
		result.Steps = append(result.Steps, step)
		e.logger.Infof("Agent '%s' completed in %s", id, step.Elapsed)
		e.notifyCompleted(ctx, step)
	}
	return result, nil
}

// aggregateInput joins predecessor outputs in edge insertion order, or falls
// back to the global task for a source agent.
func aggregateInput(predecessors []string, outputs map[string]string, globalTask string) string {
	if len(predecessors) == 0 {
		return globalTask
	}
	parts := make([]string, 0, len(predecessors))
	for _, p := range predecessors {
		parts = append(parts, outputs[p])
	}
	return strings.Join(parts, "\n")
}

func asGenerationError(model string, err error) *generation.Error {
	var gerr *generation.Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return generation.NewError(model, err)
}

func (e *Executor) notifyStarted(ctx context.Context, step Step) {
	for _, o := range e.observers {
		o.AgentStarted(ctx, step)
	}
}

func (e *Executor) notifyCompleted(ctx context.Context, step Step) {
	for _, o := range e.observers {
		o.AgentCompleted(ctx, step)
	}
}

func (e *Executor) notifyFailed(ctx context.Context, step Step) {
	for _, o := range e.observers {
		o.AgentFailed(ctx, step)
	}
}
