package service

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrWorkflowExists   = errors.New("workflow already exists")
	ErrInvalidName      = errors.New("invalid workflow name")
)

// Run outcome labels reported to a Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Recorder receives per-agent events and the outcome of every run.
type Recorder interface {
	engine.Observer
	WorkflowFinished(outcome string)
}

// RunOutcome is the result of RunWorkflow. Result is nil when the workflow
// was rejected before any agent ran.
type RunOutcome struct {
	RunID  string
	Result *engine.RunResult
}

type Option func(*WorkflowService)

func WithRecorder(r Recorder) Option {
	return func(s *WorkflowService) {
		s.recorder = r
	}
}

// WorkflowService keeps named workflows in memory and runs them, recording
// every run through a RunService.
type WorkflowService struct {
	mu        sync.RWMutex
	workflows map[string]*engine.Workflow
	gen       generation.Generator
	runs      *RunService
	recorder  Recorder
	logger    Logger
}

func NewWorkflowService(gen generation.Generator, store storage.Store, logger Logger, opts ...Option) *WorkflowService {
	s := &WorkflowService{
		workflows: make(map[string]*engine.Workflow),
		gen:       gen,
		runs:      NewRunService(store, logger),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Runs exposes the run history.
func (s *WorkflowService) Runs() *RunService {
	return s.runs
}

func (s *WorkflowService) CreateWorkflow(name, globalTask string) error {
	if err := validateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[name]; ok {
		return errors.Wrapf(ErrWorkflowExists, "workflow '%s'", name)
	}
	s.workflows[name] = engine.NewWorkflow(name, globalTask)
	s.logger.Infof("Created workflow '%s'", name)
	return nil
}

// PutWorkflow stores wf under its name, replacing any workflow with that name.
func (s *WorkflowService) PutWorkflow(wf *engine.Workflow) error {
	if err := validateName(wf.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.Name] = wf.Clone()
	return nil
}

// GetWorkflow returns a snapshot of the named workflow.
func (s *WorkflowService) GetWorkflow(name string) (*engine.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return wf.Clone(), nil
}

// ListWorkflows returns snapshots of all workflows sorted by name.
func (s *WorkflowService) ListWorkflows() []*engine.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*engine.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *WorkflowService) DeleteWorkflow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(name); err != nil {
		return err
	}
	delete(s.workflows, name)
	s.logger.Infof("Deleted workflow '%s'", name)
	return nil
}

func (s *WorkflowService) SetGlobalTask(name, globalTask string) error {
	return s.update(name, func(wf *engine.Workflow) error {
		wf.GlobalTask = globalTask
		return nil
	})
}

func (s *WorkflowService) AddAgent(name string, agent models.Agent) error {
	return s.update(name, func(wf *engine.Workflow) error {
		return wf.AddAgent(agent)
	})
}

func (s *WorkflowService) AddDependency(name, source, target string) error {
	return s.update(name, func(wf *engine.Workflow) error {
		return wf.AddDependency(source, target)
	})
}

func (s *WorkflowService) ResetWorkflow(name string) error {
	return s.update(name, func(wf *engine.Workflow) error {
		wf.Reset()
		return nil
	})
}

// RunWorkflow executes a snapshot of the named workflow. A non-empty
// globalTask overrides the stored one for this run only. The run is recorded
// before execution starts, so the returned RunID is set whenever the
// workflow exists, even if the run fails.
func (s *WorkflowService) RunWorkflow(ctx context.Context, name, globalTask string) (RunOutcome, error) {
	wf, err := s.GetWorkflow(name)
	if err != nil {
		return RunOutcome{}, err
	}
	if globalTask != "" {
		wf.GlobalTask = globalTask
	}

	run, err := s.runs.StartRun(wf.Name, wf.GlobalTask)
	if err != nil {
		return RunOutcome{}, err
	}

	observers := []engine.Observer{s.runs}
	if s.recorder != nil {
		observers = append(observers, s.recorder)
	}
	executor := engine.NewExecutor(s.gen, s.logger, engine.WithObserver(observers...))
	result, execErr := executor.Execute(engine.WithRunID(ctx, run.ID), wf)

	status := models.CompletedRunStatus
	errMsg := ""
	if execErr != nil {
		status = models.FailedRunStatus
		errMsg = execErr.Error()
	}
	if err := s.runs.FinishRun(run.ID, status, errMsg); err != nil {
		s.logger.Errorf("Failed to record outcome of run %s: %v", run.ID, err)
	}
	if s.recorder != nil {
		s.recorder.WorkflowFinished(outcomeOf(execErr))
	}

	if execErr != nil {
		s.logger.Errorf("Run %s of workflow '%s' failed: %v", run.ID, wf.Name, execErr)
	} else {
		s.logger.Infof("Run %s of workflow '%s' completed with %d agents", run.ID, wf.Name, len(result.Order))
	}
	return RunOutcome{RunID: run.ID, Result: result}, execErr
}

func validateName(name string) error {
	if name == "" {
		return errors.WithMessage(ErrInvalidName, "workflow name cannot be empty")
	}
	if len(name) > 100 {
		return errors.WithMessage(ErrInvalidName, "workflow name too long (max 100 characters)")
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case engine.IsValidation(err), engine.IsCycle(err):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func (s *WorkflowService) update(name string, fn func(wf *engine.Workflow) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, err := s.lookup(name)
	if err != nil {
		return err
	}
	return fn(wf)
}

// lookup must be called with s.mu held.
func (s *WorkflowService) lookup(name string) (*engine.Workflow, error) {
	wf, ok := s.workflows[name]
	if !ok {
		return nil, errors.Wrapf(ErrWorkflowNotFound, "workflow '%s'", name)
	}
	return wf, nil
}
