package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
)

// RunService persists run history. It observes the executor, recording one
// agent run per attempted step of the run whose id travels in the context.
type RunService struct {
	store  storage.Store
	logger Logger
}

func NewRunService(store storage.Store, logger Logger) *RunService {
	return &RunService{
		store:  store,
		logger: logger,
	}
}

// withTx runs fn in a transaction, committing on success.
func (rs *RunService) withTx(op string, fn func(tx storage.Store) error) (err error) {
	txStore, err := rs.store.Begin()
	if err != nil {
		rs.logger.Errorf("Failed to begin transaction for %s: %v", op, err)
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				rs.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			rs.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()
	return fn(txStore)
}

// StartRun records a new RUNNING run.
func (rs *RunService) StartRun(workflowName, globalTask string) (models.Run, error) {
	now := time.Now()
	run := models.Run{
		ID:           uuid.NewString(),
		WorkflowName: workflowName,
		GlobalTask:   globalTask,
		Status:       models.RunningRunStatus,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := rs.withTx("StartRun", func(tx storage.Store) error {
		return tx.SaveRun(run)
	})
	if err != nil {
		return models.Run{}, errors.Wrapf(err, "failed to start run of workflow '%s'", workflowName)
	}
	rs.logger.Infof("Started run %s of workflow '%s'", run.ID, workflowName)
	return run, nil
}

// FinishRun stores the final status of a run.
func (rs *RunService) FinishRun(id string, status models.RunStatus, errMsg string) error {
	err := rs.withTx("FinishRun", func(tx storage.Store) error {
		return tx.UpdateRunStatus(id, status, errMsg)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", id)
	}
	return nil
}

// GetRun fetches a run with its agent runs.
func (rs *RunService) GetRun(id string) (models.Run, error) {
	run, err := rs.store.GetRun(id)
	if err != nil {
		return models.Run{}, errors.WithMessagef(err, "failed to get run %s", id)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (rs *RunService) ListRuns(limit int) ([]models.Run, error) {
	return rs.store.ListRuns(limit)
}

func (rs *RunService) AgentStarted(ctx context.Context, step engine.Step) {
	runID := engine.RunIDFromContext(ctx)
	if runID == "" {
		return
	}
	ar := models.AgentRun{
		RunID:     runID,
		AgentID:   step.Agent.ID,
		Position:  step.Position,
		Model:     step.Agent.Model,
		Status:    models.RunningAgentStatus,
		Input:     step.Input,
		StartedAt: time.Now(),
	}
	if err := rs.withTx("AgentStarted", func(tx storage.Store) error { return tx.SaveAgentRun(ar) }); err != nil {
		rs.logger.Errorf("Failed to record start of agent %s in run %s: %v", step.Agent.ID, runID, err)
	}
}

func (rs *RunService) AgentCompleted(ctx context.Context, step engine.Step) {
	rs.finishAgent(ctx, step, models.CompletedAgentStatus, "")
}

func (rs *RunService) AgentFailed(ctx context.Context, step engine.Step) {
	msg := ""
	if step.Err != nil {
		msg = step.Err.Error()
	}
	rs.finishAgent(ctx, step, models.FailedAgentStatus, msg)
}

func (rs *RunService) finishAgent(ctx context.Context, step engine.Step, status models.AgentRunStatus, errMsg string) {
	runID := engine.RunIDFromContext(ctx)
	if runID == "" {
		return
	}
	finishedAt := time.Now()
	ar := models.AgentRun{
		RunID:      runID,
		AgentID:    step.Agent.ID,
		Status:     status,
		Output:     step.Output,
		ErrorMsg:   errMsg,
		FinishedAt: &finishedAt,
	}
	if err := rs.withTx("UpdateAgentRun", func(tx storage.Store) error { return tx.UpdateAgentRun(ar) }); err != nil {
		rs.logger.Errorf("Failed to update agent %s in run %s to %s: %v", step.Agent.ID, runID, status, err)
	}
}
