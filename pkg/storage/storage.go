package storage

import (
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the run history operations for AgentTrace.
type Store interface {
	// Transaction handling
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Run operations
	SaveRun(r models.Run) error
	GetRun(id string) (models.Run, error)
	ListRuns(limit int) ([]models.Run, error)
	UpdateRunStatus(id string, status models.RunStatus, errorMsg string) error

	// Agent run operations
	SaveAgentRun(ar models.AgentRun) error
	UpdateAgentRun(ar models.AgentRun) error
	GetAgentRuns(runID string) ([]models.AgentRun, error)
}

// IsTerminal reports whether a run in status can no longer change.
func IsTerminal(status models.RunStatus) bool {
	return status == models.CompletedRunStatus || status == models.FailedRunStatus
}
