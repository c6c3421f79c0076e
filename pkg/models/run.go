package models

import "time"

type RunStatus string

const (
	PendingRunStatus   RunStatus = "PENDING"
	RunningRunStatus   RunStatus = "RUNNING"
	CompletedRunStatus RunStatus = "COMPLETED"
	FailedRunStatus    RunStatus = "FAILED"
)

// Run records one execution of a workflow.
type Run struct {
	ID           string     `json:"id" db:"id"`                             // UUID
	WorkflowName string     `json:"workflow_name" db:"workflow_name"`       // Name of the executed workflow
	GlobalTask   string     `json:"global_task" db:"global_task"`           // Root input for source agents
	Status       RunStatus  `json:"status" db:"status"`                     // "PENDING", "RUNNING", "COMPLETED", "FAILED"
	ErrorMsg     string     `json:"error,omitempty" db:"error_msg"`         // Reason the run stopped early
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`             // Creation timestamp
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`             // Last update timestamp
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"` // Nullable end time
	AgentRuns    []AgentRun `json:"agent_runs,omitempty"`                   // Per-agent records (populated on read)
}

type AgentRunStatus string

const (
	RunningAgentStatus   AgentRunStatus = "RUNNING"
	CompletedAgentStatus AgentRunStatus = "COMPLETED"
	FailedAgentStatus    AgentRunStatus = "FAILED"
)

// AgentRun records a single agent step within a run.
type AgentRun struct {
	RunID      string         `json:"run_id" db:"run_id"`
	AgentID    string         `json:"agent_id" db:"agent_id"`
	Position   int            `json:"position" db:"position"` // Index in the execution order
	Model      string         `json:"model" db:"model"`
	Status     AgentRunStatus `json:"status" db:"status"`
	Input      string         `json:"input" db:"input"`
	Output     string         `json:"output,omitempty" db:"output"`
	ErrorMsg   string         `json:"error,omitempty" db:"error_msg"`
	StartedAt  time.Time      `json:"started_at" db:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
}
