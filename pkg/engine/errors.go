package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Validation error codes.
const (
	CodeEmptyAgentID        = "EMPTY_AGENT_ID"
	CodeDuplicateAgent      = "DUPLICATE_AGENT"
	CodeUnknownAgent        = "UNKNOWN_AGENT"
	CodeSelfLoop            = "SELF_LOOP"
	CodeDuplicateDependency = "DUPLICATE_DEPENDENCY"
	CodeInvalidMaxLength    = "INVALID_MAX_LENGTH"
	CodeInvalidTemplate     = "INVALID_TEMPLATE"
)

// ValidationError rejects a malformed agent or dependency before any
// generation call is made.
type ValidationError struct {
	Code    string
	AgentID string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s]: %s", e.Code, e.Message)
}

func newValidationError(code, agentID, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, AgentID: agentID, Message: fmt.Sprintf(format, args...)}
}

// CycleDetectedError is returned by Schedule when no total order exists.
type CycleDetectedError struct {
	// Agent ids that could not be scheduled, in input order.
	Unscheduled []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("cycle detected or missing agents in dependencies: %s", strings.Join(e.Unscheduled, ", "))
}

// AgentError reports the agent whose step halted a run.
type AgentError struct {
	AgentID string
	Err     error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("execution of agent '%s' failed: %v", e.AgentID, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsCycle reports whether err is (or wraps) a CycleDetectedError.
func IsCycle(err error) bool {
	var c *CycleDetectedError
	return errors.As(err, &c)
}

// ValidationCode returns the code of a wrapped ValidationError, or "".
func ValidationCode(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Code
	}
	return ""
}
