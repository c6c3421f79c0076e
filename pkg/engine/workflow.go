package engine

import (
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// Workflow owns an agent set, a dependency set and the global task fed to
// agents without predecessors. It is not safe for concurrent use; callers
// that share a Workflow guard it themselves.
type Workflow struct {
	Name       string
	GlobalTask string
	agents     []models.Agent
	deps       []models.Dependency
}

// NewWorkflow returns an empty workflow.
func NewWorkflow(name, globalTask string) *Workflow {
	return &Workflow{Name: name, GlobalTask: globalTask}
}

// AddAgent validates and appends an agent. An empty prompt template is
// replaced by DefaultPromptTemplate.
func (w *Workflow) AddAgent(agent models.Agent) error {
	if agent.PromptTemplate == "" {
		agent.PromptTemplate = DefaultPromptTemplate
	}
	if err := ValidateAgent(agent); err != nil {
		return err
	}
	if w.HasAgent(agent.ID) {
		return newValidationError(CodeDuplicateAgent, agent.ID, "agent '%s' already exists", agent.ID)
	}
	w.agents = append(w.agents, agent)
	return nil
}

// AddDependency records that source feeds target. Self-loops and repeated
// pairs are rejected here; endpoints are checked again by Build right before
// a run, since agents may be added after the edge.
func (w *Workflow) AddDependency(source, target string) error {
	if source == "" || target == "" {
		return newValidationError(CodeEmptyAgentID, "", "dependency endpoints cannot be empty")
	}
	if source == target {
		return newValidationError(CodeSelfLoop, source, "source and target cannot be the same agent ('%s')", source)
	}
	for _, d := range w.deps {
		if d.Source == source && d.Target == target {
			return newValidationError(CodeDuplicateDependency, target, "dependency %s -> %s already exists", source, target)
		}
	}
	w.deps = append(w.deps, models.Dependency{Source: source, Target: target})
	return nil
}

// Reset clears agents and dependencies together.
func (w *Workflow) Reset() {
	w.agents = nil
	w.deps = nil
}

// HasAgent reports whether an agent with id is registered.
func (w *Workflow) HasAgent(id string) bool {
	for _, a := range w.agents {
		if a.ID == id {
			return true
		}
	}
	return false
}

// Agents returns a copy of the agents in insertion order.
func (w *Workflow) Agents() []models.Agent {
	return append([]models.Agent(nil), w.agents...)
}

// Dependencies returns a copy of the dependencies in insertion order.
func (w *Workflow) Dependencies() []models.Dependency {
	return append([]models.Dependency(nil), w.deps...)
}

// Clone returns an independent copy, used to snapshot a workflow before a run.
func (w *Workflow) Clone() *Workflow {
	return &Workflow{
		Name:       w.Name,
		GlobalTask: w.GlobalTask,
		agents:     w.Agents(),
		deps:       w.Dependencies(),
	}
}

// ValidateAgent checks the per-agent invariants.
func ValidateAgent(agent models.Agent) error {
	if agent.ID == "" {
		return newValidationError(CodeEmptyAgentID, "", "agent id cannot be empty")
	}
	if agent.MaxOutputLength <= 0 {
		return newValidationError(CodeInvalidMaxLength, agent.ID,
			"max output length of agent '%s' must be positive, got %d", agent.ID, agent.MaxOutputLength)
	}
	return ValidateTemplate(agent.ID, agent.PromptTemplate)
}
