package models

// Agent is a configured unit of work in a multi-agent workflow.
type Agent struct {
	// Unique within a workflow (e.g., "A1").
	ID string `json:"id" yaml:"id" hcl:"id,label"`
	// Display name, not authoritative.
	Name string `json:"name" yaml:"name" hcl:"name,optional"`
	// Opaque identifier passed to the generation service.
	Model string `json:"model" yaml:"model" hcl:"model"`
	// Must contain exactly one {task} placeholder.
	PromptTemplate string `json:"prompt_template" yaml:"prompt_template" hcl:"prompt_template,optional"`
	// Upper bound passed to the generation service.
	MaxOutputLength int `json:"max_output_length" yaml:"max_output_length" hcl:"max_output_length"`
}

// DisplayName returns the agent name, falling back to its ID.
func (a Agent) DisplayName() string {
	if a.Name == "" {
		return a.ID
	}
	return a.Name
}
