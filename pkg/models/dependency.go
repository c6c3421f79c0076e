package models

// Dependency states that the output of Source feeds the input of Target.
type Dependency struct {
	Source string `json:"source" yaml:"source" hcl:"source"` // Upstream agent ID
	Target string `json:"target" yaml:"target" hcl:"target"` // Downstream agent ID
}
