package engine

import "strings"

// Placeholder is substituted with an agent's aggregated input text.
const Placeholder = "{task}"

// DefaultPromptTemplate asks the model for a JSON plan. It is used for agents
// registered without a template.
const DefaultPromptTemplate = "You are an expert AI agent specialized in planning complex tasks.\n" +
	"Given the following task, provide a detailed, step-by-step plan in JSON format.\n" +
	"Your output must be valid JSON with a key 'plan' containing an array of steps.\n" +
	"Each step should be an object with 'step_number', 'description', and 'notes'.\n\n" +
	"Task: {task}\n\n" +
	"Ensure that your output is strictly in JSON format."

// ValidateTemplate checks that tmpl holds exactly one placeholder.
func ValidateTemplate(agentID, tmpl string) error {
	if n := strings.Count(tmpl, Placeholder); n != 1 {
		return newValidationError(CodeInvalidTemplate, agentID,
			"prompt template of agent '%s' must contain exactly one %s placeholder, found %d", agentID, Placeholder, n)
	}
	return nil
}

// RenderPrompt fills the template placeholder with input.
func RenderPrompt(tmpl, input string) string {
	return strings.Replace(tmpl, Placeholder, input, 1)
}
