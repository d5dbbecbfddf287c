package engine

import (
	"fmt"
	"strings"
)

// maxPriorResponseChars caps each prior agent response quoted into a
// sequential-mode prompt so prompt size stays bounded and deterministic.
const maxPriorResponseChars = 2000

// priorResponse is one already-accepted agent turn carried forward into
// subsequent sequential-mode prompts.
type priorResponse struct {
	agentName string
	response  string
}

func agentSystemPrompt(agent AgentConfig) string {
	return fmt.Sprintf(
		"You are %s, a specialist agent collaborating on a software task. "+
			"Ground every claim in concrete evidence: name files in backticks, "+
			"cite line numbers as 'Line N', reference functions and classes by name, "+
			"and quantify findings. To request help from a teammate, write a line "+
			"'@TheirName: your request'.",
		agent.AgentName,
	)
}

// buildTurnPrompt assembles the user prompt for an agent's turn: the task
// description, the workspace census, a tool-derived directory listing (or an
// unavailability note), and in sequential mode the truncated prior responses.
func buildTurnPrompt(task string, workspace string, toolNote string, priors []priorResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	fmt.Fprintf(&b, "Workspace summary:\n%s\n", workspace)
	if toolNote != "" {
		fmt.Fprintf(&b, "\n%s\n", toolNote)
	}

	if len(priors) > 0 {
		b.WriteString("\nPrior agent findings:\n")
		for _, prior := range priors {
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", prior.agentName, truncate(prior.response, maxPriorResponseChars))
		}
	}

	b.WriteString("\nProvide your analysis with concrete evidence.")
	return b.String()
}

// retryPrompt is the single stricter follow-up issued when a response fails
// the concreteness check. Whatever comes back is accepted unconditionally.
func retryPrompt(task string) string {
	return fmt.Sprintf(
		"Your previous answer was too generic. Task: %s\n\n"+
			"Respond again and be specific: name the exact files you examined in "+
			"backticks, cite line numbers as 'Line N', name the functions and "+
			"classes involved, and quantify what you found (e.g. 'Found 3 issues').",
		task,
	)
}

// handoffPrompt frames a colleague request for the target agent's context.
func handoffPrompt(fromName, message string) string {
	return fmt.Sprintf("Your colleague %s asks: %s\n\nAnswer their request directly.", fromName, message)
}

// summaryPrompt asks for the consolidated executive summary over every
// conversation entry.
func summaryPrompt(task string, findings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	b.WriteString("Below are the findings from each agent. Produce a structured markdown executive summary with sections: Overview, Key Findings, Risk Assessment (high/medium/low), Next Steps.\n")
	for _, finding := range findings {
		fmt.Fprintf(&b, "\n%s\n", finding)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... [truncated]"
}
