package reason

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/internal/util"
	"github.com/reagent-ai/reagent/tool"
)

const (
	thoughtMarker     = "Thought:"
	actionMarker      = "Action:"
	actionInputMarker = "Action Input:"
	finalAnswerMarker = "Final Answer:"
)

const systemPromptTemplate = `{{ .persona }}

You work in single reasoning steps. On every turn, reply with exactly one of
the two forms below and nothing else.

To call a tool:

Thought: <why this tool helps>
Action: <tool name>
Action Input: <JSON object of arguments>

To answer the user:

Thought: <short summary of what you concluded>
Final Answer: <the answer>

{{ .tools }}

Call at most one tool per turn. Never call a tool with the same arguments
twice. When no tool fits, answer directly.`

const forceFinalInstruction = `Your reasoning budget is spent. Do not request any tool. Reply with:

Final Answer: <your best answer using only the observations above>`

const defaultPersona = "You are a helpful assistant that reasons step by step and may call tools."

// renderToolSection formats the tool catalog for the system prompt. An empty
// catalog produces an explicit "no tools" line so the model never invents one.
func renderToolSection(defs []tool.Definition) string {
	if len(defs) == 0 {
		return "No tools are available. Always answer directly."
	}
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, def := range defs {
		schema, err := json.Marshal(def.ParameterSchema)
		if err != nil || def.ParameterSchema == nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", def.Name, def.Description, schema)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildSystemPrompt assembles the step instruction for one model call.
func buildSystemPrompt(persona string, defs []tool.Definition, forceFinal bool) (string, error) {
	if persona == "" {
		persona = defaultPersona
	}
	rendered, err := util.RenderTemplate(systemPromptTemplate, map[string]any{
		"persona": persona,
		"tools":   renderToolSection(defs),
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	if forceFinal {
		rendered = rendered + "\n\n" + forceFinalInstruction
	}
	return rendered, nil
}

// renderObservations summarizes prior observations for the forced-final pass,
// so the model sees the evidence even when trace messages got truncated.
func renderObservations(trace []core.ReActStep) string {
	var b strings.Builder
	for _, step := range trace {
		if step.Type != core.StepObservation {
			continue
		}
		fmt.Fprintf(&b, "Observation (%s): %s\n", step.ToolName, step.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
