package reason

import (
	"encoding/json"
	"strings"
)

// Thought is one reasoning step, optionally proposing a tool call.
// ToolName is empty when the model produced reasoning without an action.
type Thought struct {
	Text     string
	ToolName string
	ToolArgs map[string]any
}

// FinalAnswer terminates a run with the answer text. Thought carries the
// reasoning that preceded the answer, when the model provided one.
type FinalAnswer struct {
	Text    string
	Thought string
}

// Outcome is the tagged union produced by one reasoning step: exactly one of
// Thought or Final is non-nil.
type Outcome struct {
	Thought *Thought
	Final   *FinalAnswer
}

// IsFinal reports whether the outcome terminates the run.
func (o Outcome) IsFinal() bool { return o.Final != nil }

// parseOutcome turns raw model output into an Outcome. The accepted grammar
// is marker-line based ("Thought:", "Action:", "Action Input:",
// "Final Answer:"); anything that doesn't fit becomes a plain Thought.
func parseOutcome(raw string) Outcome {
	raw = strings.TrimSpace(raw)

	if idx := indexMarker(raw, finalAnswerMarker); idx >= 0 {
		answer := strings.TrimSpace(raw[idx+len(finalAnswerMarker):])
		return Outcome{Final: &FinalAnswer{
			Text:    answer,
			Thought: extractSection(raw, thoughtMarker, finalAnswerMarker),
		}}
	}

	thought := extractSection(raw, thoughtMarker, actionMarker)
	actionName := strings.TrimSpace(firstLine(extractSection(raw, actionMarker, actionInputMarker)))
	actionInput := extractSection(raw, actionInputMarker, "")

	if actionName == "" {
		if thought == "" {
			thought = raw
		}
		return Outcome{Thought: &Thought{Text: thought}}
	}

	args, ok := parseArguments(actionInput)
	if !ok {
		// Unparseable arguments: surface the problem as reasoning text so
		// the next step can correct itself instead of failing the run.
		return Outcome{Thought: &Thought{
			Text: thought + "\n(the previous Action Input was not a valid JSON object)",
		}}
	}
	if thought == "" {
		thought = "Calling " + actionName
	}
	return Outcome{Thought: &Thought{Text: thought, ToolName: actionName, ToolArgs: args}}
}

// parseArguments accepts a JSON object, possibly fenced in markdown, or an
// empty input (zero-argument tools).
func parseArguments(input string) (map[string]any, bool) {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return nil, false
	}
	return args, true
}

// indexMarker finds a marker at the start of a line (or of the whole text).
func indexMarker(text, marker string) int {
	if strings.HasPrefix(text, marker) {
		return 0
	}
	if idx := strings.Index(text, "\n"+marker); idx >= 0 {
		return idx + 1
	}
	return -1
}

// extractSection returns the trimmed text between a marker and the next
// marker (or end of text when endMarker is empty or absent).
func extractSection(text, marker, endMarker string) string {
	start := indexMarker(text, marker)
	if start < 0 {
		return ""
	}
	rest := text[start+len(marker):]
	if endMarker != "" {
		if end := indexMarker(rest, endMarker); end >= 0 {
			rest = rest[:end]
		}
	}
	return strings.TrimSpace(rest)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
