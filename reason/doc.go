// Package reason implements the reasoning step contract: given the
// conversation so far, the run trace, and the tools available to the agent,
// ask the language model for exactly one step and parse its reply into either
// a thought with an optional tool call or a final answer.
//
// Parsing is deliberately forgiving. Models drift from the requested output
// format under load; a reply that fits neither shape becomes a plain thought
// rather than an error, and the loop decides what to do next.
package reason
