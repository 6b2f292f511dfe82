// Package core defines the shared data model for a ReAct run: conversation
// messages, tool call requests and results, trace steps, the mutable run
// state threaded through the loop's transitions, and the step events the
// loop streams to consumers.
package core
