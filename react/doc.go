// Package react implements the Reason-Act-Observe loop: an explicit state
// machine that alternates between asking the reasoning engine for a step,
// executing the proposed tool call, and folding the observation back into the
// conversation, until a final answer is produced or the iteration budget runs
// out.
//
// A Loop is single use. Run yields a lazy stream of step events that a
// consumer can forward to a live connection while the run is still in flight;
// restarting requires a new Loop instance.
package react
