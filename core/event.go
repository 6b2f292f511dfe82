package core

import "time"

// EventKind discriminates the events a run streams to its consumer.
type EventKind string

const (
	// EventStep signals a trace step was appended.
	EventStep EventKind = "step"
	// EventToken carries one token chunk of the final answer stream.
	EventToken EventKind = "token"
	// EventCompleted is the terminal success event carrying the full answer
	// and trace.
	EventCompleted EventKind = "completed"
	// EventFailed is the terminal event for a run-fatal error.
	EventFailed EventKind = "failed"
)

// StepEvent is one element of the loop's lazy event sequence. Events are
// emitted in production order: one per trace append, token events interleaved
// from the underlying model stream, then exactly one terminal event. After
// emission an event is immutable.
type StepEvent struct {
	Kind      EventKind
	RunID     string
	Timestamp time.Time

	// Kind == EventStep
	StepIndex int
	Step      ReActStep

	// Kind == EventToken
	Token string

	// Terminal kinds
	FinalAnswer string
	Trace       []ReActStep
	Err         error
}

// NewStepAppendEvent signals the step at index was appended to the trace.
func NewStepAppendEvent(runID string, index int, step ReActStep) StepEvent {
	return StepEvent{Kind: EventStep, RunID: runID, StepIndex: index, Step: step, Timestamp: time.Now().UTC()}
}

// NewTokenEvent carries one streamed token chunk of the final answer.
func NewTokenEvent(runID, token string) StepEvent {
	return StepEvent{Kind: EventToken, RunID: runID, Token: token, Timestamp: time.Now().UTC()}
}

// NewCompletedEvent is the terminal event of a successful run.
func NewCompletedEvent(runID, answer string, trace []ReActStep) StepEvent {
	return StepEvent{Kind: EventCompleted, RunID: runID, FinalAnswer: answer, Trace: trace, Timestamp: time.Now().UTC()}
}

// NewFailedEvent is the terminal event of a run ended by an unrecoverable
// error. The partial trace is attached for diagnosis.
func NewFailedEvent(runID string, err error, trace []ReActStep) StepEvent {
	return StepEvent{Kind: EventFailed, RunID: runID, Err: err, Trace: trace, Timestamp: time.Now().UTC()}
}

// Terminal reports whether the event ends the run's event sequence.
func (e StepEvent) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}
