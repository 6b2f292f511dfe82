package core

import "time"

// RunState is the mutable working state of one loop execution. It is created
// at loop start from the user's message and session context, mutated
// exclusively by the loop's own transition functions, and becomes immutable
// once the run reaches a terminal state. The loop runs on a single goroutine,
// so the state carries no locking; it must not be shared while the run is
// live.
type RunState struct {
	RunID     string
	SessionID string
	UserID    string
	Context   map[string]any // caller-supplied key/value context (known entities etc.)

	Messages  []Message
	Trace     []ReActStep
	Iteration int

	PendingCall *ToolCallRequest
	LastResult  *ToolCallResult

	FinalAnswer string
	Done        bool
	Err         error

	Started time.Time

	issued map[string]struct{} // fingerprints of tool calls already executed
}

// NewRunState seeds the state for a fresh run from the user message and the
// supplied session context.
func NewRunState(sessionID, userID string, userMessage Message, extra map[string]any) *RunState {
	if extra == nil {
		extra = map[string]any{}
	}
	return &RunState{
		RunID:     NewID(),
		SessionID: sessionID,
		UserID:    userID,
		Context:   extra,
		Messages:  []Message{userMessage},
		Started:   time.Now().UTC(),
		issued:    map[string]struct{}{},
	}
}

// AppendMessage adds a message to the ordered conversation list.
func (s *RunState) AppendMessage(m Message) { s.Messages = append(s.Messages, m) }

// AppendStep appends a trace step and returns its index.
func (s *RunState) AppendStep(step ReActStep) int {
	s.Trace = append(s.Trace, step)
	return len(s.Trace) - 1
}

// MarkIssued records a tool-call fingerprint and reports whether an identical
// (name, arguments) call was already executed in this run.
func (s *RunState) MarkIssued(fingerprint string) (repeat bool) {
	if _, ok := s.issued[fingerprint]; ok {
		return true
	}
	s.issued[fingerprint] = struct{}{}
	return false
}

// Finish marks the run complete with the given answer.
func (s *RunState) Finish(answer string) {
	s.FinalAnswer = answer
	s.Done = true
}

// Fail marks the run terminated by an unrecoverable error.
func (s *RunState) Fail(err error) {
	s.Err = err
	s.Done = true
}

// TraceCopy returns a defensive copy of the trace for consumers that outlive
// the run (audit records, complete/error wire messages).
func (s *RunState) TraceCopy() []ReActStep {
	out := make([]ReActStep, len(s.Trace))
	copy(out, s.Trace)
	return out
}
