package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reagent-ai/reagent/core"
	"github.com/reagent-ai/reagent/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureConn collects outbound frames for assertions.
type captureConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.TextMessage {
		c.frames = append(c.frames, data)
	}
	return nil
}

func (c *captureConn) Close() error { return nil }

func (c *captureConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.frames))
	for i, f := range c.frames {
		require.NoError(t, json.Unmarshal(f, &out[i]))
	}
	return out
}

func (c *captureConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *hub.Registry, *captureConn) {
	t.Helper()
	reg := hub.NewRegistry()
	t.Cleanup(reg.Close)
	cc := &captureConn{}
	reg.Register("sess-1", cc)
	return NewDispatcher(reg), reg, cc
}

func waitFrames(t *testing.T, cc *captureConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return cc.count() >= n },
		time.Second, 5*time.Millisecond)
}

func TestForwardTranslatesEventsInOrder(t *testing.T) {
	d, _, cc := newTestDispatcher(t)

	thought := core.NewThoughtStep("need slot data", "check_slot", map[string]any{"clinic_id": 7})
	action := core.NewActionStep(core.NewToolCallRequest("check_slot", map[string]any{"clinic_id": 7}))
	obs := core.NewObservationStep(core.NewToolCallResult("c1", "check_slot", "three slots"))

	events := make(chan core.StepEvent, 8)
	events <- core.NewStepAppendEvent("run-1", 0, thought)
	events <- core.NewStepAppendEvent("run-1", 1, action)
	events <- core.NewStepAppendEvent("run-1", 2, obs)
	events <- core.NewTokenEvent("run-1", "Clinic ")
	events <- core.NewTokenEvent("run-1", "7 is open.")
	events <- core.NewCompletedEvent("run-1", "Clinic 7 is open.", []core.ReActStep{thought, action, obs})
	close(events)

	terminal := d.Forward("sess-1", "agent-1", events)
	require.Equal(t, core.EventCompleted, terminal.Kind)

	waitFrames(t, cc, 6)
	msgs := cc.decoded(t)
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m["type"].(string)
		assert.NotEmpty(t, m["timestamp"], "every message carries a timestamp")
	}
	assert.Equal(t, []string{
		TypeThinking, TypeToolCall, TypeToolResult, TypeStream, TypeStream, TypeComplete,
	}, types)

	complete := msgs[5]
	assert.Equal(t, "Clinic 7 is open.", complete["full_response"])
	assert.Equal(t, float64(3), complete["total_steps"])
	assert.Equal(t, "agent-1", complete["agent_id"])
	assert.Len(t, complete["react_trace"], 3)

	thinking := msgs[0]
	assert.Equal(t, float64(0), thinking["step_index"])
	assert.Equal(t, "check_slot", thinking["tool_name"])
}

func TestForwardFailedRunBecomesErrorMessage(t *testing.T) {
	d, _, cc := newTestDispatcher(t)

	step := core.NewThoughtStep("partial", "", nil)
	events := make(chan core.StepEvent, 2)
	events <- core.NewStepAppendEvent("run-1", 0, step)
	events <- core.NewFailedEvent("run-1", errors.New("state corrupted"), []core.ReActStep{step})
	close(events)

	terminal := d.Forward("sess-1", "", events)
	require.Equal(t, core.EventFailed, terminal.Kind)

	waitFrames(t, cc, 2)
	msgs := cc.decoded(t)
	assert.Equal(t, TypeError, msgs[1]["type"])
	assert.Equal(t, "state corrupted", msgs[1]["error"])
	assert.Len(t, msgs[1]["react_trace"], 1)
}

func TestForwardDrainsAfterDisconnect(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)
	reg.Unregister("sess-1")

	events := make(chan core.StepEvent, 2)
	events <- core.NewTokenEvent("run-1", "x")
	events <- core.NewCompletedEvent("run-1", "answer", nil)
	close(events)

	// Sends fail harmlessly; the terminal event still comes back so the run
	// can be persisted.
	terminal := d.Forward("sess-1", "", events)
	assert.Equal(t, core.EventCompleted, terminal.Kind)
	assert.Equal(t, "answer", terminal.FinalAnswer)
}

func TestSendAckAndAgentInfo(t *testing.T) {
	d, _, cc := newTestDispatcher(t)

	d.SendAck("sess-1", InboundMessage{Message: "hello", AgentID: "a1", Provider: "openai", Model: "gpt-4o-mini"})
	d.SendAgentInfo("sess-1", "scheduler", "react", "openai", "gpt-4o-mini")

	waitFrames(t, cc, 2)
	msgs := cc.decoded(t)
	assert.Equal(t, TypeAck, msgs[0]["type"])
	assert.Equal(t, "hello", msgs[0]["message"])
	assert.Equal(t, TypeAgentInfo, msgs[1]["type"])
	assert.Equal(t, "scheduler", msgs[1]["agent_name"])
}

func TestSendInfoAndError(t *testing.T) {
	d, _, cc := newTestDispatcher(t)

	d.SendInfo("sess-1", "model override applied")
	d.SendError("sess-1", "agent not found", nil)

	waitFrames(t, cc, 2)
	msgs := cc.decoded(t)
	assert.Equal(t, TypeInfo, msgs[0]["type"])
	assert.Equal(t, "model override applied", msgs[0]["message"])
	assert.Equal(t, TypeError, msgs[1]["type"])
	assert.Equal(t, "agent not found", msgs[1]["error"])
	assert.NotContains(t, msgs[1], "react_trace")
}

func TestParseInbound(t *testing.T) {
	in := ParseInbound([]byte(`{"message":"hi","agent_id":"a1","provider":"openai"}`))
	assert.Equal(t, "hi", in.Message)
	assert.Equal(t, "a1", in.AgentID)
	assert.Equal(t, "openai", in.Provider)

	raw := ParseInbound([]byte("plain text question"))
	assert.Equal(t, "plain text question", raw.Message)
	assert.Empty(t, raw.AgentID)

	broken := ParseInbound([]byte("{not json"))
	assert.Equal(t, "{not json", broken.Message)
}

func TestConnectedMessageAdvertisesAllTypes(t *testing.T) {
	msg := NewConnectedMessage("sess-9")
	assert.Equal(t, TypeConnected, msg.Type)
	assert.Equal(t, "sess-9", msg.SessionID)
	assert.ElementsMatch(t, []string{
		"thinking", "tool_call", "tool_result", "stream",
		"complete", "error", "ack", "agent_info", "info", "connected",
	}, msg.MessageTypes)
	assert.NotEmpty(t, msg.Timestamp)
}
