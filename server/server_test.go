package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reagent-ai/reagent/hub"
	"github.com/reagent-ai/reagent/model"
	"github.com/reagent-ai/reagent/store"
	"github.com/reagent-ai/reagent/stream"
	"github.com/reagent-ai/reagent/tool"
)

const testToken = "secret"

type testEnv struct {
	store *store.MemoryStore
	srv   *Server
	http  *httptest.Server
}

func newEnv(t *testing.T, factory ModelFactory) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	srv := New(st, hub.NewRegistry(), func(o *Options) {
		o.AuthToken = testToken
		o.DefaultAgent = store.AgentConfig{
			ID:       "default",
			Name:     "Assistant",
			Type:     "react",
			Provider: "mock",
			Model:    "mock-1",
			Enabled:  true,
		}
		o.ModelFactory = factory
		o.MaxIterations = 3
		o.RunTimeout = 5 * time.Second
	})

	echoTool := tool.NewFunctionTool("echo", "Echo the given text back.", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return fmt.Sprintf("Echoed: %v", args["text"]), nil
	})
	require.NoError(t, srv.RegisterLocalTool(context.Background(), echoTool))

	e := echo.New()
	srv.Routes(e)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	return &testEnv{store: st, srv: srv, http: ts}
}

func (env *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws" + query
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// readUntil reads frames until one of the given terminal types arrives,
// returning everything read including that frame.
func readUntil(t *testing.T, c *websocket.Conn, terminals ...string) []map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frames []map[string]any
	for {
		_, data, err := c.ReadMessage()
		require.NoError(t, err)

		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		frames = append(frames, frame)

		msgType, _ := frame["type"].(string)
		for _, terminal := range terminals {
			if msgType == terminal {
				return frames
			}
		}
	}
}

func frameTypes(frames []map[string]any) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		s, _ := f["type"].(string)
		types = append(types, s)
	}
	return types
}

func mockFactory(m model.Model) ModelFactory {
	return func(store.AgentConfig) (model.Model, error) { return m, nil }
}

func TestRejectsMissingToken(t *testing.T) {
	env := newEnv(t, mockFactory(model.NewMockModel()))

	c := env.dial(t, "")
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err := c.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "Authentication required", closeErr.Text)
}

func TestRejectsWrongToken(t *testing.T) {
	env := newEnv(t, mockFactory(model.NewMockModel()))

	c := env.dial(t, "?token=wrong")
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, _, err := c.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "Invalid authentication", closeErr.Text)
}

func TestSendsConnectedWelcome(t *testing.T) {
	env := newEnv(t, mockFactory(model.NewMockModel()))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-1")
	frames := readUntil(t, c, stream.TypeConnected)

	require.Len(t, frames, 1)
	assert.Equal(t, "sess-1", frames[0]["session_id"])
	assert.NotEmpty(t, frames[0]["message_types"])
}

func TestPathSessionForm(t *testing.T) {
	env := newEnv(t, mockFactory(model.NewMockModel()))

	c := env.dial(t, "/sess-path?token="+testToken)
	frames := readUntil(t, c, stream.TypeConnected)

	require.Len(t, frames, 1)
	assert.Equal(t, "sess-path", frames[0]["session_id"])
}

func TestFullRunStreamsAndPersists(t *testing.T) {
	mock := model.NewMockModel(
		"Thought: I should echo the greeting.\nAction: echo\nAction Input: {\"text\": \"hi\"}",
		"Thought: The tool answered.\nFinal Answer: Echoed: hi",
	)
	env := newEnv(t, mockFactory(mock))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-run")
	readUntil(t, c, stream.TypeConnected)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("please echo hi")))
	frames := readUntil(t, c, stream.TypeComplete, stream.TypeError)
	types := frameTypes(frames)

	assert.Equal(t, stream.TypeAck, types[0])
	assert.Equal(t, stream.TypeAgentInfo, types[1])
	assert.Contains(t, types, stream.TypeThinking)
	assert.Contains(t, types, stream.TypeToolCall)
	assert.Contains(t, types, stream.TypeToolResult)
	assert.Contains(t, types, stream.TypeStream)
	assert.Equal(t, stream.TypeComplete, types[len(types)-1])

	final := frames[len(frames)-1]
	assert.Equal(t, "Echoed: hi", final["full_response"])
	assert.Equal(t, "default", final["agent_id"])
	assert.EqualValues(t, 4, final["total_steps"])

	// Both conversation turns are persisted.
	msgs, err := env.store.Messages(context.Background(), "sess-run", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "please echo hi", msgs[0].Body.Content)
	assert.Equal(t, "Echoed: hi", msgs[1].Body.Content)
}

func TestSecondMessageWaitsForFirstRun(t *testing.T) {
	mock := model.NewMockModel(
		"Thought: done.\nFinal Answer: one",
		"Thought: done.\nFinal Answer: two",
	)
	env := newEnv(t, mockFactory(mock))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-seq")
	readUntil(t, c, stream.TypeConnected)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("first")))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("second")))

	first := readUntil(t, c, stream.TypeComplete)
	second := readUntil(t, c, stream.TypeComplete)

	assert.Equal(t, "one", first[len(first)-1]["full_response"])
	assert.Equal(t, "two", second[len(second)-1]["full_response"])

	// The second run's ack comes only after the first run completed.
	assert.Equal(t, stream.TypeAck, frameTypes(second)[0])
}

func TestEmptyMessageRejectedWithoutRun(t *testing.T) {
	mock := model.NewMockModel()
	env := newEnv(t, mockFactory(mock))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-empty")
	readUntil(t, c, stream.TypeConnected)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("   ")))
	frames := readUntil(t, c, stream.TypeError)

	assert.Equal(t, []string{stream.TypeError}, frameTypes(frames))
	assert.Zero(t, mock.CallCount())
}

func TestUnknownAgentReportsError(t *testing.T) {
	env := newEnv(t, mockFactory(model.NewMockModel()))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-agent")
	readUntil(t, c, stream.TypeConnected)

	payload := `{"message": "hello", "agent_id": "nope"}`
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(payload)))
	frames := readUntil(t, c, stream.TypeError)

	types := frameTypes(frames)
	assert.Equal(t, stream.TypeAck, types[0])
	errText, _ := frames[len(frames)-1]["error"].(string)
	assert.Contains(t, errText, `agent "nope" not found`)
}

func TestStoredAgentOverridesDefault(t *testing.T) {
	mock := model.NewMockModel("Thought: ok.\nFinal Answer: from researcher")
	env := newEnv(t, mockFactory(mock))

	require.NoError(t, env.store.UpsertAgent(context.Background(), store.AgentConfig{
		ID:       "researcher",
		Name:     "Researcher",
		Type:     "react",
		Provider: "mock",
		Model:    "mock-1",
		Enabled:  true,
	}))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-named")
	readUntil(t, c, stream.TypeConnected)

	payload := `{"message": "hello", "agent_id": "researcher"}`
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(payload)))
	frames := readUntil(t, c, stream.TypeComplete)

	var info map[string]any
	for _, f := range frames {
		if f["type"] == stream.TypeAgentInfo {
			info = f
			break
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, "Researcher", info["agent_name"])
	assert.Equal(t, "researcher", frames[len(frames)-1]["agent_id"])
}

func TestModelOverrideNotifiesClient(t *testing.T) {
	mock := model.NewMockModel("Thought: ok.\nFinal Answer: done")
	env := newEnv(t, mockFactory(mock))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-override")
	readUntil(t, c, stream.TypeConnected)

	payload := `{"message": "hello", "model": "mock-2"}`
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(payload)))
	frames := readUntil(t, c, stream.TypeComplete)

	assert.Contains(t, frameTypes(frames), stream.TypeInfo)
}

// gateModel blocks generation until released, so a test can disconnect the
// client while the run is still in flight.
type gateModel struct {
	inner *model.MockModel
	gate  chan struct{}
}

func (g *gateModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	<-g.gate
	return g.inner.Generate(ctx, req)
}

func (g *gateModel) Info() model.Info { return g.inner.Info() }

func TestRunPersistsAfterDisconnect(t *testing.T) {
	gated := &gateModel{
		inner: model.NewMockModel("Thought: ok.\nFinal Answer: saved anyway"),
		gate:  make(chan struct{}),
	}
	env := newEnv(t, mockFactory(gated))

	c := env.dial(t, "?token="+testToken+"&session_id=sess-gone")
	readUntil(t, c, stream.TypeConnected)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, c.Close())
	close(gated.gate)

	require.Eventually(t, func() bool {
		msgs, err := env.store.Messages(context.Background(), "sess-gone", 10)
		return err == nil && len(msgs) == 2 && msgs[1].Body.Content == "saved anyway"
	}, 3*time.Second, 20*time.Millisecond)
}
