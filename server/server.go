// Package server exposes the agent over an authenticated WebSocket endpoint.
// Each connection is bound to a session; inbound chat messages are handled
// strictly in order, one reasoning run per message, with run events streamed
// back through the session hub.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/reagent-ai/reagent/hub"
	"github.com/reagent-ai/reagent/logging"
	"github.com/reagent-ai/reagent/store"
	"github.com/reagent-ai/reagent/stream"
	"github.com/reagent-ai/reagent/tool"
)

const (
	maxMessageSize = 64 * 1024
	pongWait       = 60 * time.Second
	closeWait      = time.Second
)

// Options configures the WebSocket server.
type Options struct {
	// AuthToken is the bearer token clients must present as the "token"
	// query parameter.
	AuthToken string
	// DefaultAgent is used when the client does not name an agent and the
	// store has no matching configuration.
	DefaultAgent store.AgentConfig
	// MaxIterations is the loop budget for agents that do not set their own.
	MaxIterations int
	// RunTimeout is the wall-clock budget for one run.
	RunTimeout time.Duration
	// HistoryLimit caps how many prior messages seed a run's context.
	HistoryLimit int
	// ModelFactory builds the model for an agent configuration. The default
	// factory supports the openai, anthropic, and mock providers.
	ModelFactory ModelFactory
	// APIKeys maps provider name to API key for the default factory.
	APIKeys map[string]string

	Logger logging.Logger
}

// Server upgrades HTTP requests to WebSocket sessions and drives reasoning
// runs for each inbound message.
type Server struct {
	store      store.Store
	registry   *hub.Registry
	dispatcher *stream.Dispatcher
	tools      *tool.Registry
	upgrader   websocket.Upgrader
	logger     logging.Logger
	opts       Options
}

// New creates a server on top of the given store and connection registry.
// Tool definitions are read from the store at the start of every run, so
// catalog changes apply to the next run without a restart.
func New(st store.Store, registry *hub.Registry, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxIterations: 5,
		RunTimeout:    2 * time.Minute,
		HistoryLimit:  50,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		store:      st,
		registry:   registry,
		dispatcher: stream.NewDispatcher(registry, func(o *stream.DispatcherOptions) { o.Logger = opts.Logger }),
		tools:      tool.NewRegistry(st),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: opts.Logger,
		opts:   opts,
	}
	if s.opts.ModelFactory == nil {
		s.opts.ModelFactory = s.defaultModelFactory
	}
	return s
}

// RegisterLocalTool adds a process-local function tool and records its
// definition in the catalog so every agent can use it.
func (s *Server) RegisterLocalTool(ctx context.Context, t *tool.FunctionTool) error {
	s.tools.RegisterFunction(t)
	return s.store.UpsertTool(ctx, tool.Definition{
		Name:            t.Name(),
		Description:     t.Description(),
		ParameterSchema: t.Parameters(),
		Enabled:         true,
		Kind:            tool.KindFunction,
	})
}

// Routes binds the WebSocket and health endpoints. The session may come from
// the path or the session_id query parameter; both forms are accepted.
func (s *Server) Routes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
	e.GET("/ws/:session_id", s.HandleWebSocket)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "connections": s.registry.Len()})
	})
}

// HandleWebSocket upgrades the request, authenticates it, registers the
// session, and serves the connection's message loop until disconnect.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("server.upgrade.failed", "error", err)
		return err
	}

	token := c.QueryParam("token")
	if token == "" {
		s.rejectConn(ws, "Authentication required")
		return nil
	}
	if token != s.opts.AuthToken {
		s.rejectConn(ws, "Invalid authentication")
		return nil
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		sessionID = c.QueryParam("session_id")
	}
	if sessionID == "" {
		sessionID = "sess_" + uuid.NewString()[:8]
	}
	userID := c.QueryParam("user_id")

	cn := s.registry.Register(sessionID, ws)
	s.registry.SendJSON(sessionID, stream.NewConnectedMessage(sessionID))
	s.logger.Info("server.session.connected", "session_id", sessionID, "user_id", userID)

	go s.readPump(cn, ws, sessionID, userID)
	return nil
}

// rejectConn closes an unauthenticated connection with a policy violation
// frame. The session is never registered.
func (s *Server) rejectConn(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	_ = ws.Close()
	s.logger.Warn("server.auth.rejected", "reason", reason)
}

// readPump reads client messages and handles them one at a time. Because
// handleMessage blocks until the run's terminal frame has been dispatched,
// a second message on the same connection never starts a run before the
// first one has finished.
func (s *Server) readPump(cn *hub.Connection, ws *websocket.Conn, sessionID, userID string) {
	defer func() {
		s.registry.Drop(cn)
		_ = ws.Close()
		s.logger.Info("server.session.disconnected", "session_id", sessionID)
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("server.read.failed", "session_id", sessionID, "error", err)
			}
			return
		}
		// Reads pause during the run; pongs are not consumed, so refresh
		// the deadline around each message instead.
		_ = ws.SetReadDeadline(time.Time{})
		s.handleMessage(sessionID, userID, data)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}
