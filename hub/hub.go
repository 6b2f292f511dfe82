// Package hub provides the process-wide connection registry: one live
// bidirectional connection per session, safe under concurrent
// connect/disconnect, with per-connection buffered writer goroutines.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reagent-ai/reagent/logging"
)

// Conn is the transport surface the registry needs. *websocket.Conn
// satisfies it; tests substitute an in-memory fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection wraps one live client channel. The registry owns the mapping
// from session to Connection; the transport layer owns the underlying Conn.
type Connection struct {
	SessionID string

	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// close stops the writer and closes the transport. Safe to call repeatedly.
func (c *Connection) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Options configure a Registry.
type Options struct {
	// SendBuffer is the per-connection outbound queue size. A connection
	// whose queue overflows is considered dead and dropped.
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       logging.Logger
}

// Registry is the process-wide session-to-connection table. A session has at
// most one live connection; registering a second one replaces (and closes)
// the first.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger logging.Logger
	opts   Options
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Registry{conns: map[string]*Connection{}, logger: opts.Logger, opts: opts}
}

// Register binds a connection to a session and starts its writer. An existing
// connection for the same session is closed and replaced.
func (r *Registry) Register(sessionID string, c Conn) *Connection {
	cn := &Connection{
		SessionID: sessionID,
		conn:      c,
		send:      make(chan []byte, r.opts.SendBuffer),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	prev := r.conns[sessionID]
	r.conns[sessionID] = cn
	r.mu.Unlock()

	if prev != nil {
		prev.close()
		r.logger.Warn("hub.connection.replaced", "session_id", sessionID)
	}

	go r.writePump(cn)
	r.logger.Info("hub.connection.registered", "session_id", sessionID)
	return cn
}

// Unregister removes the session's connection and closes it. Removing an
// unknown session is a no-op.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	cn := r.conns[sessionID]
	delete(r.conns, sessionID)
	r.mu.Unlock()

	if cn != nil {
		cn.close()
		r.logger.Info("hub.connection.unregistered", "session_id", sessionID)
	}
}

// Send queues data for the session's connection. It reports false when the
// session has no live connection or the connection's queue is full; a full
// queue drops the connection, leaving final cleanup to disconnect handling.
func (r *Registry) Send(sessionID string, data []byte) bool {
	r.mu.RLock()
	cn := r.conns[sessionID]
	r.mu.RUnlock()
	if cn == nil {
		return false
	}

	select {
	case cn.send <- data:
		return true
	case <-cn.done:
		return false
	default:
		// Drop the overflowed connection itself, not whatever the table
		// currently maps the session to; a replacement may have registered
		// since the lookup above.
		r.logger.Warn("hub.send.overflow", "session_id", sessionID)
		r.dropIfCurrent(cn)
		return false
	}
}

// SendJSON marshals v and sends it to the session's connection.
func (r *Registry) SendJSON(sessionID string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("hub.send.marshal_failed", "session_id", sessionID, "error", err)
		return false
	}
	return r.Send(sessionID, data)
}

// Broadcast queues data for every live connection.
func (r *Registry) Broadcast(data []byte) {
	r.mu.RLock()
	sessions := make([]string, 0, len(r.conns))
	for id := range r.conns {
		sessions = append(sessions, id)
	}
	r.mu.RUnlock()

	for _, id := range sessions {
		r.Send(id, data)
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (r *Registry) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Broadcast(data)
	return nil
}

// Active reports whether the session has a live connection.
func (r *Registry) Active(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[sessionID]
	return ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close tears down every connection; part of process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = map[string]*Connection{}
	r.mu.Unlock()

	for _, cn := range conns {
		cn.close()
	}
}

// Drop closes cn and removes it from the table only if it is still the
// session's registered connection. Disconnect handlers use this instead of
// Unregister so a replacement connection is never evicted.
func (r *Registry) Drop(cn *Connection) {
	r.dropIfCurrent(cn)
}

// writePump drains the connection's queue onto the wire and keeps the
// connection alive with pings. It exits when the connection is closed or a
// write fails.
func (r *Registry) writePump(cn *Connection) {
	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()

	deadline := func(c Conn) {
		if wd, ok := c.(interface{ SetWriteDeadline(time.Time) error }); ok {
			_ = wd.SetWriteDeadline(time.Now().Add(r.opts.WriteTimeout))
		}
	}

	for {
		select {
		case <-cn.done:
			return
		case data := <-cn.send:
			deadline(cn.conn)
			if err := cn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				r.logger.Warn("hub.write.failed", "session_id", cn.SessionID, "error", err)
				r.dropIfCurrent(cn)
				return
			}
		case <-ticker.C:
			deadline(cn.conn)
			if err := cn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				r.dropIfCurrent(cn)
				return
			}
		}
	}
}

// dropIfCurrent removes cn from the table only if it is still the session's
// registered connection, so a replacement connection is never evicted.
func (r *Registry) dropIfCurrent(cn *Connection) {
	r.mu.Lock()
	if r.conns[cn.SessionID] == cn {
		delete(r.conns, cn.SessionID)
	}
	r.mu.Unlock()
	cn.close()
}
