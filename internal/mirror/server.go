// Package mirror serves a detached live view of the current session over
// WebSocket. A connecting client is just another output sink: it receives
// the retained history first, then live chunks, then the terminal event,
// in the same order as every other view. Clients may also launch, feed,
// and kill sessions through the same connection.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cmdmenu/internal/engine"
	"cmdmenu/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	// sendBufferSize bounds a client's outbound queue. A client that
	// cannot keep up is disconnected rather than silently skipping
	// chunks, which would break the identical-order guarantee.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // mirror binds to localhost by default
	},
}

// Server bridges mirror clients and the session registry.
type Server struct {
	reg    *engine.Registry
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*client]bool

	httpServer *http.Server
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	mu       sync.Mutex
	attached map[string]bool // session IDs this client's sink follows
	sink     *wsSink
	closed   bool
}

// New creates a mirror server for the given registry. It registers for
// launch notifications so connected clients follow sessions started from
// any surface.
func New(reg *engine.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reg:     reg,
		logger:  logger,
		clients: make(map[*client]bool),
	}
	reg.OnLaunch(func(sess engine.Session) {
		s.attachAllClients(sess.ID)
	})
	return s
}

// Handler returns the HTTP handler: the WebSocket endpoint plus a small
// status endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /session", s.handleSessionStatus)
	return mux
}

// ListenAndServe runs the mirror on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes the listener and all client connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clientsMu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleSessionStatus reports the most recent session as JSON.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.reg.Current()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.Write([]byte(`{"state":"idle"}`))
		return
	}
	json.NewEncoder(w).Encode(sess)
}

// handleWebSocket upgrades an HTTP connection and attaches the client to
// the current session, if any.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		server:   s,
		attached: make(map[string]bool),
	}
	c.sink = &wsSink{client: c}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	if sess, ok := s.reg.Current(); ok {
		s.attachClient(c, sess.ID)
	}

	go c.writePump()
	go c.readPump()
}

// attachAllClients subscribes every connected client to a session.
func (s *Server) attachAllClients(sessionID string) {
	s.clientsMu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.attachClient(c, sessionID)
	}
}

func (s *Server) attachClient(c *client, sessionID string) {
	c.mu.Lock()
	if c.closed || c.attached[sessionID] {
		c.mu.Unlock()
		return
	}
	c.attached[sessionID] = true
	c.mu.Unlock()

	if err := s.reg.Attach(sessionID, c.sink); err != nil {
		s.logger.Warn("mirror attach failed", "session", sessionID, "err", err)
	}
}

// removeClient cleans up a disconnected client.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	attached := make([]string, 0, len(c.attached))
	for id := range c.attached {
		attached = append(attached, id)
	}
	c.mu.Unlock()

	for _, id := range attached {
		s.reg.Detach(id, c.sink)
	}
	close(c.send)
}

// readPump reads control messages from the client.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", "err", err)
			}
			return
		}
		c.server.handleMessage(c, message)
	}
}

// writePump writes queued messages and keepalive pings to the client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeSessionLaunch:
		s.handleLaunch(c, msg)
	case protocol.TypeSessionInput:
		s.handleInput(c, msg)
	case protocol.TypeSessionKill:
		s.handleKill(c, msg)
	}
}

func (s *Server) handleLaunch(c *client, msg *protocol.Message) {
	var payload protocol.SessionLaunchPayload
	json.Unmarshal(msg.Payload, &payload)

	_, err := s.reg.Launch(payload.Command)
	if err != nil {
		code := protocol.ErrLaunchFailed
		if errors.Is(err, engine.ErrAlreadyRunning) {
			code = protocol.ErrAlreadyRunning
		}
		s.sendError(c, code, err.Error())
	}
	// On success the OnLaunch hook attaches every client, including this
	// one, so the started event arrives through the sink.
}

func (s *Server) handleInput(c *client, msg *protocol.Message) {
	var payload protocol.SessionInputPayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.reg.SendInput(payload.SessionID, payload.Text); err != nil {
		s.sendError(c, protocol.ErrInputRejected, err.Error())
	}
}

func (s *Server) handleKill(c *client, msg *protocol.Message) {
	var payload protocol.SessionKillPayload
	json.Unmarshal(msg.Payload, &payload)

	// Kill blocks for up to two grace periods when the process resists;
	// keep the read loop responsive.
	go func() {
		err := s.reg.Kill(payload.SessionID)
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrKillTimeout):
			s.sendError(c, protocol.ErrKillTimeout, err.Error())
		case errors.Is(err, engine.ErrNotRunning):
			s.sendError(c, protocol.ErrNotRunning, err.Error())
		default:
			s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		}
	}()
}

func (s *Server) sendError(c *client, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

// enqueue queues data for the client, disconnecting it when the queue is
// full. Dropping individual messages would reorder the stream relative to
// other sinks; a disconnect is detectable and recoverable.
func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.server.logger.Warn("mirror client too slow, disconnecting")
		c.conn.Close()
	}
}

// wsSink adapts a mirror client to the engine's Sink interface. Deliver
// runs on the sink's queue goroutine, never on a pump goroutine.
type wsSink struct {
	client *client
}

func (s *wsSink) Deliver(ev engine.Event) {
	msg, err := messageFor(ev)
	if err != nil || msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.client.enqueue(data)
}

// messageFor translates an engine event into its wire message.
func messageFor(ev engine.Event) (*protocol.Message, error) {
	switch ev.Kind {
	case engine.EventStarted:
		return protocol.NewMessage(protocol.TypeSessionStarted, protocol.SessionStartedPayload{
			SessionID: ev.SessionID,
			Command:   ev.Command,
			PID:       ev.PID,
			StartedAt: ev.Timestamp.Format(time.RFC3339Nano),
		})
	case engine.EventChunk:
		return protocol.NewMessage(protocol.TypeSessionOutput, protocol.SessionOutputPayload{
			SessionID: ev.SessionID,
			Stream:    string(ev.Chunk.Stream),
			Text:      ev.Chunk.Text,
			Seq:       ev.Chunk.Seq,
		})
	case engine.EventExited:
		return protocol.NewMessage(protocol.TypeSessionExited, protocol.SessionExitedPayload{
			SessionID: ev.SessionID,
			ExitCode:  ev.ExitCode,
		})
	case engine.EventKilled:
		return protocol.NewMessage(protocol.TypeSessionKilled, protocol.SessionKilledPayload{
			SessionID: ev.SessionID,
		})
	case engine.EventFailed:
		return protocol.NewMessage(protocol.TypeSessionFailed, protocol.SessionFailedPayload{
			SessionID: ev.SessionID,
			Reason:    ev.Reason,
		})
	}
	return nil, nil
}
