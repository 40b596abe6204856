package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nodnarbrox/gpuxcode/internal/job"
)

// Heartbeat tuning for the per-job progress socket: a client "ping" gets an
// immediate "pong"; absent that, a "keepalive" goes out on this interval so
// proxies in between don't time out an idle connection.
const (
	wsKeepaliveInterval = 30 * time.Second
	wsWriteWait         = 10 * time.Second
	wsReadWait          = 60 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressHandler backs WS /ws/progress/{job_id}. Unlike a fan-out hub
// serving many topics, each connection subscribes directly to the one
// Job's own Subscribe/Broadcast channel.
type ProgressHandler struct {
	registry *job.Registry
	logger   *slog.Logger
}

// NewProgressHandler creates a progress-socket handler.
func NewProgressHandler(registry *job.Registry, logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHandler{registry: registry, logger: logger}
}

// RegisterRoutes mounts the WS route on router.
func (h *ProgressHandler) RegisterRoutes(router chi.Router) {
	router.Get("/ws/progress/{job_id}", h.ServeHTTP)
}

// ServeHTTP upgrades the connection and streams progress snapshots for one
// job until it disconnects or the job reaches a terminal state.
func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	j, ok := h.registry.Get(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	// Upgrade hijacks the connection; clear the server's request-cycle
	// deadlines first so they don't linger and kill a long-lived socket.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", slog.String("job_id", jobID), slog.Any("error", err))
		return
	}

	c := &progressConn{conn: conn, send: make(chan []byte, 16), done: make(chan struct{}), logger: h.logger, jobID: jobID}
	go c.writePump()
	go c.readPump()

	updates, unsubscribe := j.Subscribe(16)
	defer unsubscribe()

	c.push(j.Snapshot())
loop:
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				break loop
			}
			if !c.push(snap) {
				break loop
			}
			if snap.Status.Terminal() {
				break loop
			}
		case <-c.done:
			break loop
		}
	}
	c.closeDone()
}

type progressConn struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
	logger   *slog.Logger
	jobID    string
}

// closeDone signals the ServeHTTP select loop that the connection is gone.
// Safe to call from both readPump and writePump.
func (c *progressConn) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// push marshals and enqueues a progress snapshot, returning false if the
// connection's send buffer is full (the client has fallen behind).
func (c *progressConn) push(p job.Progress) bool {
	data, err := json.Marshal(p)
	if err != nil {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump is the send channel's only reader and the connection's only
// writer. c.send is never closed — both push() (from ServeHTTP) and
// readPump's pong reply use a non-blocking send, so a close here would
// race them. Shutdown instead goes through c.done, which ServeHTTP and
// readPump also signal.
func (c *progressConn) writePump() {
	ticker := time.NewTicker(wsKeepaliveInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
		c.conn.Close()
		c.closeDone()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"keepalive"}`)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump handles the client's side of the protocol: a "ping" text frame
// gets an immediate "pong" reply. It otherwise just drains the connection
// so control frames (pong, close) are processed.
func (c *progressConn) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsReadWait))
		return nil
	})
	defer c.closeDone()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "ping" {
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}
