package shell

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loqalabs/voicenav/internal/command"
	"github.com/loqalabs/voicenav/internal/notify"
	"github.com/loqalabs/voicenav/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Envelope is the websocket frame sent to connected shells.
type Envelope struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	TypeNavigate     = "navigate"
	TypeEffect       = "effect"
	TypeNotification = "notification"
	TypeState        = "state"
)

// Hub pushes shell commands to every connected websocket client.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the shell is served from another origin during development
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With(slog.String("component", "shell-hub")),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("shell connected", slog.String("remote", r.RemoteAddr), slog.Int("clients", count))

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of connected shells.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues env for every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(env Envelope) error {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow shell client")
			h.removeLocked(c)
		}
	}
	return nil
}

func (h *Hub) Navigate(_ context.Context, path string) error {
	return h.Broadcast(Envelope{Type: TypeNavigate, Payload: protocol.NavigateCommand{Path: path, Timestamp: time.Now().UTC()}})
}

func (h *Hub) RunEffect(_ context.Context, effect command.EffectID) error {
	return h.Broadcast(Envelope{Type: TypeEffect, Payload: protocol.EffectCommand{Effect: string(effect), Timestamp: time.Now().UTC()}})
}

func (h *Hub) Notify(_ context.Context, ev notify.Event) error {
	return h.Broadcast(Envelope{Type: TypeNotification, Payload: notificationMessage(ev)})
}

func (h *Hub) PublishState(_ context.Context, state any) error {
	return h.Broadcast(Envelope{Type: TypeState, Payload: state})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
}

// readPump only services control frames; shells do not send commands.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("shell connection closed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func notificationMessage(ev notify.Event) protocol.NotificationMessage {
	n := ev.Notification
	return protocol.NotificationMessage{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Variant:     string(n.Variant),
		DurationMS:  n.Duration.Milliseconds(),
		Dismissed:   ev.Kind == notify.EventDismissed,
		Timestamp:   n.CreatedAt,
	}
}
