package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
)

// Frame types.
const (
	FrameSubscribe    = "subscribe"
	FrameUnsubscribe  = "unsubscribe"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameEvent        = "event"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
)

const (
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
)

// Frame is one message on the live feed, in either direction.
//
// Clients send subscribe/unsubscribe (with Channels) and ping. The server
// sends event frames (with Channel and Payload), acknowledgements echoing
// the request ID, and error frames.
type Frame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Time     string   `json:"time,omitempty"`
	Payload  any      `json:"payload,omitempty"`
}

// Client is one connected feed consumer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done bool // guarded by hub.mu
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, clientBuffer)}
}

// enqueue queues data without blocking. Callers hold the hub lock.
func (c *Client) enqueue(data []byte) bool {
	if c.done {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the send queue once. Callers hold the hub write lock.
func (c *Client) close() {
	if !c.done {
		c.done = true
		close(c.send)
	}
}

// The feed is read-only and carries no credentials, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades to the live event feed. New clients receive
// nothing until they subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s.hub, conn)
	s.hub.Register(c)

	cfg := withWSDefaults(s.wsCfg)
	go c.writeLoop(config.Seconds(cfg.PingInterval), config.Seconds(cfg.PongTimeout))
	go c.readLoop(int64(cfg.MaxMessageSize), config.Seconds(cfg.PingInterval+cfg.PongTimeout))
}

// withWSDefaults fills unset keepalive settings.
func withWSDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	return cfg
}

// readLoop handles client frames until the connection fails. Every frame
// and every pong extends the read deadline.
func (c *Client) readLoop(limit int64, idle time.Duration) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // Connection already failing
	}()

	c.conn.SetReadLimit(limit)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	extend("") //nolint:errcheck // Deadline errors surface on the next read
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed client read failed", "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // Deadline errors surface on the next read
		c.handle(data)
	}
}

// writeLoop drains the send queue and pings on every interval.
func (c *Client) writeLoop(interval, writeWait time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Writer exiting
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Best-effort close frame
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// handle dispatches one client frame.
func (c *Client) handle(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(Frame{Type: FrameError, Payload: errorBody("invalid JSON frame")})
		return
	}

	switch in.Type {
	case FrameSubscribe:
		if err := c.hub.Subscribe(c, in.Channels); err != nil {
			c.reply(Frame{Type: FrameError, ID: in.ID, Payload: errorBody(err.Error())})
			return
		}
		c.reply(Frame{Type: FrameSubscribed, ID: in.ID, Channels: in.Channels})
	case FrameUnsubscribe:
		c.hub.Unsubscribe(c, in.Channels)
		c.reply(Frame{Type: FrameUnsubscribed, ID: in.ID, Channels: in.Channels})
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: in.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: in.ID, Payload: errorBody("unknown frame type: " + in.Type)})
	}
}

// reply queues a frame for this client only.
func (c *Client) reply(f Frame) {
	f.Time = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	c.enqueue(data)
	c.hub.mu.RUnlock()
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}
