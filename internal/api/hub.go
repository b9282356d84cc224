package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/ringbridge/internal/infrastructure/logging"
)

// Event channels a client may subscribe to.
const (
	ChannelState        = "state"
	ChannelAvailability = "availability"
	ChannelDing         = "ding"
	ChannelCommand      = "command"
)

// clientBuffer is the per-client outbound frame buffer. A client that falls
// this far behind loses frames rather than stalling the engine.
const clientBuffer = 256

// ErrUnknownChannel is returned when subscribing to a channel the hub
// never broadcasts on.
var ErrUnknownChannel = errors.New("api: unknown channel")

// Hub fans engine events out to feed clients, indexed by channel.
//
// Thread Safety: All methods are safe for concurrent use. The hub lock
// guards both the index and every client's send channel, so a broadcast can
// never race a close.
type Hub struct {
	logger *logging.Logger

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	channels map[string]map[*Client]struct{}
	closed   bool

	dropped atomic.Uint64
}

// NewHub creates an empty hub. Satisfies bridge.EventSink.
func NewHub(logger *logging.Logger) *Hub {
	channels := make(map[string]map[*Client]struct{}, 4)
	for _, ch := range []string{ChannelState, ChannelAvailability, ChannelDing, ChannelCommand} {
		channels[ch] = make(map[*Client]struct{})
	}
	return &Hub{
		logger:   logger,
		clients:  make(map[*Client]struct{}),
		channels: channels,
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client with no subscriptions. Clients registered after
// shutdown are closed immediately.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client connected", "clients", n)
}

// Unregister removes a client from the hub and every channel, and closes its
// send queue. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for _, subs := range h.channels {
		delete(subs, c)
	}
	c.close()
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("feed client disconnected", "clients", n)
}

// Subscribe adds channels to a client. Either every channel is known and
// all are added, or nothing changes.
func (h *Hub) Subscribe(c *Client, channels []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		if _, ok := h.channels[ch]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
		}
	}
	if _, ok := h.clients[c]; !ok {
		return nil
	}
	for _, ch := range channels {
		h.channels[ch][c] = struct{}{}
	}
	return nil
}

// Unsubscribe removes channels from a client. Unknown channels are ignored.
func (h *Hub) Unsubscribe(c *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		if subs, ok := h.channels[ch]; ok {
			delete(subs, c)
		}
	}
}

// Broadcast sends payload as an event frame to every subscriber of channel.
// It never blocks: frames for a full client queue are dropped and counted.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:    FrameEvent,
		Channel: channel,
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload: payload,
	})
	if err != nil {
		h.logger.Error("failed to encode feed event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns the number of clients subscribed to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Dropped returns the number of frames discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // Shutdown
		}
		delete(h.clients, c)
	}
	for _, subs := range h.channels {
		clear(subs)
	}
}
