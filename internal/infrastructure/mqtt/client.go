package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the MQTT broker.
//
// Subscriptions live in a client-side router rather than in the broker
// session: the connection uses a clean session and every (re)connect
// resubscribes the whole set in one request before the OnConnect callback
// runs. A retained bridge status topic reports "online" on connect, a
// graceful "offline" on Close, and an LWT "offline" on a crash.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	paho    pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics
	routes  *router

	lost     chan struct{}
	lostOnce sync.Once

	mu           sync.RWMutex
	connected    bool
	attempts     int
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. Compatible with logging.Logger and
// slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the paho router goroutine. A returned error is logged and
// otherwise ignored; a panic is recovered and logged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits up to 10s for the first connection.
// After that paho reconnects on its own with backoff between
// reconnect.initial_delay and reconnect.max_delay.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)
	c.options.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	c.options.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) { c.handleReconnecting() })

	c.paho = pahomqtt.NewClient(c.options)
	if err := await(c.paho.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have executed yet.
	c.setConnected(true)
	return c, nil
}

// newClient builds an unconnected client with options and LWT applied.
func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix, cfg.DiscoveryPrefix),
		routes: newRouter(),
		lost:   make(chan struct{}),
	}
	c.options = buildClientOptions(cfg)
	c.options.SetDefaultPublishHandler(c.deliver)
	configureLWT(c.options, c.topics, cfg.Broker.ClientID)
	return c
}

// Topics returns the topic builder for the configured prefixes.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured QoS level, or 1 when it is out of range.
func (c *Client) QoS() byte {
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return 1
	}
	return byte(c.cfg.QoS)
}

func (c *Client) handleConnect() {
	c.mu.Lock()
	c.connected = true
	c.attempts = 0
	c.mu.Unlock()

	if filters := c.routes.filters(); len(filters) > 0 {
		if err := await(c.paho.SubscribeMultiple(filters, nil), defaultPublishTimeout); err != nil {
			c.warn("MQTT resubscribe failed", "subscriptions", len(filters), "error", err)
		}
	}
	c.publishStatus("online", "")

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	callback := c.onDisconnect
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// handleReconnecting runs before every reconnect attempt. Once
// reconnect.max_attempts attempts have failed in a row it stops paho and
// closes Lost; zero means retry forever.
func (c *Client) handleReconnecting() {
	c.mu.Lock()
	c.attempts++
	n := c.attempts
	c.mu.Unlock()

	limit := c.cfg.Reconnect.MaxAttempts
	if limit <= 0 || n <= limit {
		c.warn("MQTT reconnecting", "attempt", n)
		return
	}

	c.warn("MQTT reconnect attempts exhausted", "attempts", limit)
	c.lostOnce.Do(func() { close(c.lost) })
	// Disconnect waits on the goroutine that called us.
	go c.paho.Disconnect(0)
}

// Lost is closed when the client has given up reconnecting.
func (c *Client) Lost() <-chan struct{} {
	return c.lost
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) publishStatus(status, reason string) {
	payload := statusPayload(status, c.cfg.Broker.ClientID, reason)
	//nolint:errcheck // Status is best effort; the LWT covers a lost connection
	await(c.paho.Publish(c.topics.BridgeStatus(), c.QoS(), true, payload), defaultPublishTimeout)
}

// Close publishes a graceful offline status, distinct from the LWT, and
// disconnects.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus("offline", "graceful_shutdown")
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect sets a callback invoked after every (re)connection, once
// subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets a logger for handler errors and recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) warn(msg string, args ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

// deliver is the paho default publish handler.
func (c *Client) deliver(_ pahomqtt.Client, msg pahomqtt.Message) {
	for _, handler := range c.routes.match(msg.Topic()) {
		c.invoke(handler, msg.Topic(), msg.Payload())
	}
}

// invoke runs one handler, isolating the router goroutine from its panics.
func (c *Client) invoke(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.mu.RLock()
			logger := c.logger
			c.mu.RUnlock()
			if logger != nil {
				logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.warn("MQTT handler returned error", "topic", topic, "error", err)
	}
}

// await waits for a paho token and folds a timeout into its error.
func await(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}
