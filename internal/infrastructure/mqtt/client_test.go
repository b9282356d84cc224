package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration that never touches a broker
// unless passed to Connect.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "ringbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix:     "ring",
		DiscoveryPrefix: "homeassistant",
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "ringbridge-test" {
		t.Errorf("ClientID = %q, want ringbridge-test", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want bridge/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without cfg.Broker.TLS")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS 1.2 minimum")
	}
}

func TestNewClient_LWT(t *testing.T) {
	c := newClient(testConfig())

	if !c.options.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if c.options.WillTopic != "ring/bridge/status" {
		t.Errorf("WillTopic = %q, want ring/bridge/status", c.options.WillTopic)
	}
	if !c.options.WillRetained || c.options.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d, want true/1", c.options.WillRetained, c.options.WillQos)
	}

	var status bridgeStatus
	if err := json.Unmarshal(c.options.WillPayload, &status); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if status.Status != "offline" || status.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v, want offline/unexpected_disconnect", status)
	}
}

func TestQoS(t *testing.T) {
	tests := []struct {
		cfg  int
		want byte
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{7, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.QoS = tt.cfg
		if got := newClient(cfg).QoS(); got != tt.want {
			t.Errorf("QoS() with cfg %d = %d, want %d", tt.cfg, got, tt.want)
		}
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestDisconnectedClient(t *testing.T) {
	c := newClient(testConfig())

	if c.IsConnected() {
		t.Error("IsConnected() = true before Connect, want false")
	}
	if err := c.Publish("ring/x", []byte("1"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	noop := func(string, []byte) error { return nil }
	if err := c.Subscribe("ring/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.Unsubscribe("ring/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig())

	if err := c.Publish("", nil, 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("ring/x", nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("ring/x", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish(large) error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("ring/#", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("ring/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestDeliver_RecoversPanic(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)
	c.routes.add("ring/x", 1, func(string, []byte) error {
		panic("boom")
	})

	c.deliver(nil, fakeMessage{topic: "ring/x"})

	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.errors))
	}
}

func TestDeliver_LogsError(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var gotTopic, gotPayload string
	c.routes.add("ring/+/alarm/lock/+/command", 1, func(topic string, payload []byte) error {
		gotTopic, gotPayload = topic, string(payload)
		return errors.New("rejected")
	})
	c.deliver(nil, fakeMessage{topic: "ring/l/alarm/lock/d/command", payload: []byte("LOCK")})

	if gotTopic != "ring/l/alarm/lock/d/command" || gotPayload != "LOCK" {
		t.Errorf("handler got %q %q", gotTopic, gotPayload)
	}
	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %d, want 1", len(logger.warns))
	}
}

func TestDeliver_NoLogger(t *testing.T) {
	c := newClient(testConfig())
	c.routes.add("ring/x", 1, func(string, []byte) error {
		panic("boom")
	})
	c.deliver(nil, fakeMessage{topic: "ring/x"})
}

func TestDeliver_FansOutToMatchingFilters(t *testing.T) {
	c := newClient(testConfig())
	var got []string
	record := func(name string) MessageHandler {
		return func(string, []byte) error {
			got = append(got, name)
			return nil
		}
	}
	c.routes.add("ring/#", 1, record("all"))
	c.routes.add("ring/loc-1/+/status", 1, record("status"))
	c.routes.add("homeassistant/status", 1, record("ha"))

	c.deliver(nil, fakeMessage{topic: "ring/loc-1/alarm/status"})

	if strings.Join(got, ",") != "all,status" {
		t.Errorf("handlers = %v, want [all status]", got)
	}
	if c.SubscriptionCount() != 3 || !c.HasSubscription("ring/#") {
		t.Errorf("SubscriptionCount() = %d, HasSubscription(ring/#) = %v", c.SubscriptionCount(), c.HasSubscription("ring/#"))
	}
}

func TestMatchFilter(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"ring/loc/status", "ring/loc/status", true},
		{"ring/loc/status", "ring/loc/state", false},
		{"ring/+/status", "ring/loc/status", true},
		{"ring/+/status", "ring/loc/x/status", false},
		{"ring/+", "ring/", true},
		{"ring/#", "ring", true},
		{"ring/#", "ring/a/b/c", true},
		{"#", "ring/a", true},
		{"ring/#/x", "ring/a/x", false},
		{"+/+", "ring", false},
		{"#", "$SYS/broker/uptime", false},
		{"$SYS/#", "$SYS/broker/uptime", true},
		{"ring/a", "ring/a/b", false},
	}
	for _, tt := range tests {
		if got := matchFilter(tt.filter, tt.topic); got != tt.want {
			t.Errorf("matchFilter(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestRouterFilters(t *testing.T) {
	r := newRouter()
	noop := func(string, []byte) error { return nil }
	r.add("ring/+/command", 1, noop)
	r.add("homeassistant/status", 0, noop)
	r.add("ring/+/command", 2, noop)

	got := r.filters()
	if len(got) != 2 || got["ring/+/command"] != 2 || got["homeassistant/status"] != 0 {
		t.Errorf("filters() = %v, want ring/+/command:2 homeassistant/status:0", got)
	}

	r.remove("ring/+/command")
	if r.has("ring/+/command") || r.len() != 1 {
		t.Errorf("after remove: has = %v, len = %d", r.has("ring/+/command"), r.len())
	}
}

func TestCallbacks(t *testing.T) {
	c := newClient(testConfig())
	var connected, disconnected bool
	var lost error
	c.SetOnConnect(func() { connected = true })
	c.SetOnDisconnect(func(err error) {
		disconnected = true
		lost = err
	})

	cause := errors.New("network gone")
	c.handleDisconnect(cause)

	if !disconnected || !errors.Is(lost, cause) {
		t.Errorf("onDisconnect called=%v err=%v, want true/%v", disconnected, lost, cause)
	}
	if connected {
		t.Error("onConnect called on disconnect")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("ring", "homeassistant")
	base := topics.DeviceBase("loc-1", ClassAlarm, "binary_sensor", "dev-4")

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"DeviceBase", base, "ring/loc-1/alarm/binary_sensor/dev-4"},
		{"CameraBase", topics.DeviceBase("loc-1", ClassCamera, "light", "cam-3"), "ring/loc-1/camera/light/cam-3"},
		{"DeviceStatus", topics.DeviceStatus(base), "ring/loc-1/alarm/binary_sensor/dev-4/status"},
		{"Attributes", topics.Attributes(base), "ring/loc-1/alarm/binary_sensor/dev-4/attributes"},
		{"EntityState", topics.EntityState(base, ""), "ring/loc-1/alarm/binary_sensor/dev-4/state"},
		{"EntityStateNamed", topics.EntityState(base, "moisture"), "ring/loc-1/alarm/binary_sensor/dev-4/moisture_state"},
		{"EntityCommand", topics.EntityCommand(base, ""), "ring/loc-1/alarm/binary_sensor/dev-4/command"},
		{"EntityCommandNamed", topics.EntityCommand(base, "brightness"), "ring/loc-1/alarm/binary_sensor/dev-4/brightness_command"},
		{"LocationStatus", topics.LocationStatus("loc-1"), "ring/loc-1/status"},
		{"BridgeStatus", topics.BridgeStatus(), "ring/bridge/status"},
		{"Discovery", topics.Discovery("binary_sensor", "loc-1", "dev-4", "moisture"), "homeassistant/binary_sensor/loc-1/dev-4_moisture/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestNewTopics_Defaults(t *testing.T) {
	topics := NewTopics("", "/")
	if topics.Prefix != DefaultTopicPrefix || topics.DiscoveryPrefix != DefaultDiscoveryPrefix {
		t.Errorf("NewTopics(empty) = %+v, want defaults", topics)
	}

	trimmed := NewTopics("/home/ring/", "ha")
	if got := trimmed.LocationStatus("l"); got != "home/ring/l/status" {
		t.Errorf("LocationStatus() = %q, want home/ring/l/status", got)
	}
}

func TestCommandTopicSegments(t *testing.T) {
	topics := NewTopics("ring", "")
	cmd := topics.EntityCommand(topics.DeviceBase("loc-1", ClassAlarm, "lock", "dev-9"), "")
	parts := strings.Split(cmd, "/")
	n := len(parts)

	if parts[n-5] != "loc-1" || parts[n-3] != "lock" || parts[n-2] != "dev-9" || parts[n-1] != "command" {
		t.Errorf("command topic %q does not decode from its tail", cmd)
	}
}

func TestHandleReconnecting_GivesUpAfterLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 2
	c := newClient(cfg)
	c.paho = pahomqtt.NewClient(c.options)
	log := &recordingLogger{}
	c.SetLogger(log)

	c.handleReconnecting()
	c.handleReconnecting()
	select {
	case <-c.Lost():
		t.Fatal("Lost() closed within the attempt limit")
	default:
	}

	c.handleReconnecting()
	c.handleReconnecting()
	select {
	case <-c.Lost():
	case <-time.After(time.Second):
		t.Fatal("Lost() not closed after exceeding the attempt limit")
	}
}

func TestHandleReconnecting_UnlimitedAndResetOnConnect(t *testing.T) {
	c := newClient(testConfig())
	c.paho = pahomqtt.NewClient(c.options)

	for range 50 {
		c.handleReconnecting()
	}
	select {
	case <-c.Lost():
		t.Fatal("Lost() closed with max_attempts 0")
	default:
	}

	c.handleConnect()
	c.mu.RLock()
	attempts := c.attempts
	c.mu.RUnlock()
	if attempts != 0 {
		t.Errorf("attempts after connect = %d, want 0", attempts)
	}
}
