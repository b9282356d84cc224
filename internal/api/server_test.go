package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/ringbridge/internal/audit"
	"github.com/nerrad567/ringbridge/internal/bridge"
	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
	"github.com/nerrad567/ringbridge/internal/infrastructure/database"
	"github.com/nerrad567/ringbridge/internal/infrastructure/logging"
	"github.com/nerrad567/ringbridge/internal/metrics"
	"github.com/nerrad567/ringbridge/migrations"
)

// fakeBridge is a fixed DeviceSource.
type fakeBridge struct {
	devices   []bridge.DeviceInfo
	connected bool
}

func (f *fakeBridge) Devices() []bridge.DeviceInfo { return f.devices }
func (f *fakeBridge) BusConnected() bool           { return f.connected }

var testWSConfig = config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// testServer creates a Server over src with its own hub.
func testServer(t *testing.T, src DeviceSource, journal audit.Repository, m *metrics.Metrics) *Server {
	t.Helper()

	log := testLogger()
	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      testWSConfig,
		Logger:  log,
		Bridge:  src,
		Journal: journal,
		Metrics: m,
		Hub:     hub,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

// newJournal opens a migrated journal in a temporary database file.
func newJournal(t *testing.T) *audit.SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return audit.NewSQLiteRepository(db.DB)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Bridge: &fakeBridge{}}); err == nil {
		t.Error("New() without logger succeeded, want error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without bridge succeeded, want error")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv := testServer(t, &fakeBridge{connected: true}, nil, nil)
	w := get(t, srv.buildRouter(), "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["mqtt_connected"] != true {
		t.Errorf("mqtt_connected = %v, want true", resp["mqtt_connected"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	w := get(t, srv.buildRouter(), "/api/v1/health")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	w := get(t, srv.buildRouter(), "/api/v1/nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /devices status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeMethodNotAllowed {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeMethodNotAllowed)
	}
}

func TestNew_CreatesHubWhenNoneGiven(t *testing.T) {
	srv, err := New(Deps{Logger: testLogger(), Bridge: &fakeBridge{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Hub() == nil || !srv.ownsHub {
		t.Error("New() without Hub did not create its own")
	}

	shared := NewHub(testLogger())
	srv, err = New(Deps{Logger: testLogger(), Bridge: &fakeBridge{}, Hub: shared})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Hub() != shared || srv.ownsHub {
		t.Error("New() did not use the supplied hub")
	}
}

func TestMetrics_RecordsRequests(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, metrics.New())
	router := srv.buildRouter()

	get(t, router, "/api/v1/health")
	w := get(t, router, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "ringbridge_http_requests_total") {
		t.Error("metrics output missing ringbridge_http_requests_total")
	}
	if !strings.Contains(body, `path="/api/v1/health"`) {
		t.Error("metrics output missing the health route label")
	}
}

func TestMetrics_Disabled(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	w := get(t, srv.buildRouter(), "/metrics")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("metrics status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	src := &fakeBridge{devices: []bridge.DeviceInfo{
		{LocationID: "loc-1", ID: "contact-1", Name: "Front Door", Kind: "contact", Availability: "online"},
		{LocationID: "loc-1", ID: "cam-1", Name: "Drive", Kind: "camera", Availability: "offline"},
	}}
	srv := testServer(t, src, nil, nil)
	w := get(t, srv.buildRouter(), "/api/v1/devices")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		Devices []bridge.DeviceInfo `json:"devices"`
		Count   int                 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Fatalf("count = %d, devices = %d, want 2", resp.Count, len(resp.Devices))
	}
	if resp.Devices[0].ID != "contact-1" || resp.Devices[0].Availability != "online" {
		t.Errorf("devices[0] = %+v, want online contact-1", resp.Devices[0])
	}
}

// ─── Command Journal Tests ─────────────────────────────────────────

func TestListCommands_NoJournal(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	w := get(t, srv.buildRouter(), "/api/v1/commands")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeUnavailable {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeUnavailable)
	}
}

func TestListCommands(t *testing.T) {
	journal := newJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, dev := range []string{"panel-1", "lock-1", "panel-1"} {
		rec := &audit.CommandRecord{
			ID:         audit.NewID(),
			LocationID: "loc-1",
			DeviceID:   dev,
			DeviceKind: "security_panel",
			Command:    "set_alarm_mode",
			Payload:    "ARM_AWAY",
			Outcome:    audit.OutcomeSuccess,
			Attempts:   1,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := journal.Create(ctx, rec); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	srv := testServer(t, &fakeBridge{}, journal, nil)
	w := get(t, srv.buildRouter(), "/api/v1/commands?device_id=panel-1&limit=1")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp audit.ListResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	if len(resp.Commands) != 1 || resp.Commands[0].DeviceID != "panel-1" {
		t.Errorf("commands = %+v, want one panel-1 record", resp.Commands)
	}
}

func TestListCommands_BadLimit(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, newJournal(t), nil)
	w := get(t, srv.buildRouter(), "/api/v1/commands?limit=many")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── WebSocket End-to-End Tests ────────────────────────────────────

func dialFeed(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return f
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	conn := dialFeed(t, srv)

	if err := conn.WriteJSON(Frame{Type: FrameSubscribe, ID: "1", Channels: []string{ChannelCommand}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if resp := readFrame(t, conn); resp.Type != FrameSubscribed || resp.ID != "1" {
		t.Fatalf("subscribe response = %+v, want subscribed for 1", resp)
	}

	srv.Hub().Broadcast(ChannelCommand, map[string]any{"outcome": "success"})

	f := readFrame(t, conn)
	if f.Type != FrameEvent || f.Channel != ChannelCommand {
		t.Fatalf("frame = %+v, want command event", f)
	}
	payload, ok := f.Payload.(map[string]any)
	if !ok || payload["outcome"] != "success" {
		t.Errorf("payload = %v, want outcome success", f.Payload)
	}
}

func TestWebSocket_UnknownChannel(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	conn := dialFeed(t, srv)

	if err := conn.WriteJSON(Frame{Type: FrameSubscribe, ID: "7", Channels: []string{"scenes"}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if resp := readFrame(t, conn); resp.Type != FrameError || resp.ID != "7" {
		t.Errorf("response = %+v, want error for 7", resp)
	}
}

func TestWebSocket_UnknownFrameType(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	conn := dialFeed(t, srv)

	if err := conn.WriteJSON(Frame{Type: "arm", ID: "x"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if resp := readFrame(t, conn); resp.Type != FrameError || resp.ID != "x" {
		t.Errorf("response = %+v, want error for x", resp)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	conn := dialFeed(t, srv)

	if err := conn.WriteJSON(Frame{Type: FramePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if resp := readFrame(t, conn); resp.Type != FramePong || resp.ID != "p" {
		t.Errorf("response = %+v, want pong for p", resp)
	}
}
