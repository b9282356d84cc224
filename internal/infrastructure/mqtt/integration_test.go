//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "ringbridge-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "ringbridge-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := client.Topics().EntityCommand(client.Topics().DeviceBase("int-loc", ClassAlarm, "lock", "int-dev"), "")
	received := make(chan string, 1)

	err = client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false, want true")
	}

	if err := client.Publish(topic, []byte("LOCK"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "LOCK" {
			t.Errorf("payload = %q, want LOCK", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestIntegration_WildcardSeesRetainedStatus(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "ringbridge-int-status"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	statuses := make(chan bridgeStatus, 4)
	err = client.Subscribe(cfg.TopicPrefix+"/+/status", 1, func(_ string, payload []byte) error {
		var s bridgeStatus
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		statuses <- s
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case s := <-statuses:
		if s.Status != "online" || s.ClientID != cfg.Broker.ClientID {
			t.Errorf("retained status = %+v, want online from %s", s, cfg.Broker.ClientID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retained bridge status not delivered")
	}
}
