package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/ringbridge/internal/remote"
)

func TestArmUpdatesModeAndPanel(t *testing.T) {
	loc := NewLocation("loc-1", "Home", true)
	panel := loc.AddDevice(NewDevice(remote.DeviceData{ID: "panel", DeviceType: "security-panel"}))
	ctx := context.Background()

	if err := loc.ArmAway(ctx); err != nil {
		t.Fatalf("ArmAway() error = %v", err)
	}
	mode, err := loc.AlarmMode(ctx)
	if err != nil || mode != "all" {
		t.Errorf("AlarmMode() = %q, %v, want all", mode, err)
	}
	if got := panel.Data().Mode; got != "all" {
		t.Errorf("panel Mode = %q, want all", got)
	}
	select {
	case d := <-panel.Updates():
		if d.Mode != "all" {
			t.Errorf("update Mode = %q, want all", d.Mode)
		}
	default:
		t.Error("no panel update pushed")
	}
}

func TestIgnoreArmRequests(t *testing.T) {
	loc := NewLocation("loc-1", "Home", true)
	loc.IgnoreArmRequests(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		loc.ArmHome(ctx)
		if mode, _ := loc.AlarmMode(ctx); mode != "none" {
			t.Fatalf("mode after ignored request %d = %q, want none", i, mode)
		}
	}
	loc.ArmHome(ctx)
	if mode, _ := loc.AlarmMode(ctx); mode != "some" {
		t.Errorf("mode = %q, want some", mode)
	}
	if n := len(loc.Calls()); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestLockCommands(t *testing.T) {
	d := NewDevice(remote.DeviceData{ID: "lock", DeviceType: "lock", LockStatus: "locked"})
	if err := d.SendCommand(context.Background(), "lock.unlock"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if d.Data().LockStatus != "unlocked" {
		t.Errorf("LockStatus = %q, want unlocked", d.Data().LockStatus)
	}
	if err := d.SendCommand(context.Background(), "lock.jiggle"); err == nil {
		t.Error("SendCommand(unknown) error = nil")
	}
}

func TestUpdatesKeepLatestWhenFull(t *testing.T) {
	d := NewDevice(remote.DeviceData{ID: "contact"})
	for i := 0; i < streamBuffer+5; i++ {
		d.Update(func(data *remote.DeviceData) { data.Faulted = !data.Faulted })
	}
	var last remote.DeviceData
	for len(d.Updates()) > 0 {
		last = <-d.Updates()
	}
	if last.Faulted != d.Data().Faulted {
		t.Errorf("last update Faulted = %v, want %v", last.Faulted, d.Data().Faulted)
	}
}

func TestCameraDingSubscription(t *testing.T) {
	c := NewCamera(remote.CameraData{ID: "cam"})
	now := time.Unix(1000, 0)

	if err := c.Ding("motion", now, time.Minute); err != nil {
		t.Fatalf("Ding() error = %v", err)
	}
	if got := <-c.Dings(); got.Kind != "motion" || !got.ObservedAt.Equal(now) {
		t.Errorf("Ding = %+v", got)
	}

	c.DropSubscription()
	if err := c.Ding("ding", now, time.Minute); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Ding() while dropped error = %v, want %v", err, ErrNotSubscribed)
	}
	c.Resubscribe(context.Background())
	if !c.DingSubscribed() {
		t.Error("DingSubscribed() = false after Resubscribe")
	}
}

func TestCameraLightAndSiren(t *testing.T) {
	c := NewCamera(remote.CameraData{ID: "cam", HasLight: true, HasSiren: true})
	ctx := context.Background()
	c.SetLight(ctx, true)
	c.SetSiren(ctx, true)

	data, err := c.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !data.LightOn() || !data.SirenOn() {
		t.Errorf("Refresh() = %+v, want light and siren on", data)
	}
}
