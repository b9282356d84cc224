package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/ringbridge/internal/audit"
	"github.com/nerrad567/ringbridge/internal/confirm"
	"github.com/nerrad567/ringbridge/internal/device"
	"github.com/nerrad567/ringbridge/internal/remote"
)

// Command names recorded in the journal.
const (
	cmdAlarmMode = "set_alarm_mode"
	cmdLockState = "set_lock_state"
	cmdSwitch    = "set_switch"
	cmdLevel     = "set_level"
	cmdLight     = "set_light"
	cmdSiren     = "set_siren"
)

// Lock commands understood by the remote API.
const (
	lockCommandLock   = "lock.lock"
	lockCommandUnlock = "lock.unlock"
)

// commandResult is the outcome of one dispatched command.
type commandResult struct {
	name     string
	outcome  string
	attempts int
	err      error
}

// HandleMessage receives every inbound bus message the bridge subscribed
// to: the consumer liveness topic and device command topics.
//
// Commands are dispatched asynchronously; the returned error only reports
// routing problems (ErrInvalidTopic, ErrUnknownDevice).
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	if topic == b.status {
		b.handleStatus(string(payload))
		return nil
	}

	parts := strings.Split(topic, "/")
	n := len(parts)
	if n < minTopicParts {
		b.logWarn("invalid command topic", "topic", topic)
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	id := device.Identity{LocationID: parts[n-5], DeviceID: parts[n-2]}
	component, leaf := parts[n-3], parts[n-1]

	h, ok := b.registry.Find(id)
	if !ok {
		b.logWarn("command for unknown device",
			"location_id", id.LocationID,
			"device_id", id.DeviceID,
			"topic", topic,
		)
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()
	if b.ctx.Err() != nil {
		return nil
	}
	b.cmdWG.Add(1)
	go func() {
		defer b.cmdWG.Done()
		b.runCommand(h, component, leaf, string(payload))
	}()
	return nil
}

// handleStatus tracks the consumer liveness topic. "online" after any
// other payload (or none) means the consumer restarted and must be sent
// everything again.
func (b *Bridge) handleStatus(payload string) {
	payload = strings.TrimSpace(payload)
	b.statusMu.Lock()
	prev := b.lastStatus
	b.lastStatus = payload
	b.statusMu.Unlock()

	if payload == payloadOnline && prev != payloadOnline {
		b.logInfo("consumer restart detected, restarting republish", "topic", b.status)
		b.scheduler.Restart(b.ctx)
		return
	}
	b.logDebug("consumer status", "status", payload)
}

// runCommand dispatches one command and records its outcome.
func (b *Bridge) runCommand(h *handle, component, leaf, payload string) {
	commandID := audit.NewID()
	started := b.clock.Now()
	b.logInfo("command received",
		"command_id", commandID,
		"device_id", h.id.DeviceID,
		"kind", string(h.kind),
		"component", component,
		"command", leaf,
		"payload", payload,
	)

	res := b.dispatch(b.ctx, h, component, leaf, payload)
	b.record(commandID, h, payload, res, started)
}

// dispatch routes a command by device kind and command topic.
func (b *Bridge) dispatch(ctx context.Context, h *handle, component, leaf, payload string) commandResult {
	e, ok := h.entityFor(component, leaf)
	if !ok {
		return unknownCommand(leaf, fmt.Errorf("%w: %s/%s", ErrUnknownCommand, component, leaf))
	}
	level := e.scale != "" && leaf == leafOf(e.levelCommandTopic)

	switch h.kind {
	case device.KindSecurityPanel:
		return b.setAlarmMode(ctx, h, payload)
	case device.KindLock:
		return b.setLockState(ctx, h, payload)
	case device.KindSwitch, device.KindMultiLevelSwitch, device.KindFan:
		if level {
			return b.setLevel(ctx, h, e, payload)
		}
		return b.setSwitch(ctx, h, payload)
	case device.KindCamera:
		return b.setCamera(ctx, h, e, payload)
	}
	return unknownCommand(leaf, fmt.Errorf("%w: %s", ErrUnknownCommand, h.kind))
}

func unknownCommand(name string, err error) commandResult {
	return commandResult{name: name, outcome: audit.OutcomeUnknown, err: err}
}

func confirmed(name string, res confirm.Result) commandResult {
	return commandResult{
		name:     name,
		outcome:  res.Outcome.String(),
		attempts: res.Attempts,
		err:      res.Err,
	}
}

func direct(name string, err error) commandResult {
	if err != nil {
		return commandResult{name: name, outcome: audit.OutcomeError, attempts: 1, err: err}
	}
	return commandResult{name: name, outcome: audit.OutcomeSuccess, attempts: 1}
}

// =============================================================================
// Confirmed Commands
// =============================================================================

// panelTarget arms and disarms a location's alarm.
type panelTarget struct {
	loc remote.Location
}

func (t panelTarget) Apply(ctx context.Context, action string) error {
	switch action {
	case device.AlarmModeDisarmed.Remote():
		return t.loc.Disarm(ctx)
	case device.AlarmModeHome.Remote():
		return t.loc.ArmHome(ctx)
	case device.AlarmModeAway.Remote():
		return t.loc.ArmAway(ctx)
	}
	return fmt.Errorf("%w: alarm mode %q", ErrUnknownCommand, action)
}

func (t panelTarget) State(ctx context.Context) (string, error) {
	return t.loc.AlarmMode(ctx)
}

// setAlarmMode arms or disarms the location and polls the alarm mode until
// it matches.
func (b *Bridge) setAlarmMode(ctx context.Context, h *handle, payload string) commandResult {
	mode := device.AlarmModeFromCommand(payload)
	resolve := func(context.Context) (confirm.Target, error) {
		loc, ok := b.location(h.id.LocationID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, h.id.LocationID)
		}
		return panelTarget{loc: loc}, nil
	}
	var match confirm.Matcher
	if mode != device.AlarmModeUnknown {
		match = confirm.Equals(mode.Remote())
	}
	res := b.confirm.ApplyAndConfirm(ctx, resolve, mode.Remote(), match)
	out := confirmed(cmdAlarmMode, res)
	if res.Outcome == confirm.Unknown {
		out.err = fmt.Errorf("%w: alarm payload %q", ErrUnknownCommand, payload)
	}
	return out
}

// lockTarget drives one lock.
type lockTarget struct {
	dev remote.AlarmDevice
}

func (t lockTarget) Apply(ctx context.Context, action string) error {
	return t.dev.SendCommand(ctx, action)
}

func (t lockTarget) State(context.Context) (string, error) {
	return t.dev.Data().LockStatus, nil
}

// setLockState locks or unlocks and polls the lock status until it
// matches. The device is looked up in a fresh listing on every attempt.
func (b *Bridge) setLockState(ctx context.Context, h *handle, payload string) commandResult {
	var action, want string
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case "LOCK":
		action, want = lockCommandLock, device.LockLocked.Remote()
	case "UNLOCK":
		action, want = lockCommandUnlock, device.LockUnlocked.Remote()
	}
	var match confirm.Matcher
	if want != "" {
		match = confirm.Equals(want)
	}
	res := b.confirm.ApplyAndConfirm(ctx, b.resolveAlarmDevice(h), action, match)
	out := confirmed(cmdLockState, res)
	if res.Outcome == confirm.Unknown {
		out.err = fmt.Errorf("%w: lock payload %q", ErrUnknownCommand, payload)
	}
	return out
}

// resolveAlarmDevice returns a resolver that finds h's device in a fresh
// device listing.
func (b *Bridge) resolveAlarmDevice(h *handle) confirm.Resolver {
	return func(ctx context.Context) (confirm.Target, error) {
		loc, ok := b.location(h.id.LocationID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, h.id.LocationID)
		}
		devices, err := loc.Devices(ctx)
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		for _, dev := range devices {
			if dev.Data().ID == h.id.DeviceID {
				h.setAlarmDevice(dev)
				return lockTarget{dev: dev}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, h.id)
	}
}

// =============================================================================
// Direct Commands
// =============================================================================

// setSwitch turns a switch, light or fan on or off.
func (b *Bridge) setSwitch(ctx context.Context, h *handle, payload string) commandResult {
	on, ok := device.ParseOnOff(payload)
	if !ok {
		return unknownCommand(cmdSwitch, fmt.Errorf("%w: switch payload %q", ErrUnknownCommand, payload))
	}
	dev := h.alarmDevice()
	if dev == nil {
		return direct(cmdSwitch, fmt.Errorf("%w: %s", ErrUnknownDevice, h.id))
	}
	return direct(cmdSwitch, dev.SetInfo(ctx, map[string]any{"on": on}))
}

// setLevel sets a light's brightness or a fan's speed, 0-100.
func (b *Bridge) setLevel(ctx context.Context, h *handle, e *entity, payload string) commandResult {
	percent, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil || percent < 0 || percent > 100 {
		return unknownCommand(cmdLevel, fmt.Errorf("%w: %s payload %q", ErrUnknownCommand, e.scale, payload))
	}
	dev := h.alarmDevice()
	if dev == nil {
		return direct(cmdLevel, fmt.Errorf("%w: %s", ErrUnknownDevice, h.id))
	}
	return direct(cmdLevel, dev.SetInfo(ctx, map[string]any{"level": percent / 100}))
}

// setCamera switches a camera's light or siren and publishes the new state
// without waiting for the next poll.
func (b *Bridge) setCamera(ctx context.Context, h *handle, e *entity, payload string) commandResult {
	name := cmdLight
	if e.component == componentSwitch {
		name = cmdSiren
	}
	on, ok := device.ParseOnOff(payload)
	if !ok {
		return unknownCommand(name, fmt.Errorf("%w: %s payload %q", ErrUnknownCommand, e.key, payload))
	}
	cam := h.cameraDevice()
	if cam == nil {
		return direct(name, fmt.Errorf("%w: %s", ErrUnknownDevice, h.id))
	}

	var err error
	if name == cmdSiren {
		err = cam.SetSiren(ctx, on)
	} else {
		err = cam.SetLight(ctx, on)
	}
	if err == nil {
		b.publishGated(b.state, h.id.String(), e.key, e.stateTopic, device.OnOff(on))
	}
	return direct(name, err)
}

// =============================================================================
// Recording
// =============================================================================

// commandEvent is the live feed payload of a finished command.
type commandEvent struct {
	ID         string `json:"id"`
	LocationID string `json:"location_id"`
	DeviceID   string `json:"device_id"`
	Command    string `json:"command"`
	Payload    string `json:"payload"`
	Outcome    string `json:"outcome"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}

// record logs a finished command and writes it to the journal, history,
// metrics and live feed.
func (b *Bridge) record(commandID string, h *handle, payload string, res commandResult, started time.Time) {
	now := b.clock.Now()
	duration := now.Sub(started)
	rec := &audit.CommandRecord{
		ID:         commandID,
		LocationID: h.id.LocationID,
		DeviceID:   h.id.DeviceID,
		DeviceKind: string(h.kind),
		Command:    res.name,
		Payload:    payload,
		Outcome:    res.outcome,
		Attempts:   res.attempts,
		Duration:   duration,
		CreatedAt:  now,
	}
	if res.err != nil {
		rec.Error = res.err.Error()
	}

	args := []any{
		"command_id", commandID,
		"device_id", h.id.DeviceID,
		"command", res.name,
		"outcome", res.outcome,
		"attempts", res.attempts,
		"duration", duration.String(),
	}
	switch res.outcome {
	case audit.OutcomeSuccess:
		b.logInfo("command completed", args...)
	case audit.OutcomeUnknown:
		b.logInfo("command ignored", append(args, "reason", rec.Error)...)
	default:
		b.logWarn("command failed", append(args, "error", rec.Error)...)
	}

	if b.journal != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), journalTimeout)
		if err := b.journal.Create(ctx, rec); err != nil {
			b.logError("command journal write failed", "command_id", commandID, "error", err)
		}
		cancel()
	}
	b.history.WriteCommand(h.id.LocationID, h.id.DeviceID, res.name, res.outcome, res.attempts, duration, now)
	b.metrics.ObserveCommand(string(h.kind), res.outcome, res.attempts)
	b.events.Broadcast("command", commandEvent{
		ID:         commandID,
		LocationID: h.id.LocationID,
		DeviceID:   h.id.DeviceID,
		Command:    res.name,
		Payload:    payload,
		Outcome:    res.outcome,
		Attempts:   res.attempts,
		Error:      rec.Error,
	})
}
