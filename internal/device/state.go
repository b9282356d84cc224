package device

import "strings"

// AlarmMode is the security panel's arming state.
type AlarmMode int

// Alarm modes.
const (
	AlarmModeUnknown AlarmMode = iota
	AlarmModeDisarmed
	AlarmModeHome
	AlarmModeAway
)

// AlarmModeFromRemote maps the remote mode ("none", "some", "all").
func AlarmModeFromRemote(mode string) AlarmMode {
	switch mode {
	case "none":
		return AlarmModeDisarmed
	case "some":
		return AlarmModeHome
	case "all":
		return AlarmModeAway
	default:
		return AlarmModeUnknown
	}
}

// Remote returns the remote mode string.
func (m AlarmMode) Remote() string {
	switch m {
	case AlarmModeDisarmed:
		return "none"
	case AlarmModeHome:
		return "some"
	case AlarmModeAway:
		return "all"
	default:
		return ""
	}
}

// String returns the published alarm panel state.
func (m AlarmMode) String() string {
	switch m {
	case AlarmModeDisarmed:
		return "disarmed"
	case AlarmModeHome:
		return "armed_home"
	case AlarmModeAway:
		return "armed_away"
	default:
		return "unknown"
	}
}

// AlarmModeFromCommand maps an inbound panel command payload.
func AlarmModeFromCommand(payload string) AlarmMode {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case "DISARM":
		return AlarmModeDisarmed
	case "ARM_HOME":
		return AlarmModeHome
	case "ARM_AWAY":
		return AlarmModeAway
	default:
		return AlarmModeUnknown
	}
}

// LockState is a lock's reported position.
type LockState int

// Lock states.
const (
	LockUnknown LockState = iota
	LockLocked
	LockUnlocked
	LockJammed
)

// LockStateFromRemote maps the remote lock status.
func LockStateFromRemote(status string) LockState {
	switch status {
	case "locked":
		return LockLocked
	case "unlocked":
		return LockUnlocked
	case "jammed":
		return LockJammed
	default:
		return LockUnknown
	}
}

// String returns the published lock state.
func (l LockState) String() string {
	switch l {
	case LockLocked:
		return "LOCKED"
	case LockUnlocked:
		return "UNLOCKED"
	case LockJammed:
		return "JAMMED"
	default:
		return "UNKNOWN"
	}
}

// Remote returns the remote status string.
func (l LockState) Remote() string {
	switch l {
	case LockLocked:
		return "locked"
	case LockUnlocked:
		return "unlocked"
	case LockJammed:
		return "jammed"
	default:
		return ""
	}
}

// OnOff renders a boolean as the published ON/OFF payload.
func OnOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

// ParseOnOff parses an inbound ON/OFF payload.
func ParseOnOff(payload string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case "ON":
		return true, true
	case "OFF":
		return false, true
	default:
		return false, false
	}
}

// TamperStatus renders the remote tamper status as published.
func TamperStatus(remote string) string {
	if remote == "tamper" {
		return "TAMPERED"
	}
	return "clear"
}
