package device

import (
	"fmt"
	"strings"
)

// Kind is a class of represented device. Immutable once a device exists.
type Kind string

// Device kinds.
const (
	KindContact          Kind = "contact"
	KindMotion           Kind = "motion"
	KindFloodFreeze      Kind = "flood_freeze"
	KindSmoke            Kind = "smoke"
	KindCO               Kind = "co"
	KindSmokeCO          Kind = "smoke_co"
	KindSecurityPanel    Kind = "security_panel"
	KindLock             Kind = "lock"
	KindSwitch           Kind = "switch"
	KindMultiLevelSwitch Kind = "multilevel_switch"
	KindFan              Kind = "fan"
	KindCamera           Kind = "camera"
)

// fanCategoryID marks a multilevel switch that drives a fan.
const fanCategoryID = 17

// remoteKinds maps remote device types that translate directly.
var remoteKinds = map[string]Kind{
	"sensor.contact":          KindContact,
	"sensor.zone":             KindContact,
	"sensor.motion":           KindMotion,
	"sensor.flood-freeze":     KindFloodFreeze,
	"alarm.smoke":             KindSmoke,
	"alarm.co":                KindCO,
	"listener.smoke-co":       KindSmokeCO,
	"security-panel":          KindSecurityPanel,
	"switch":                  KindSwitch,
	"switch.multilevel.beams": KindMultiLevelSwitch,
}

// KindFromRemote maps a remote alarm device type to a Kind.
//
// Multilevel switches in the fan category become fans, and any type named
// "lock" or "lock.<model>" is a lock. Unmapped types return
// ErrUnsupportedKind.
func KindFromRemote(deviceType string, categoryID int) (Kind, error) {
	if k, ok := remoteKinds[deviceType]; ok {
		return k, nil
	}
	switch {
	case deviceType == "switch.multilevel":
		if categoryID == fanCategoryID {
			return KindFan, nil
		}
		return KindMultiLevelSwitch, nil
	case deviceType == "lock" || strings.HasPrefix(deviceType, "lock."):
		return KindLock, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, deviceType)
}

// Commandable reports whether the kind accepts inbound commands.
func (k Kind) Commandable() bool {
	switch k {
	case KindSecurityPanel, KindLock, KindSwitch, KindMultiLevelSwitch, KindFan, KindCamera:
		return true
	default:
		return false
	}
}
