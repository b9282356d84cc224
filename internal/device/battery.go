package device

// Battery normalises the remote battery report to a 0-100 level.
//
// A reported level wins: 99 is published as 100 (the remote never reports
// a full cell as 100), anything else as-is. Without a level the coarse
// status maps "full" to 100, "ok" to 50 and any other value to 0; status
// "none" means the device has no battery and ok is false.
func Battery(level *int, status string) (percent int, ok bool) {
	if level != nil {
		if *level == 99 {
			return 100, true
		}
		return *level, true
	}
	switch status {
	case "full":
		return 100, true
	case "ok":
		return 50, true
	case "none":
		return 0, false
	default:
		return 0, true
	}
}
