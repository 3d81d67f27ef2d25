package controller

import "strings"

// orderDevices applies the deterministic (L1, L2) reordering from spec §3:
// when exactly two devices are discovered and one name unambiguously names
// L1 and the other unambiguously names L2, they are returned in that order.
// Any other fleet shape is returned unchanged, preserving discovery order.
func orderDevices(devices []string) []string {
	if len(devices) != 2 {
		return devices
	}
	a, b := devices[0], devices[1]
	switch {
	case isL1Name(a) && isL2Name(b):
		return devices
	case isL1Name(b) && isL2Name(a):
		return []string{b, a}
	default:
		return devices
	}
}

func isL1Name(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "l1") && !strings.Contains(l, "l1l2") && !strings.Contains(l, "l2")
}

func isL2Name(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "l2") && !strings.Contains(l, "l1l2")
}

// targetDevices implements the target device set selection from spec
// §4.3.4: the device (or devices) commands in the main loop address, based
// on the job's current channel and the fleet's size.
func (c *Controller) targetDevices() []string {
	switch len(c.devices) {
	case 0:
		return nil
	case 1:
		return c.devices[:1]
	}
	if c.channel == 0 {
		for _, d := range c.devices {
			if isL1Name(d) {
				return []string{d}
			}
		}
		return c.devices[:1]
	}
	for _, d := range c.devices {
		if isL2Name(d) {
			return []string{d}
		}
	}
	return c.devices[1:2]
}
