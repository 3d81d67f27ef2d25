//go:build windows

package generator

import "os"

// terminateSignal returns the signal used to request graceful shutdown.
// Windows has no SIGTERM; os.Kill is the closest equivalent Go exposes and
// Stop()'s forced-kill escalation will follow immediately if it doesn't
// take effect in time.
func terminateSignal() os.Signal {
	return os.Kill
}
