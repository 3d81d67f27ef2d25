//go:build !windows

package generator

import (
	"os"
	"syscall"
)

// terminateSignal returns the signal used to request graceful shutdown.
func terminateSignal() os.Signal {
	return syscall.SIGTERM
}
