//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

// Detach is a no-op on Windows.
func Detach(*exec.Cmd) {}

// ShutdownSignals are the signals the server treats as a stop request.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// alive relies on FindProcess, which fails once the process is gone.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// Windows has no polite stop signal for a detached process.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
