//go:build windows

package proc

import (
	"errors"
	"os"
)

// SignalKiller terminates processes via os.Process.Kill.
type SignalKiller struct{}

// Compile-time guard.
var _ Killer = SignalKiller{}

func (SignalKiller) Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
