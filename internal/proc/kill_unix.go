//go:build !windows

package proc

import (
	"errors"

	"golang.org/x/sys/unix"
)

// SignalKiller sends SIGKILL via kill(2).
type SignalKiller struct{}

// Compile-time guard.
var _ Killer = SignalKiller{}

func (SignalKiller) Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

func isGone(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
