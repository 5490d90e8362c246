//go:build !windows

package proc

import "golang.org/x/sys/unix"

func errGone() error { return unix.ESRCH }
