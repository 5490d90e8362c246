//go:build windows

package proc

import "os"

func errGone() error { return os.ErrProcessDone }
