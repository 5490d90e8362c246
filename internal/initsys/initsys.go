// Package initsys provides init-system-aware stop/start control for the
// managed compute-cell service.
package initsys

import (
	"context"
	"fmt"

	"github.com/HerbHall/cellwatch/internal/command"
)

// Controller abstracts service control across init systems.
type Controller interface {
	// Name returns the init system name (e.g., "systemd", "openrc", "sysv").
	Name() string
	// Stop asks the init system to stop unit.
	Stop(ctx context.Context, unit string) error
	// Start asks the init system to start unit.
	Start(ctx context.Context, unit string) error
	// Active reports whether unit is currently running.
	Active(ctx context.Context, unit string) (bool, error)
}

// Detect returns a Controller appropriate for the current environment.
// A non-empty name forces a specific backend.
func Detect(runner command.Runner, name string) (Controller, error) {
	if name == "" || name == "auto" {
		return detectPlatform(runner), nil
	}
	c := byName(runner, name)
	if c == nil {
		return nil, fmt.Errorf("unknown init system %q", name)
	}
	return c, nil
}

// statusActive interprets a status probe. Exit 0 means running; any other exit
// code means stopped. Only a failure to run the probe at all is an error.
func statusActive(res command.Result) (bool, error) {
	if res.Err != nil {
		return false, res.Error()
	}
	return res.ExitCode == 0, nil
}
