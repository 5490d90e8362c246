//go:build !windows

package initsys

import (
	"context"
	"os"
	"os/exec"

	"github.com/HerbHall/cellwatch/internal/command"
)

// systemdMarker exists when systemd is PID 1.
var systemdMarker = "/run/systemd/system"

// detectPlatform returns the best controller for the current Linux/Unix environment.
func detectPlatform(runner command.Runner) Controller {
	// systemd: check for /run/systemd/system
	if _, err := os.Stat(systemdMarker); err == nil {
		return &systemdController{runner: runner}
	}
	// OpenRC: check for rc-service binary
	if _, err := exec.LookPath("rc-service"); err == nil {
		return &openrcController{runner: runner}
	}
	// Fallback: SysV service wrapper
	return &sysvController{runner: runner}
}

func byName(runner command.Runner, name string) Controller {
	switch name {
	case "systemd":
		return &systemdController{runner: runner}
	case "openrc":
		return &openrcController{runner: runner}
	case "sysv":
		return &sysvController{runner: runner}
	}
	return nil
}

// systemdController drives units through systemctl.
type systemdController struct {
	runner command.Runner
}

func (c *systemdController) Name() string { return "systemd" }

func (c *systemdController) Stop(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "systemctl", "stop", unit).Error()
}

func (c *systemdController) Start(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "systemctl", "start", unit).Error()
}

func (c *systemdController) Active(ctx context.Context, unit string) (bool, error) {
	// is-active exits 0 for active, 3 for inactive/failed.
	return statusActive(c.runner.Run(ctx, "systemctl", "is-active", "--quiet", unit))
}

// openrcController uses rc-service.
type openrcController struct {
	runner command.Runner
}

func (c *openrcController) Name() string { return "openrc" }

func (c *openrcController) Stop(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "rc-service", unit, "stop").Error()
}

func (c *openrcController) Start(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "rc-service", unit, "start").Error()
}

func (c *openrcController) Active(ctx context.Context, unit string) (bool, error) {
	return statusActive(c.runner.Run(ctx, "rc-service", unit, "status"))
}

// sysvController uses the service(8) wrapper.
type sysvController struct {
	runner command.Runner
}

func (c *sysvController) Name() string { return "sysv" }

func (c *sysvController) Stop(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "service", unit, "stop").Error()
}

func (c *sysvController) Start(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "service", unit, "start").Error()
}

func (c *sysvController) Active(ctx context.Context, unit string) (bool, error) {
	return statusActive(c.runner.Run(ctx, "service", unit, "status"))
}
