//go:build windows

package initsys

import (
	"context"
	"strings"

	"github.com/HerbHall/cellwatch/internal/command"
)

// detectPlatform returns the service control manager backend on Windows.
func detectPlatform(runner command.Runner) Controller {
	return &serviceController{runner: runner}
}

func byName(runner command.Runner, name string) Controller {
	if name == "windows-service" {
		return &serviceController{runner: runner}
	}
	return nil
}

// serviceController uses sc.exe. sc has no restart; callers stop then start.
type serviceController struct {
	runner command.Runner
}

func (c *serviceController) Name() string { return "windows-service" }

func (c *serviceController) Stop(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "sc", "stop", unit).Error()
}

func (c *serviceController) Start(ctx context.Context, unit string) error {
	return c.runner.Run(ctx, "sc", "start", unit).Error()
}

func (c *serviceController) Active(ctx context.Context, unit string) (bool, error) {
	res := c.runner.Run(ctx, "sc", "query", unit)
	if res.Err != nil {
		return false, res.Error()
	}
	return res.ExitCode == 0 && strings.Contains(res.Stdout, "RUNNING"), nil
}
