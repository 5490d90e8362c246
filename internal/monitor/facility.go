package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/HerbHall/cellwatch/internal/command"
)

// Facility is the global gate that can switch monitoring off, e.g. while a
// node is being drained during a deploy.
type Facility interface {
	// Enabled reports whether monitoring should proceed, with a short
	// human-readable reason.
	Enabled(ctx context.Context) (bool, string)
}

// CommandFacility asks an external status command. Exit 0 means enabled; any
// other outcome, including a missing binary, means disabled.
type CommandFacility struct {
	runner command.Runner
	argv   []string
}

// NewCommandFacility wraps argv, e.g. ["/root/healthcheck", "status"].
func NewCommandFacility(runner command.Runner, argv []string) (*CommandFacility, error) {
	if len(argv) == 0 {
		return nil, errors.New("facility command is empty")
	}
	return &CommandFacility{runner: runner, argv: argv}, nil
}

func (f *CommandFacility) Enabled(ctx context.Context) (bool, string) {
	res := f.runner.Run(ctx, f.argv[0], f.argv[1:]...)
	if res.OK() {
		return true, res.Command() + ": enabled"
	}
	return false, res.Error().Error()
}

// FlagFile is the built-in facility: a file holding "on" or "off". A missing
// file means monitoring is on.
type FlagFile struct {
	Path string
}

const (
	flagOn  = "on"
	flagOff = "off"
)

func (f *FlagFile) Enabled(_ context.Context) (bool, string) {
	on, err := f.State()
	if err != nil {
		// Unreadable gate: fail safe towards not restarting anything.
		return false, err.Error()
	}
	if !on {
		return false, "health checks switched off in " + f.Path
	}
	return true, "health checks on"
}

// State reads the flag. Absent file reports on.
func (f *FlagFile) State() (bool, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read facility flag: %w", err)
	}
	switch v := strings.TrimSpace(string(raw)); v {
	case flagOn, "":
		return true, nil
	case flagOff:
		return false, nil
	default:
		return false, fmt.Errorf("facility flag %s: unexpected value %q", f.Path, v)
	}
}

// Set switches the flag on or off.
func (f *FlagFile) Set(on bool) error {
	v := flagOff
	if on {
		v = flagOn
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create facility dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(v+"\n"), 0o644); err != nil {
		return fmt.Errorf("write facility flag: %w", err)
	}
	return os.Rename(tmp, f.Path)
}
