// Package proc enumerates and force-kills local processes by owner or by
// command-line substring.
package proc

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Process is a snapshot of one entry in the process table.
type Process struct {
	PID     int
	UID     int
	Name    string
	Cmdline string
}

// Table lists running processes.
type Table interface {
	List(ctx context.Context) ([]Process, error)
}

// Killer delivers SIGKILL to a process.
type Killer interface {
	Kill(pid int) error
}

// LookupUID resolves an account name (or numeric id) to a uid.
func LookupUID(account string) (int, error) {
	if uid, err := strconv.Atoi(account); err == nil {
		return uid, nil
	}
	u, err := user.Lookup(account)
	if err != nil {
		return 0, fmt.Errorf("lookup account %q: %w", account, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("account %q has non-numeric uid %q", account, u.Uid)
	}
	return uid, nil
}

// OwnedBy returns the processes owned by uid, excluding the calling process.
func OwnedBy(ctx context.Context, table Table, uid int) ([]Process, error) {
	return filter(ctx, table, func(p Process) bool { return p.UID == uid })
}

// Matching returns the processes whose command line contains substr,
// excluding the calling process.
func Matching(ctx context.Context, table Table, substr string) ([]Process, error) {
	if substr == "" {
		return nil, fmt.Errorf("empty process pattern")
	}
	return filter(ctx, table, func(p Process) bool {
		return strings.Contains(p.Cmdline, substr) || strings.Contains(p.Name, substr)
	})
}

// filter never returns the calling process, so cellwatch cannot kill itself
// when it runs as the account or matches the pattern.
func filter(ctx context.Context, table Table, keep func(Process) bool) ([]Process, error) {
	all, err := table.List(ctx)
	if err != nil {
		return nil, err
	}
	self := os.Getpid()
	var out []Process
	for _, p := range all {
		if p.PID != self && keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// KillAll sends SIGKILL to each process and returns the PIDs that were
// signalled. Processes that vanish before the signal lands are skipped; the
// first other failure is returned after attempting every process.
func KillAll(procs []Process, killer Killer, logger *zap.Logger) ([]int, error) {
	var killed []int
	var firstErr error
	for _, p := range procs {
		if err := killer.Kill(p.PID); err != nil {
			if isGone(err) {
				continue
			}
			logger.Warn("kill failed", zap.Int("pid", p.PID), zap.String("name", p.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("kill pid %d: %w", p.PID, err)
			}
			continue
		}
		logger.Debug("killed process", zap.Int("pid", p.PID), zap.String("name", p.Name))
		killed = append(killed, p.PID)
	}
	return killed, firstErr
}
