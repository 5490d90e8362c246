// Package webrestart implements the Service Restarter: stop the web server
// and router sessions, clear leftover processes and IPC sockets, verify the
// sessions are gone, rebuild, and relaunch.
package webrestart

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/proc"
	"github.com/HerbHall/cellwatch/internal/remote"
	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/wait"
)

var (
	// ErrSessionsPersist means a target session survived termination.
	ErrSessionsPersist = errors.New("sessions still running after termination")
	// ErrVerifyOnly is returned after a successful verification when the
	// caller asked to stop there.
	ErrVerifyOnly = errors.New("verify-only: termination verified, rebuild and relaunch skipped")
)

// Step names recorded in reports.
const (
	StepInterrupt     = "interrupt"
	StepRemoteKill    = "remote-kill"
	StepLocalKill     = "local-kill"
	StepRemoveSockets = "remove-sockets"
	StepSettle        = "settle"
	StepVerify        = "verify"
	StepBuild         = "build"
	StepLaunch        = "launch"
)

// Sessions is the subset of the tmux client the restarter drives.
type Sessions interface {
	ListSessions(ctx context.Context) ([]string, error)
	HasSession(ctx context.Context, name string) (bool, error)
	Interrupt(ctx context.Context, name string) error
	NewDetached(ctx context.Context, name, dir string, argv ...string) error
}

// Deps are the collaborators a Restarter drives.
type Deps struct {
	Sessions Sessions
	// Build runs the build tool in the build directory.
	Build  command.Runner
	Table  proc.Table
	Killer proc.Killer
	// Remote is nil when no remote host is configured.
	Remote command.Runner
	// Pinger is nil when reachability is not checked.
	Pinger remote.Pinger
	Now    func() time.Time
}

// Options select per-invocation behaviour.
type Options struct {
	// VerifyOnly stops after the termination check.
	VerifyOnly bool
}

// Restarter runs the restart procedure.
type Restarter struct {
	cfg     Config
	deps    Deps
	logger  *zap.Logger
	backoff wait.Backoff
}

// New validates cfg and returns a Restarter.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Restarter, error) {
	if len(cfg.Sessions) == 0 {
		return nil, errors.New("webrestart: at least one session is required")
	}
	if len(cfg.Build.Command) == 0 {
		return nil, errors.New("webrestart: build command is required")
	}
	if cfg.Launch.Session == "" || len(cfg.Launch.Command) == 0 {
		return nil, errors.New("webrestart: launch session and command are required")
	}
	if deps.Sessions == nil || deps.Build == nil || deps.Table == nil || deps.Killer == nil {
		return nil, errors.New("webrestart: missing dependency")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Restarter{cfg: cfg, deps: deps, logger: logger, backoff: wait.DefaultBackoff()}, nil
}

// Run executes the procedure. The report's exit code is 0 only when the
// service was rebuilt and relaunched. The returned error explains any
// non-zero exit.
func (r *Restarter) Run(ctx context.Context, opts Options) (*report.Report, error) {
	rep := report.New(report.KindWebRestart, r.deps.Now)

	// Running -> Terminating
	for _, name := range r.cfg.Sessions {
		r.terminate(ctx, rep, name)
	}
	r.remoteKill(ctx, rep)
	r.localKill(ctx, rep)
	r.removeSockets(rep)
	if err := r.settle(ctx, rep); err != nil {
		err = fmt.Errorf("settle: %w", err)
		rep.Finish(report.OutcomeNotTerminated, 1, err.Error())
		return rep, err
	}

	// Terminating -> Terminated
	var survivors []string
	err := rep.Track(StepVerify, func() (string, error) {
		var err error
		survivors, err = r.survivors(ctx)
		if err != nil {
			return "", err
		}
		if len(survivors) > 0 {
			return "still running: " + strings.Join(survivors, ", "), ErrSessionsPersist
		}
		return "all sessions terminated", nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionsPersist) {
			err = fmt.Errorf("%w: %s", ErrSessionsPersist, strings.Join(survivors, ", "))
		} else {
			err = fmt.Errorf("verify termination: %w", err)
		}
		r.logger.Error("termination not verified", zap.Error(err))
		rep.Finish(report.OutcomeNotTerminated, 1, err.Error())
		return rep, err
	}

	if opts.VerifyOnly {
		r.logger.Info("termination verified; verify-only requested")
		rep.Finish(report.OutcomeStopped, 1, ErrVerifyOnly.Error())
		return rep, ErrVerifyOnly
	}

	// Terminated -> Rebuilt
	if err := rep.Track(StepBuild, func() (string, error) { return r.build(ctx) }); err != nil {
		err = fmt.Errorf("build: %w", err)
		r.logger.Error("build failed", zap.Error(err))
		rep.Finish(report.OutcomeFailed, 1, err.Error())
		return rep, err
	}

	// Rebuilt -> Running
	if err := rep.Track(StepLaunch, func() (string, error) { return r.launch(ctx) }); err != nil {
		err = fmt.Errorf("launch: %w", err)
		r.logger.Error("launch failed", zap.Error(err))
		rep.Finish(report.OutcomeFailed, 1, err.Error())
		return rep, err
	}

	r.logger.Info("service relaunched", zap.String("session", r.cfg.Launch.Session))
	rep.Finish(report.OutcomeRelaunched, 0, "")
	return rep, nil
}

// terminate interrupts one session and waits for it to disappear. A session
// that outlives the wait is caught by verification, so nothing here fails
// the run.
func (r *Restarter) terminate(ctx context.Context, rep *report.Report, name string) {
	step := StepInterrupt + ":" + name
	err := rep.Track(step, func() (string, error) {
		present, err := r.deps.Sessions.HasSession(ctx, name)
		if err != nil {
			return "", err
		}
		if !present {
			return "not running", nil
		}
		if err := r.deps.Sessions.Interrupt(ctx, name); err != nil {
			return "", err
		}
		b := r.backoff
		b.Timeout = r.cfg.SessionTimeout
		err = wait.Until(ctx, "session "+name+" to exit", b, func(ctx context.Context) (bool, error) {
			present, err := r.deps.Sessions.HasSession(ctx, name)
			return !present, err
		})
		if err != nil {
			return "", err
		}
		return "terminated", nil
	})
	if err != nil {
		r.logger.Warn("session did not terminate cleanly", zap.String("session", name), zap.Error(err))
	}
}

func (r *Restarter) survivors(ctx context.Context) ([]string, error) {
	sessions, err := r.deps.Sessions.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		running[s] = true
	}
	var out []string
	for _, name := range r.cfg.Sessions {
		if running[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

// remoteKill is best effort: it never fails the run.
func (r *Restarter) remoteKill(ctx context.Context, rep *report.Report) {
	if r.deps.Remote == nil || r.cfg.ProcessPattern == "" {
		return
	}
	host := r.cfg.Remote.Host
	err := rep.Track(StepRemoteKill, func() (string, error) {
		if r.deps.Pinger != nil {
			pctx, cancel := context.WithTimeout(ctx, r.cfg.Remote.PingTimeout+time.Second)
			up, err := r.deps.Pinger.Reachable(pctx, host)
			cancel()
			if err != nil || !up {
				return "skipped: " + host + " unreachable", nil
			}
		}
		res := r.deps.Remote.Run(ctx, "pkill", "-KILL", "-f", r.cfg.ProcessPattern)
		// pkill exits 1 when nothing matched.
		if res.Err == nil && (res.ExitCode == 0 || res.ExitCode == 1) {
			return fmt.Sprintf("pkill on %s exited %d", host, res.ExitCode), nil
		}
		return "", res.Error()
	})
	if err != nil {
		r.logger.Warn("remote kill failed", zap.String("host", host), zap.Error(err))
	}
}

// localKill is best effort: it never fails the run.
func (r *Restarter) localKill(ctx context.Context, rep *report.Report) {
	if r.cfg.ProcessPattern == "" {
		return
	}
	err := rep.Track(StepLocalKill, func() (string, error) {
		procs, err := proc.Matching(ctx, r.deps.Table, r.cfg.ProcessPattern)
		if err != nil {
			return "", err
		}
		killed, err := proc.KillAll(procs, r.deps.Killer, r.logger)
		return fmt.Sprintf("killed %d processes matching %q", len(killed), r.cfg.ProcessPattern), err
	})
	if err != nil {
		r.logger.Warn("local kill failed", zap.Error(err))
	}
}

// settle gives processes killed outside tmux time to release their sessions
// before verification. Only cancellation fails it.
func (r *Restarter) settle(ctx context.Context, rep *report.Report) error {
	if r.cfg.Settle <= 0 {
		return nil
	}
	return rep.Track(StepSettle, func() (string, error) {
		return "waited " + r.cfg.Settle.String(), wait.Sleep(ctx, r.cfg.Settle)
	})
}

// removeSockets deletes stale IPC endpoints. Missing files are fine.
func (r *Restarter) removeSockets(rep *report.Report) {
	if len(r.cfg.SocketGlobs) == 0 {
		return
	}
	err := rep.Track(StepRemoveSockets, func() (string, error) {
		removed, err := RemoveGlobs(r.cfg.SocketGlobs)
		return fmt.Sprintf("removed %d files", removed), err
	})
	if err != nil {
		r.logger.Warn("removing stale sockets failed", zap.Error(err))
	}
}

// RemoveGlobs deletes every non-directory path matching the patterns and
// returns how many were removed.
func RemoveGlobs(patterns []string) (int, error) {
	removed := 0
	var errs []error
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("glob %q: %w", pattern, err))
			continue
		}
		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if err := os.Remove(path); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					errs = append(errs, err)
				}
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func (r *Restarter) build(ctx context.Context) (string, error) {
	if r.cfg.Build.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Build.Timeout)
		defer cancel()
	}
	argv := r.cfg.Build.Command
	res := r.deps.Build.Run(ctx, argv[0], argv[1:]...)
	if err := res.Error(); err != nil {
		return "", err
	}
	return res.Command(), nil
}

func (r *Restarter) launch(ctx context.Context) (string, error) {
	l := r.cfg.Launch
	if err := r.deps.Sessions.NewDetached(ctx, l.Session, l.Dir, l.Command...); err != nil {
		return "", err
	}
	b := r.backoff
	b.Timeout = l.Timeout
	err := wait.Until(ctx, "session "+l.Session+" to start", b, func(ctx context.Context) (bool, error) {
		return r.deps.Sessions.HasSession(ctx, l.Session)
	})
	if err != nil {
		return "", err
	}
	return "session " + l.Session + " running", nil
}
