// Package monitor implements the Health Monitor: gate on the health-check
// facility, run the service probe, and on failure stop the unit, kill every
// process of the service account, and start the unit again.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/initsys"
	"github.com/HerbHall/cellwatch/internal/proc"
	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/wait"
)

// Step names recorded in reports.
const (
	StepFacility    = "facility"
	StepProbe       = "probe"
	StepStop        = "stop"
	StepWaitStopped = "wait-stopped"
	StepKill        = "kill-account"
	StepStart       = "start"
)

// Deps are the collaborators a Monitor drives.
type Deps struct {
	Facility Facility
	Runner   command.Runner
	Init     initsys.Controller
	Table    proc.Table
	Killer   proc.Killer
	// LookupUID resolves the service account; defaults to proc.LookupUID.
	LookupUID func(account string) (int, error)
	Now       func() time.Time
}

// Monitor runs one health check per call to Run.
type Monitor struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	// allowRestart gates remediation; nil allows every restart.
	allowRestart func() bool
	backoff      wait.Backoff
}

// New validates cfg and returns a Monitor.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Monitor, error) {
	if len(cfg.Probe) == 0 {
		return nil, errors.New("monitor: probe command is required")
	}
	if cfg.Unit == "" {
		return nil, errors.New("monitor: unit is required")
	}
	if cfg.Account == "" {
		return nil, errors.New("monitor: service account is required")
	}
	if deps.Facility == nil || deps.Runner == nil || deps.Init == nil || deps.Table == nil || deps.Killer == nil {
		return nil, errors.New("monitor: missing dependency")
	}
	if deps.LookupUID == nil {
		deps.LookupUID = proc.LookupUID
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Monitor{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		backoff: wait.DefaultBackoff(),
	}, nil
}

// Run performs one check. probeArgs are appended unmodified to the probe
// command line. The returned report always carries an outcome and exit code:
// 0 when monitoring is disabled or the probe passes, 1 when a failure was
// detected and a remedial restart attempted.
func (m *Monitor) Run(ctx context.Context, probeArgs ...string) *report.Report {
	rep := report.New(report.KindHealthCheck, m.deps.Now)

	enabled, reason := m.deps.Facility.Enabled(ctx)
	rep.Add(StepFacility, enabled, reason, 0)
	if !enabled {
		m.logger.Info("health checks disabled, skipping probe", zap.String("reason", reason))
		rep.Finish(report.OutcomeDisabled, 0, reason)
		return rep
	}

	probeRes := m.probe(ctx, probeArgs)
	rep.Add(StepProbe, probeRes.OK(), probeDetail(probeRes), probeRes.Duration)
	if probeRes.OK() {
		m.logger.Debug("service probe passed", zap.Duration("duration", probeRes.Duration))
		rep.Finish(report.OutcomeHealthy, 0, "")
		return rep
	}

	m.logger.Warn("service probe failed",
		zap.Int("exit_code", probeRes.ExitCode),
		zap.String("stderr", strings.TrimSpace(probeRes.Stderr)),
		zap.Error(probeRes.Err),
	)

	if m.allowRestart != nil && !m.allowRestart() {
		m.logger.Warn("remedial restart suppressed by rate limit")
		rep.Finish(report.OutcomeSuppressed, 1, "probe failed; restart suppressed by rate limit")
		return rep
	}

	m.remediate(ctx, rep)
	rep.Finish(report.OutcomeRestarted, 1, "probe failed; "+m.cfg.Unit+" restarted")
	return rep
}

func (m *Monitor) probe(ctx context.Context, probeArgs []string) command.Result {
	if m.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
	}
	args := append(append([]string{}, m.cfg.Probe[1:]...), probeArgs...)
	return m.deps.Runner.Run(ctx, m.cfg.Probe[0], args...)
}

func probeDetail(res command.Result) string {
	if err := res.Error(); err != nil {
		return err.Error()
	}
	return res.Command()
}

// remediate runs stop, kill, start in that order. Every step is attempted
// even if an earlier one failed; failures are recorded, never retried.
func (m *Monitor) remediate(ctx context.Context, rep *report.Report) {
	unit := m.cfg.Unit
	log := m.logger.With(zap.String("unit", unit), zap.String("init", m.deps.Init.Name()))

	if err := rep.Track(StepStop, func() (string, error) {
		return "stop " + unit, m.deps.Init.Stop(ctx, unit)
	}); err != nil {
		log.Error("stop failed", zap.Error(err))
	}

	if err := rep.Track(StepWaitStopped, func() (string, error) {
		b := m.backoff
		b.Timeout = m.cfg.StopTimeout
		err := wait.Until(ctx, unit+" inactive", b, func(ctx context.Context) (bool, error) {
			active, err := m.deps.Init.Active(ctx, unit)
			return !active, err
		})
		return "", err
	}); err != nil {
		log.Warn("unit did not report inactive", zap.Error(err))
	}

	if err := rep.Track(StepKill, func() (string, error) {
		return m.killAccount(ctx)
	}); err != nil {
		log.Error("killing service account processes failed", zap.String("account", m.cfg.Account), zap.Error(err))
	}

	if err := rep.Track(StepStart, func() (string, error) {
		return "start " + unit, m.deps.Init.Start(ctx, unit)
	}); err != nil {
		log.Error("start failed", zap.Error(err))
		return
	}
	log.Info("service restarted")
}

// killAccount SIGKILLs every process of the service account and waits until
// the account owns nothing. Stragglers forked in between are killed on each
// poll.
func (m *Monitor) killAccount(ctx context.Context) (string, error) {
	uid, err := m.deps.LookupUID(m.cfg.Account)
	if err != nil {
		return "", err
	}

	total := 0
	var killErr error
	b := m.backoff
	b.Timeout = m.cfg.KillTimeout
	err = wait.Until(ctx, "processes of "+m.cfg.Account+" gone", b, func(ctx context.Context) (bool, error) {
		procs, err := proc.OwnedBy(ctx, m.deps.Table, uid)
		if err != nil {
			return false, err
		}
		if len(procs) == 0 {
			return true, nil
		}
		killed, err := proc.KillAll(procs, m.deps.Killer, m.logger)
		total += len(killed)
		if err != nil && killErr == nil {
			killErr = err
		}
		return false, nil
	})
	detail := fmt.Sprintf("killed %d processes of %s", total, m.cfg.Account)
	switch {
	case killErr == nil:
	case err == nil:
		err = killErr
	default:
		err = fmt.Errorf("%w; %w", err, killErr)
	}
	return detail, err
}
