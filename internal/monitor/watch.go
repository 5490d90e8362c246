package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/cellwatch/internal/report"
)

// Watcher runs the monitor on an interval until its context is cancelled.
// Remedial restarts are rate limited so a persistently failing probe cannot
// put the service into a restart loop.
type Watcher struct {
	monitor  *Monitor
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
	onReport func(*report.Report)
}

// NewWatcher wraps m. onReport, if non-nil, receives every finished report.
func NewWatcher(m *Monitor, cfg WatchConfig, logger *zap.Logger, onReport func(*report.Report)) *Watcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Watch.Interval
	}
	limit := rate.Inf
	if cfg.RestartGap > 0 {
		limit = rate.Every(cfg.RestartGap)
	}
	limiter := rate.NewLimiter(limit, 1)
	m.allowRestart = limiter.Allow

	return &Watcher{
		monitor:  m,
		interval: interval,
		limiter:  limiter,
		logger:   logger,
		onReport: onReport,
	}
}

// Run checks immediately and then on every tick. It blocks until the context
// is cancelled and returns nil on shutdown.
func (w *Watcher) Run(ctx context.Context, probeArgs ...string) error {
	w.logger.Info("watch mode starting",
		zap.String("unit", w.monitor.cfg.Unit),
		zap.Duration("interval", w.interval),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx, probeArgs)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch mode shutting down")
			return nil
		case <-ticker.C:
			w.check(ctx, probeArgs)
		}
	}
}

func (w *Watcher) check(ctx context.Context, probeArgs []string) {
	rep := w.monitor.Run(ctx, probeArgs...)
	w.logger.Debug("check finished",
		zap.String("outcome", string(rep.Outcome)),
		zap.Strings("steps", rep.StepNames()),
	)
	if w.onReport != nil {
		w.onReport(rep)
	}
}
