package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/alert"
	"github.com/HerbHall/cellwatch/internal/config"
	"github.com/HerbHall/cellwatch/internal/journal"
	"github.com/HerbHall/cellwatch/internal/logging"
	"github.com/HerbHall/cellwatch/internal/metrics"
	"github.com/HerbHall/cellwatch/internal/report"
)

// app is the per-invocation environment shared by the commands.
type app struct {
	cfg      *config.Config
	settings *config.Settings
	logger   *zap.Logger

	store   *journal.Store
	journal *journal.Journal
	metrics *metrics.Exporter
	alerts  *alert.Notifier
}

// newApp loads configuration and builds the logger. Configuration errors are
// usage errors. The journal is opened lazily by openJournal.
func newApp(g *globalFlags) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, usageError(err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, usageError(err)
	}
	logger, err := logging.New(settings.Log, g.debug)
	if err != nil {
		return nil, usageError(err)
	}
	if f := cfg.File(); f != "" {
		logger.Debug("configuration loaded", zap.String("file", f))
	}
	return &app{cfg: cfg, settings: settings, logger: logger}, nil
}

// openJournal opens the run history. A journal that cannot be opened is
// logged and left nil; recording history never decides an exit code.
func (a *app) openJournal(ctx context.Context) {
	jc := a.settings.Journal
	if !jc.Enabled || jc.Path == "" {
		return
	}
	store, err := journal.Open(jc.Path)
	if err != nil {
		a.logger.Warn("journal unavailable", zap.String("path", jc.Path), zap.Error(err))
		return
	}
	j, err := journal.New(ctx, store)
	if err != nil {
		store.Close()
		a.logger.Warn("journal migration failed", zap.String("path", jc.Path), zap.Error(err))
		return
	}
	a.store, a.journal = store, j
}

// enableReporting prepares the journal, metrics exporter and alerts used by
// record. withMetrics forces an exporter even without a textfile.
func (a *app) enableReporting(ctx context.Context, withMetrics bool) {
	a.openJournal(ctx)
	a.alerts = alert.New(a.settings.Alert, a.logger.Named("alert"))

	if a.settings.Metrics.Textfile == "" && !withMetrics {
		return
	}
	a.metrics = metrics.New()
	if a.journal == nil {
		return
	}
	totals, err := a.journal.Totals(ctx)
	if err != nil {
		a.logger.Warn("cannot seed metrics from journal", zap.Error(err))
		return
	}
	for _, t := range totals {
		a.metrics.Seed(t.Kind, t.Outcome, t.Count)
	}
}

// record hands a finished report to the journal, the metrics textfile and the
// alert webhook. Every failure is logged and swallowed.
func (a *app) record(ctx context.Context, rep *report.Report) {
	// Reporting must still happen when the run was interrupted.
	ctx = context.WithoutCancel(ctx)

	if a.journal != nil {
		if err := a.journal.Record(ctx, rep); err != nil {
			a.logger.Warn("journal record failed", zap.String("run_id", rep.ID), zap.Error(err))
		}
		if r := a.settings.Journal.Retention; r > 0 {
			if n, err := a.journal.Prune(ctx, time.Now().Add(-r)); err != nil {
				a.logger.Warn("journal prune failed", zap.Error(err))
			} else if n > 0 {
				a.logger.Debug("journal pruned", zap.Int64("runs", n))
			}
		}
	}

	if a.metrics != nil {
		a.metrics.Observe(rep)
		if path := a.settings.Metrics.Textfile; path != "" {
			if err := a.metrics.WriteTextfile(path); err != nil {
				a.logger.Warn("metrics export failed", zap.Error(err))
			}
		}
	}

	if err := a.alerts.Notify(ctx, rep); err != nil {
		a.logger.Warn("alert failed", zap.Error(err))
	}
}

// restartWindow is the span summarized after a remedial restart.
const restartWindow = 24 * time.Hour

// printRecentRestarts follows a remedial restart with the number of restarts
// the journal holds for the last restartWindow, so a flapping service stands
// out. It prints nothing without a journal.
func (a *app) printRecentRestarts(ctx context.Context, out io.Writer, rep *report.Report, now time.Time) {
	if a.journal == nil || rep.Outcome != report.OutcomeRestarted {
		return
	}
	n, err := a.journal.CountSince(ctx, report.KindHealthCheck, report.OutcomeRestarted, now.Add(-restartWindow))
	if err != nil {
		a.logger.Warn("cannot count recent restarts", zap.Error(err))
		return
	}
	if n > 1 {
		a.logger.Warn("service restarted repeatedly", zap.Int("restarts", n), zap.Duration("window", restartWindow))
	}
	fmt.Fprintf(out, "  restarts in the last 24h: %d\n", n)
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Debug("journal close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
