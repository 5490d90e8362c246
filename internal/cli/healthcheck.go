package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/initsys"
	"github.com/HerbHall/cellwatch/internal/monitor"
	"github.com/HerbHall/cellwatch/internal/proc"
	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/server"
)

type healthcheckFlags struct {
	watch bool
}

func newHealthcheckCommand(g *globalFlags) *cobra.Command {
	flags := &healthcheckFlags{}

	cmd := &cobra.Command{
		Use:   "healthcheck [probe-arg]",
		Short: "Probe the service and restart it on failure",
		Long: `Run the service probe once. When health checks are switched off nothing is
probed. When the probe fails the service unit is stopped, every process of the
service account is killed and the unit is started again.

The optional probe-arg is passed to the probe unmodified. Use the facility
command to switch health checks on or off.

Exit codes:
  0  health checks disabled, or the service is healthy
  1  the probe failed and a restart was attempted
  2  usage or configuration error`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), cmd.OutOrStdout(), g, flags, args)
		},
	}
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "keep checking on the configured interval until interrupted")
	return cmd
}

func runHealthcheck(ctx context.Context, out io.Writer, g *globalFlags, flags *healthcheckFlags, args []string) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := buildMonitor(a)
	if err != nil {
		return usageError(err)
	}
	watch := a.settings.Monitor.Watch
	a.enableReporting(ctx, flags.watch && watch.Listen != "")

	if flags.watch {
		return runWatch(ctx, out, a, m, args)
	}

	rep := m.Run(ctx, args...)
	a.record(ctx, rep)
	printHealthcheck(out, a.settings.Monitor.Unit, rep)
	a.printRecentRestarts(ctx, out, rep, time.Now())
	if rep.ExitCode != ExitOK {
		return &ExitError{Code: rep.ExitCode}
	}
	return nil
}

// runWatch checks on the configured interval until ctx is cancelled, serving
// status over HTTP when monitor.watch.listen is set.
func runWatch(ctx context.Context, out io.Writer, a *app, m *monitor.Monitor, args []string) error {
	watch := a.settings.Monitor.Watch
	g, ctx := errgroup.WithContext(ctx)

	var srv *server.Server
	if watch.Listen != "" {
		srv = server.New(watch.Listen, a.metrics.Registry(), a.logger.Named("server"))
		g.Go(func() error { return srv.Serve(ctx) })
	}

	w := monitor.NewWatcher(m, watch, a.logger.Named("watch"), func(rep *report.Report) {
		a.record(ctx, rep)
		if srv != nil {
			srv.Update(rep)
		}
		printHealthcheck(out, a.settings.Monitor.Unit, rep)
		a.printRecentRestarts(ctx, out, rep, time.Now())
	})
	g.Go(func() error { return w.Run(ctx, args...) })

	if err := g.Wait(); err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}
	return nil
}

func buildMonitor(a *app) (*monitor.Monitor, error) {
	cfg := a.settings.Monitor
	runner := command.NewExecRunner()

	facility, err := buildFacility(runner, cfg.Facility)
	if err != nil {
		return nil, err
	}
	ctl, err := initsys.Detect(runner, cfg.InitSystem)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("init system selected", zap.String("init", ctl.Name()))

	return monitor.New(cfg, monitor.Deps{
		Facility: facility,
		Runner:   runner,
		Init:     ctl,
		Table:    proc.NewProcFS(),
		Killer:   proc.SignalKiller{},
	}, a.logger.Named("monitor"))
}

func buildFacility(runner command.Runner, cfg monitor.FacilityConfig) (monitor.Facility, error) {
	if len(cfg.Command) > 0 {
		return monitor.NewCommandFacility(runner, cfg.Command)
	}
	if cfg.FlagFile == "" {
		return nil, errors.New("monitor.facility needs a command or a flag_file")
	}
	return &monitor.FlagFile{Path: cfg.FlagFile}, nil
}

func printHealthcheck(out io.Writer, unit string, rep *report.Report) {
	switch rep.Outcome {
	case report.OutcomeDisabled:
		fmt.Fprintf(out, "health checks disabled (%s)\n", rep.Detail)
	case report.OutcomeHealthy:
		fmt.Fprintf(out, "%s is healthy\n", unit)
	case report.OutcomeSuppressed:
		fmt.Fprintf(out, "%s failed its probe; restart suppressed by rate limit\n", unit)
	default:
		fmt.Fprintf(out, "%s failed its probe; restarted\n", unit)
		for _, s := range rep.Failed() {
			if s.Name == monitor.StepProbe {
				continue
			}
			fmt.Fprintf(out, "  %s failed: %s\n", s.Name, s.Detail)
		}
	}
}
