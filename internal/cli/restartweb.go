package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/command"
	"github.com/HerbHall/cellwatch/internal/proc"
	"github.com/HerbHall/cellwatch/internal/remote"
	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/tmux"
	"github.com/HerbHall/cellwatch/internal/webrestart"
)

type restartWebFlags struct {
	verifyOnly bool
}

func newRestartWebCommand(g *globalFlags) *cobra.Command {
	flags := &restartWebFlags{}

	cmd := &cobra.Command{
		Use:   "restart-web",
		Short: "Stop, rebuild and relaunch the web front end",
		Long: `Interrupt the web server and router sessions, kill leftover server processes
locally and on the configured remote host, remove stale sockets and verify
that the sessions are gone. Then force a rebuild and relaunch the server in a
new detached session.

Exit codes:
  0  the service was rebuilt and relaunched
  1  sessions survived termination, --verify-only was given, or the build or
     launch failed
  2  usage or configuration error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRestartWeb(cmd.Context(), cmd.OutOrStdout(), g, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.verifyOnly, "verify-only", false, "stop after verifying termination; skip rebuild and relaunch")
	return cmd
}

func runRestartWeb(ctx context.Context, out io.Writer, g *globalFlags, flags *restartWebFlags) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := buildRestarter(a)
	if err != nil {
		return usageError(err)
	}
	a.enableReporting(ctx, false)

	rep, runErr := r.Run(ctx, webrestart.Options{VerifyOnly: flags.verifyOnly})
	a.record(ctx, rep)
	printRestartWeb(out, a.settings.Web.Launch.Session, rep, runErr)
	if rep.ExitCode != ExitOK {
		return &ExitError{Code: rep.ExitCode}
	}
	return nil
}

func buildRestarter(a *app) (*webrestart.Restarter, error) {
	cfg := a.settings.Web
	runner := command.NewExecRunner()

	deps := webrestart.Deps{
		Sessions: tmux.NewClient(runner, tmux.WithSocket(cfg.TmuxSocket)),
		Build:    runner.InDir(cfg.Build.Dir),
		Table:    proc.NewProcFS(),
		Killer:   proc.SignalKiller{},
	}
	if cfg.Remote.Enabled() {
		ssh, err := remote.NewSSHRunner(cfg.Remote.Config)
		if err != nil {
			// The remote kill is best effort; a broken key must not block a
			// local restart.
			a.logger.Warn("remote kill disabled", zap.String("host", cfg.Remote.Host), zap.Error(err))
		} else {
			deps.Remote = ssh
		}
		if cfg.Remote.Ping {
			deps.Pinger = remote.NewICMPPinger(cfg.Remote.PingTimeout, 1)
		}
	}
	return webrestart.New(cfg, deps, a.logger.Named("webrestart"))
}

func printRestartWeb(out io.Writer, session string, rep *report.Report, runErr error) {
	switch {
	case runErr == nil:
		fmt.Fprintf(out, "relaunched %s\n", session)
	case errors.Is(runErr, webrestart.ErrSessionsPersist):
		fmt.Fprintf(out, "sessions not terminated: %v\n", runErr)
	case errors.Is(runErr, webrestart.ErrVerifyOnly):
		fmt.Fprintln(out, "sessions terminated; not rebuilding (verify only)")
	default:
		fmt.Fprintf(out, "restart failed: %v\n", runErr)
	}
	for _, s := range rep.Failed() {
		if s.Name == webrestart.StepVerify {
			continue
		}
		fmt.Fprintf(out, "  %s failed: %s\n", s.Name, s.Detail)
	}
}
