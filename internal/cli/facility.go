package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/monitor"
)

func newFacilityCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facility",
		Short: "Switch health checks on or off",
		Long: `Manage the built-in flag file that gates healthcheck. A missing flag file
means checks are on. When monitor.facility.command is configured the gate is
external and these commands refuse to run.

Exit codes:
  0  success; for status, health checks are on
  1  health checks are off (status), or the flag file could not be written
  2  usage or configuration error`,
		Args: cobra.NoArgs,
	}
	cmd.AddCommand(
		newFacilityActionCommand(g, "on", "Switch health checks on"),
		newFacilityActionCommand(g, "off", "Switch health checks off"),
		newFacilityActionCommand(g, "status", "Show whether health checks are on"),
	)
	return cmd
}

// newFacilityActionCommand builds one of on, off and status. status exits 1
// when checks are off, so it can itself serve as an external facility.
func newFacilityActionCommand(g *globalFlags, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			fc := a.settings.Monitor.Facility
			if len(fc.Command) > 0 {
				return usageError(fmt.Errorf("health checks are gated by %q; manage them with that command", fc.Command[0]))
			}
			if fc.FlagFile == "" {
				return usageError(errors.New("monitor.facility.flag_file is not set"))
			}
			flag := &monitor.FlagFile{Path: fc.FlagFile}
			out := cmd.OutOrStdout()

			switch action {
			case "on", "off":
				if err := flag.Set(action == "on"); err != nil {
					return &ExitError{Code: ExitFailure, Err: err}
				}
				a.logger.Info("health check facility switched", zap.String("state", action), zap.String("file", fc.FlagFile))
				fmt.Fprintf(out, "health checks %s\n", action)
			default:
				on, err := flag.State()
				if err != nil {
					return &ExitError{Code: ExitFailure, Err: err}
				}
				state := "off"
				if on {
					state = "on"
				}
				fmt.Fprintf(out, "health checks %s\n", state)
				if !on {
					return &ExitError{Code: ExitFailure}
				}
			}
			return nil
		},
	}
}
