// Package cli implements the cellwatch cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HerbHall/cellwatch/internal/version"
)

// Exit codes shared by every command.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries a process exit code out of a command. Err may be nil
// when the command already printed everything the operator needs.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	configPath string
	debug      bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "cellwatch",
		Short: "Keep a compute-cell deployment alive",
		Long: `cellwatch probes the compute-cell service and restarts it when the probe
fails, and performs the full stop, rebuild and relaunch of the web front end.

Typical scheduling:
  */5 * * * *  cellwatch healthcheck
  cellwatch restart-web
  cellwatch restart-web --verify-only`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Info(),
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (default /etc/cellwatch/cellwatch.yaml)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "debug logging to stderr")

	root.AddCommand(newHealthcheckCommand(g))
	root.AddCommand(newFacilityCommand(g))
	root.AddCommand(newRestartWebCommand(g))
	root.AddCommand(newHistoryCommand(g))
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs root with SIGINT and SIGTERM cancelling the command context
// and returns the process exit code.
func Execute(root *cobra.Command, args []string, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "cellwatch: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	// Flag parsing and argument validation errors.
	fmt.Fprintf(stderr, "cellwatch: %v\n", err)
	return ExitUsage
}
