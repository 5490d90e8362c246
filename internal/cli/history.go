package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/cellwatch/internal/report"
)

type historyFlags struct {
	kind   string
	limit  int
	output string
}

func newHistoryCommand(g *globalFlags) *cobra.Command {
	flags := &historyFlags{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent healthcheck and restart-web runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := parseKind(flags.kind)
			if err != nil {
				return usageError(err)
			}
			switch flags.output {
			case "table", "json", "yaml":
			default:
				return usageError(fmt.Errorf("invalid output %q: valid values are table, json, yaml", flags.output))
			}

			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			a.openJournal(ctx)
			if a.journal == nil {
				return &ExitError{Code: ExitFailure, Err: fmt.Errorf("journal %s is not available", a.settings.Journal.Path)}
			}
			runs, err := a.journal.Recent(ctx, kind, flags.limit)
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			return writeHistory(cmd.OutOrStdout(), flags.output, runs)
		},
	}
	cmd.Flags().StringVar(&flags.kind, "kind", "", "filter by kind: healthcheck, restart-web")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 20, "maximum runs to show")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "table", "output format: table, json, yaml")

	cmd.AddCommand(newHistoryArchiveCommand(g))
	return cmd
}

func newHistoryArchiveCommand(g *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Write the journal and config to a tar.gz archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(g)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			a.openJournal(ctx)
			if a.journal == nil {
				return &ExitError{Code: ExitFailure, Err: fmt.Errorf("journal %s is not available", a.settings.Journal.Path)}
			}
			if output == "" {
				output = fmt.Sprintf("cellwatch-history-%s.tar.gz", time.Now().Format("20060102-150405"))
			}
			if err := a.journal.Archive(ctx, a.cfg.File(), output); err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archive created: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default cellwatch-history-{timestamp}.tar.gz)")
	return cmd
}

func parseKind(s string) (report.Kind, error) {
	switch k := report.Kind(s); k {
	case "", report.KindHealthCheck, report.KindWebRestart:
		return k, nil
	default:
		return "", fmt.Errorf("invalid kind %q: valid values are %s, %s", s, report.KindHealthCheck, report.KindWebRestart)
	}
}

func writeHistory(out io.Writer, format string, runs []report.Report) error {
	if runs == nil {
		runs = []report.Report{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return err
		}
		return enc.Close()
	}

	table := tablewriter.NewWriter(out)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.SetAutoWrapText(false)

	table.SetHeader([]string{"Started", "Kind", "Outcome", "Exit", "Took", "Failed steps"})
	for _, r := range runs {
		var failed []string
		for _, s := range r.Failed() {
			failed = append(failed, s.Name)
		}
		table.Append([]string{
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Kind),
			string(r.Outcome),
			strconv.Itoa(r.ExitCode),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			strings.Join(failed, ","),
		})
	}
	table.Render()
	return nil
}
