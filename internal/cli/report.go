package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/bombard/internal/config"
	"github.com/wesleyorama2/bombard/internal/metrics"
	"github.com/wesleyorama2/bombard/internal/output"
	"github.com/wesleyorama2/bombard/internal/report"
)

type reportOptions struct {
	configFile string
	file       string
	format     string
	noColor    bool
}

func newReportCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a CSV report from an earlier run",
		Long: `Read the CSV report written by a previous run and print its summary.

The report is taken from --file, or from the report_file of the
configuration given with --config.

  bombard report --file report.csv
  bombard report -c load.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return summarizeReport(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Execution configuration file naming the report")
	flags.StringVarP(&opts.file, "file", "f", "", "CSV report file")
	flags.StringVar(&opts.format, "format", string(output.FormatText), "Summary format (text, json, yaml)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.MarkFlagsMutuallyExclusive("config", "file")

	return cmd
}

func (o *reportOptions) reportPath() (string, error) {
	switch {
	case o.file != "":
		return o.file, nil
	case o.configFile != "":
		cfg, err := config.LoadConfig(o.configFile)
		if err != nil {
			return "", err
		}
		return cfg.ReportFile, nil
	}
	return "", errors.New("either --config or --file is required")
}

func summarizeReport(cmd *cobra.Command, opts *reportOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	path, err := opts.reportPath()
	if err != nil {
		return err
	}

	records, err := report.ReadCSV(path)
	if err != nil {
		return err
	}
	summary := metrics.Summarize(records)

	out := cmd.OutOrStdout()
	if format != output.FormatText {
		return output.WriteSummary(out, format, output.NewSummaryData("", summary, nil))
	}

	console := output.NewConsole(output.ConsoleConfig{Writer: out, NoColor: opts.noColor})
	console.PrintSummary(fmt.Sprintf("Report %s", filepath.Base(path)), summary, nil)
	return nil
}
