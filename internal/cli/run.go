package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/bombard/internal/config"
	"github.com/wesleyorama2/bombard/internal/engine"
	"github.com/wesleyorama2/bombard/internal/http"
	"github.com/wesleyorama2/bombard/internal/logger"
	"github.com/wesleyorama2/bombard/internal/metrics"
	"github.com/wesleyorama2/bombard/internal/output"
	"github.com/wesleyorama2/bombard/internal/report"
)

// runOptions holds the flags of the run command. Flags only override the
// configuration file when they are set explicitly.
type runOptions struct {
	configFile      string
	threads         int
	iterations      int
	duration        string
	rampup          string
	report          string
	continueOnError bool
	quiet           bool
	noColor         bool
	metricsAddr     string
	format          string
	logLevel        string
}

func newRunCmd() *cobra.Command {
	return runCommand(&runOptions{})
}

func runCommand(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test from a configuration file",
		Long: `Run a load test described by an execution configuration file.

The configuration names the request collection, the optional environment
file and the run shape. Flags override the matching configuration keys.

  bombard run -c load.yaml
  bombard run -c load.json --threads 20 --duration 2m --rampup 10s
  bombard run -c load.yaml --format json --metrics-addr :9100

Interrupting the run (Ctrl-C) stops the workers gracefully and still prints
the summary of everything recorded so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoadTest(ctx, cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Execution configuration file (JSON or YAML)")
	flags.IntVar(&opts.threads, "threads", 0, "Number of concurrent workers")
	flags.IntVar(&opts.iterations, "iterations", 0, "Passes over the collection per worker")
	flags.StringVar(&opts.duration, "duration", "", "Run for a fixed time instead of a number of iterations (e.g. 90s, 5m, 120)")
	flags.StringVar(&opts.rampup, "rampup", "", "Window over which workers are started (e.g. 10s, 30)")
	flags.StringVar(&opts.report, "report", "", "CSV report file")
	flags.BoolVar(&opts.continueOnError, "continue-on-error", false, "Record failed requests instead of aborting the run")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the final status")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.StringVar(&opts.format, "format", string(output.FormatText), "Summary format (text, json, yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// apply copies explicitly set flags onto cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("threads") {
		cfg.ThreadCount = o.threads
	}
	if changed("iterations") {
		cfg.Iterations = o.iterations
	}
	if changed("duration") {
		d, err := config.ParseDurationString(o.duration)
		if err != nil {
			return fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.ExecutionTime = config.Seconds(d)
		// Asking for a duration means a time-bound run unless iterations
		// are given on the command line too.
		if !changed("iterations") {
			cfg.Iterations = 0
		}
	}
	if changed("rampup") {
		d, err := config.ParseDurationString(o.rampup)
		if err != nil {
			return fmt.Errorf("invalid --rampup: %w", err)
		}
		cfg.RampUpTime = config.Seconds(d)
	}
	if changed("report") {
		cfg.ReportFile = o.report
	}
	if changed("continue-on-error") {
		cfg.ContinueOnError = o.continueOnError
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	return nil
}

func runLoadTest(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logOpts := logger.Options{Level: cfg.LogLevel}
	if cfg.LogToFile {
		logOpts.File = cfg.LogFile()
	}
	log, err := logger.New(logOpts)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	envVars, err := config.LoadVariables(cfg.EnvironmentFile)
	if err != nil {
		return err
	}
	variables := config.MergeVariables(envVars, cfg.Variables)

	requests, err := config.LoadRequests(cfg.CollectionFile)
	if err != nil {
		return err
	}

	csvSink, err := report.CreateCSV(cfg.ReportFile, cfg.SyncReport)
	if err != nil {
		return err
	}
	defer csvSink.Close()

	var sink report.Sink = csvSink
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		sink = report.Tee(csvSink, metrics.NewPrometheusSink(registry))

		server, err := startMetricsServer(cfg.MetricsAddr, registry, log)
		if err != nil {
			return err
		}
		defer server.Shutdown()
	}

	client := http.NewClient(
		http.WithTimeout(cfg.Timeout.Duration()),
		http.WithRetryMax(cfg.RetryMax),
		http.WithLogger(log),
	)
	defer client.CloseIdleConnections()

	exec := cfg.Execution()
	out := cmd.OutOrStdout()
	console := output.NewConsole(output.ConsoleConfig{
		Writer:  out,
		Quiet:   opts.quiet || format != output.FormatText,
		NoColor: opts.noColor,
	})
	console.PrintHeader(output.RunInfo{
		RunID:       runID,
		Threads:     exec.ThreadCount,
		Iterations:  exec.Iterations,
		Duration:    exec.ExecutionTime,
		RampUp:      exec.RampUpTime,
		ThreadDelay: exec.ThreadDelay,
		Requests:    len(requests),
		Report:      csvSink.Path(),
		MetricsAddr: cfg.MetricsAddr,
	})

	collected, runErr := engine.Run(ctx, exec, requests, variables, client, sink, engine.WithLogger(log))

	if err := csvSink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close report: %w", err)
	}
	if runErr == nil && ctx.Err() != nil && format == output.FormatText && !opts.quiet {
		console.Warnf("Run interrupted; summarizing %d recorded requests", len(collected))
	}

	summary := metrics.Summarize(collected)
	if format == output.FormatText {
		console.PrintSummary("Load Test", summary, runErr)
	} else if err := output.WriteSummary(out, format, output.NewSummaryData(runID, summary, runErr)); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to write summary: %w", err))
	}

	if runErr != nil {
		return fmt.Errorf("load test failed: %w", runErr)
	}
	return nil
}
