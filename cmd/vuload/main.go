package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/dashboard"
	"github.com/torosent/vuload/internal/httpclient"
	"github.com/torosent/vuload/internal/logging"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/output"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/threshold"
	"github.com/torosent/vuload/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK         = 0
	exitFailure    = 1
	exitThresholds = 99
	exitAborted    = 105

	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := newRunCommand("vuload", stdout, stderr)
	root.Short = "Closed-model HTTP load generator"
	root.Long = "vuload runs a pool of virtual users that each loop {GET target, sleep} until the test ends.\n" +
		"With no flags it runs 10 VUs for 1m against http://localhost:8080/members with a 1s sleep."

	run := newRunCommand("run", stdout, stderr)
	run.Short = "Run a load test (default command)"
	root.AddCommand(run)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "vuload %s\n", version)
		},
	})
	return root
}

func newRunCommand(use string, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			report, err := runTest(cmd.Context(), cfg, stdout, stderr)
			if err != nil {
				return err
			}
			switch {
			case report.Aborted:
				return &exitError{code: exitAborted}
			case !report.ThresholdsPassed():
				return &exitError{code: exitThresholds}
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	config.RegisterFlags(cmd)
	return cmd
}

// runTest executes one load test and writes every configured report.
func runTest(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (output.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return output.Report{}, err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return output.Report{}, err
	}
	defer func() { _ = log.Sync() }()

	checks, err := check.ParseAll(cfg.Checks)
	if err != nil {
		return output.Report{}, err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return output.Report{}, err
	}
	builder, err := httpclient.NewRequestBuilder(cfg, "vuload/"+version)
	if err != nil {
		return output.Report{}, err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return output.Report{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	client := httpclient.NewClient(httpclient.ClientOptions{
		Timeout:               cfg.Timeout,
		MaxConnsPerHost:       cfg.MaxVUs(),
		DisableKeepAlives:     cfg.NoConnectionReuse,
		InsecureSkipTLSVerify: cfg.InsecureSkipTLSVerify,
	})
	defer client.CloseIdleConnections()

	collector := metrics.NewCollector()
	var requester runner.Requester = &httpRequester{
		client:    client,
		builder:   builder,
		collector: collector,
		checks:    checks,
		tracer:    tp.Tracer(),
		propagate: tp.ShouldPropagate(),
	}
	if cfg.LogErrors {
		requester = runner.WithLogging(requester, logging.NewFailureLogger(log))
	}

	r := runner.New(runner.Options{
		VUs:           cfg.VUs,
		Duration:      cfg.Duration,
		Sleep:         cfg.Sleep,
		GracefulStop:  cfg.GracefulStop,
		Iterations:    cfg.Iterations,
		RatePerSecond: cfg.RPS,
		Stages:        toRunnerStages(cfg.Stages),
		Requester:     requester,
		OnIteration: func(res runner.IterationResult) {
			collector.RecordIteration(res.Duration, res.Interrupted)
		},
	})
	collector.SetVUsMax(r.MaxVUs())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runID := output.NewRunID()
	report := output.Report{
		RunID:  runID,
		Target: builder.Target(),
		Scenario: output.Scenario{
			VUs:        r.MaxVUs(),
			DurationMs: toMs(r.TotalDuration()),
			SleepMs:    toMs(cfg.Sleep),
			Stages:     len(cfg.Stages),
			Iterations: int64(cfg.Iterations),
			RPS:        float64(cfg.RPS),
		},
	}

	var stopLive func()
	if cfg.Dashboard {
		dash, err := dashboard.New(collector, r.ActiveVUs, dashboard.TestConfig{
			TargetURL:  builder.Target(),
			VUs:        r.MaxVUs(),
			Duration:   r.TotalDuration(),
			Sleep:      cfg.Sleep,
			Stages:     len(cfg.Stages),
			Iterations: int64(cfg.Iterations),
			RPS:        float64(cfg.RPS),
			Timeout:    cfg.Timeout,
			ConfigFile: cfg.ConfigFile,
		}, cancelRun)
		if err != nil {
			return output.Report{}, err
		}
		dash.Start()
		stopLive = dash.Stop
	} else if !cfg.JSONOutput {
		progress := output.NewProgress(cfg.Progress, output.Source{
			Collector: collector,
			ActiveVUs: r.ActiveVUs,
			MaxVUs:    r.MaxVUs(),
			Total:     r.TotalDuration(),
		}, progressInterval, stdout)
		if progress != nil {
			progress.Start()
			stopLive = progress.Stop
		}
	}

	log.Info("run started",
		zap.String("run_id", runID),
		zap.String("target", report.Target),
		zap.Int("vus", r.MaxVUs()),
		zap.Duration("duration", r.TotalDuration()),
		zap.Duration("sleep", cfg.Sleep),
	)

	report.StartedAt = time.Now().UTC()
	collector.Start()
	result := r.Run(runCtx)
	report.Aborted = runCtx.Err() != nil

	if stopLive != nil {
		stopLive()
	}

	report.Stats = collector.Stats(result.Duration)
	report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(report.Stats)

	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Int64("iterations", result.Iterations),
		zap.Int64("interrupted", result.Interrupted),
		zap.Int64("failed", result.Errors),
		zap.Duration("elapsed", result.Duration),
	}
	if report.Aborted {
		log.Warn("run aborted", fields...)
	} else {
		log.Info("run finished", fields...)
	}
	for _, res := range report.Thresholds {
		if !res.Pass {
			log.Warn("threshold crossed", zap.String("threshold", res.Raw), zap.Float64("actual", res.Actual))
		}
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return report, err
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if cfg.SummaryExport != "" {
		if err := output.WriteSummary(cfg.SummaryExport, report); err != nil {
			return report, err
		}
	}
	if cfg.HistoryFile != "" {
		if err := output.AppendHistory(cfg.HistoryFile, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func toRunnerStages(stages []config.Stage) []runner.Stage {
	if len(stages) == 0 {
		return nil
	}
	out := make([]runner.Stage, len(stages))
	for i, s := range stages {
		out[i] = runner.Stage{Duration: s.Duration, Target: s.Target}
	}
	return out
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
