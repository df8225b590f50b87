package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up the run flags. Defaults shown in --help match Default().
func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	// Scenario
	flags.String("target", def.TargetURL, "URL each virtual user requests with GET")
	flags.IntP("vus", "u", def.VUs, "Number of concurrent virtual users")
	flags.DurationP("duration", "d", def.Duration, "How long to run the test (e.g. 30s, 1m)")
	flags.Duration("sleep", def.Sleep, "Pause after each iteration")
	flags.IntP("iterations", "i", 0, "Total iterations shared by all VUs (0 means unlimited)")
	flags.StringSlice("stage", nil, "Ramp stage as duration:target, repeatable (e.g. 30s:20)")
	flags.Int("rps", 0, "Global cap on requests per second (0 means unlimited)")

	// Request
	flags.StringSliceP("header", "H", nil, "Additional request header in key=value form")
	flags.String("user-agent", "", "User-Agent header (default vuload/<version>)")
	flags.Duration("timeout", def.Timeout, "Per-request timeout")
	flags.Duration("graceful-stop", def.GracefulStop, "How long in-flight iterations may run after the test ends")
	flags.Bool("no-connection-reuse", false, "Disable keep-alive between iterations")
	flags.Bool("insecure-skip-tls-verify", false, "Skip TLS certificate verification")

	// Assertions
	flags.StringSlice("threshold", nil, "Pass/fail criterion, repeatable (e.g. 'http_req_duration:p95 < 500')")
	flags.StringSlice("check", nil, "Response check, repeatable (e.g. 'status == 200', 'json # > 0')")

	// Output
	flags.Bool("json-output", false, "Emit the end-of-test summary as JSON")
	flags.String("summary-export", "", "Write the summary to a .json or .yaml file")
	flags.String("history-file", "", "Append one JSON line per run to this file")
	flags.String("progress", string(def.Progress), "Progress display: auto, bar, line or none")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", def.LogFormat, "Log format: console or json")
	flags.StringP("config", "c", "", "Path to configuration file (YAML, JSON or TOML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for request spans (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Use a plaintext connection to the OTLP endpoint")
	flags.Float64("tracing-sample-rate", def.Tracing.SampleRate, "Fraction of requests to trace")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context into requests")
}

// applyFlagOverrides copies explicitly set flags onto cfg.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v string
		v, err = fs.GetString(name)
		*dst = strings.TrimSpace(v)
	}
	integer := func(name string, dst *int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetInt(name)
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetBool(name)
	}
	slice := func(name string, dst *[]string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetStringSlice(name)
	}

	str("target", &cfg.TargetURL)
	integer("vus", &cfg.VUs)
	integer("iterations", &cfg.Iterations)
	integer("rps", &cfg.RPS)
	str("user-agent", &cfg.UserAgent)
	boolean("no-connection-reuse", &cfg.NoConnectionReuse)
	boolean("insecure-skip-tls-verify", &cfg.InsecureSkipTLSVerify)
	slice("threshold", &cfg.Thresholds)
	slice("check", &cfg.Checks)
	boolean("json-output", &cfg.JSONOutput)
	str("summary-export", &cfg.SummaryExport)
	str("history-file", &cfg.HistoryFile)
	boolean("dashboard", &cfg.Dashboard)
	boolean("log-errors", &cfg.LogErrors)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("tracing-endpoint", &cfg.Tracing.Endpoint)
	str("tracing-protocol", &cfg.Tracing.Protocol)
	boolean("tracing-insecure", &cfg.Tracing.Insecure)
	if err != nil {
		return err
	}

	for name, dst := range map[string]*time.Duration{
		"duration":      &cfg.Duration,
		"sleep":         &cfg.Sleep,
		"timeout":       &cfg.Timeout,
		"graceful-stop": &cfg.GracefulStop,
	} {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed("progress") {
		v, err := fs.GetString("progress")
		if err != nil {
			return err
		}
		cfg.Progress = ProgressMode(strings.ToLower(strings.TrimSpace(v)))
	}
	if fs.Changed("tracing-sample-rate") {
		v, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = v
	}
	if fs.Changed("tracing-propagate") {
		v, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &v
	}

	if fs.Changed("stage") {
		vals, err := fs.GetStringSlice("stage")
		if err != nil {
			return err
		}
		stages := make([]Stage, 0, len(vals))
		for _, entry := range vals {
			stage, err := parseStageFlag(entry)
			if err != nil {
				return err
			}
			stages = append(stages, stage)
		}
		cfg.Stages = stages
	}

	headers, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range headers {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}

// parseStageFlag parses "30s:20" into a Stage.
func parseStageFlag(entry string) (Stage, error) {
	parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
	if len(parts) != 2 {
		return Stage{}, fmt.Errorf("stage must be in duration:target format: %s", entry)
	}
	dur, err := asDuration(parts[0])
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: duration: %w", entry, err)
	}
	target, err := asInt(parts[1])
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: target: %w", entry, err)
	}
	return Stage{Duration: dur, Target: target}, nil
}
