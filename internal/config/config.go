package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults mirror the reference members scenario.
const (
	DefaultTarget       = "http://localhost:8080/members"
	DefaultVUs          = 10
	DefaultDuration     = time.Minute
	DefaultSleep        = time.Second
	DefaultTimeout      = 60 * time.Second
	DefaultGracefulStop = 30 * time.Second
)

type ProgressMode string

const (
	ProgressAuto ProgressMode = "auto"
	ProgressBar  ProgressMode = "bar"
	ProgressLine ProgressMode = "line"
	ProgressNone ProgressMode = "none"
)

type Config struct {
	TargetURL             string            `mapstructure:"target"`
	Headers               map[string]string `mapstructure:"headers"`
	UserAgent             string            `mapstructure:"user_agent"`
	VUs                   int               `mapstructure:"vus"`
	Duration              time.Duration     `mapstructure:"duration"`
	Sleep                 time.Duration     `mapstructure:"sleep"`
	Timeout               time.Duration     `mapstructure:"timeout"`
	GracefulStop          time.Duration     `mapstructure:"graceful_stop"`
	Iterations            int               `mapstructure:"iterations"`
	RPS                   int               `mapstructure:"rps"`
	Stages                []Stage           `mapstructure:"stages"`
	NoConnectionReuse     bool              `mapstructure:"no_connection_reuse"`
	InsecureSkipTLSVerify bool              `mapstructure:"insecure_skip_tls_verify"`
	Thresholds            []string          `mapstructure:"thresholds"`
	Checks                []string          `mapstructure:"checks"`
	JSONOutput            bool              `mapstructure:"json_output"`
	SummaryExport         string            `mapstructure:"summary_export"`
	HistoryFile           string            `mapstructure:"history_file"`
	Progress              ProgressMode      `mapstructure:"progress"`
	Dashboard             bool              `mapstructure:"dashboard"`
	LogErrors             bool              `mapstructure:"log_errors"`
	LogLevel              string            `mapstructure:"log_level"`
	LogFormat             string            `mapstructure:"log_format"`
	Tracing               TracingConfig     `mapstructure:"tracing"`
	ConfigFile            string            `mapstructure:"-"`
}

// Stage moves the active VU count linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration"`
	Target   int           `mapstructure:"target"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether any tracing output or propagation was requested.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || (t.Propagate != nil && *t.Propagate)
}

// ShouldPropagate defaults to true once tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return strings.TrimSpace(t.Endpoint) != ""
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		TargetURL:    DefaultTarget,
		Headers:      map[string]string{},
		VUs:          DefaultVUs,
		Duration:     DefaultDuration,
		Sleep:        DefaultSleep,
		Timeout:      DefaultTimeout,
		GracefulStop: DefaultGracefulStop,
		Progress:     ProgressAuto,
		LogLevel:     "info",
		LogFormat:    "console",
		Tracing:      TracingConfig{SampleRate: 1.0},
	}
}

// MaxVUs is the size of the VU pool: the largest stage target, or VUs.
func (c Config) MaxVUs() int {
	if len(c.Stages) == 0 {
		return c.VUs
	}
	max := 0
	for _, s := range c.Stages {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// TotalDuration is the scheduled run length: the stage sum when stages are set.
func (c Config) TotalDuration() time.Duration {
	if len(c.Stages) == 0 {
		return c.Duration
	}
	var total time.Duration
	for _, s := range c.Stages {
		total += s.Duration
	}
	return total
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateTarget(c.TargetURL)...)

	if len(c.Stages) == 0 && c.VUs < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if len(c.Stages) == 0 && c.Duration == 0 && c.Iterations == 0 {
		issues = append(issues, "duration must be > 0 unless iterations or stages are set")
	}
	if c.Sleep < 0 {
		issues = append(issues, "sleep must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful_stop must be >= 0")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.RPS < 0 {
		issues = append(issues, "rps must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	issues = append(issues, validateStages(c.Stages)...)
	issues = append(issues, validateProgress(c.Progress)...)
	issues = append(issues, validateSummaryExport(c.SummaryExport)...)
	issues = append(issues, validateLogging(c.LogLevel, c.LogFormat)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	for key, value := range c.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			issues = append(issues, fmt.Sprintf("headers: invalid key %q", key))
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("headers: invalid value for %s", key))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return []string{"target is required (use --help for usage information)"}
	}
	u, err := url.Parse(target)
	if err != nil {
		return []string{fmt.Sprintf("target: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("target: scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return []string{"target: host is required"}
	}
	return nil
}

func validateStages(stages []Stage) []string {
	var issues []string
	if len(stages) == 0 {
		return nil
	}
	peak := 0
	for idx, s := range stages {
		if s.Duration <= 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: duration must be > 0", idx))
		}
		if s.Target < 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: target must be >= 0", idx))
		}
		if s.Target > peak {
			peak = s.Target
		}
	}
	if peak == 0 {
		issues = append(issues, "stages: at least one stage must target >= 1 VU")
	}
	return issues
}

func validateProgress(mode ProgressMode) []string {
	switch mode {
	case "", ProgressAuto, ProgressBar, ProgressLine, ProgressNone:
		return nil
	default:
		return []string{fmt.Sprintf("progress: must be 'auto', 'bar', 'line' or 'none', got %q", mode)}
	}
}

func validateSummaryExport(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return nil
	}
	return []string{fmt.Sprintf("summary_export: %q must end in .json, .yaml or .yml", path)}
}

func validateLogging(level, format string) []string {
	var issues []string
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level: unsupported level %q", level))
	}
	switch strings.ToLower(format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format: must be 'console' or 'json', got %q", format))
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
