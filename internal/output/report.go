package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// Report is the end-of-run document shared by the text summary, the JSON
// report, summary exports and the history file.
type Report struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time          `json:"started_at" yaml:"started_at"`
	Target     string             `json:"target" yaml:"target"`
	Scenario   Scenario           `json:"scenario" yaml:"scenario"`
	Aborted    bool               `json:"aborted" yaml:"aborted"`
	Stats      metrics.Stats      `json:"metrics" yaml:"metrics"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Scenario describes the configured load shape.
type Scenario struct {
	VUs        int     `json:"vus" yaml:"vus"`
	DurationMs float64 `json:"duration_ms" yaml:"duration_ms"`
	SleepMs    float64 `json:"sleep_ms" yaml:"sleep_ms"`
	Stages     int     `json:"stages,omitempty" yaml:"stages,omitempty"`
	Iterations int64   `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	RPS        float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
}

// NewRunID returns a lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// ThresholdsPassed is true when no threshold failed.
func (r Report) ThresholdsPassed() bool {
	return threshold.AllPassed(r.Thresholds)
}

const labelWidth = 28

func writeMetric(w io.Writer, name, format string, args ...interface{}) {
	dots := labelWidth - len(name)
	if dots < 3 {
		dots = 3
	}
	fmt.Fprintf(w, "  %s%s: %s\n", name, strings.Repeat(".", dots), fmt.Sprintf(format, args...))
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	sc := r.Scenario

	fmt.Fprintf(w, "\n--- vuload results (run %s) ---\n", r.RunID)
	fmt.Fprintf(w, "  target: %s\n", r.Target)
	if sc.Stages > 0 {
		fmt.Fprintf(w, "  scenario: up to %d VUs over %d stages (%s), sleep %s\n",
			sc.VUs, sc.Stages, msDuration(sc.DurationMs), msDuration(sc.SleepMs))
	} else {
		fmt.Fprintf(w, "  scenario: %d VUs for %s, sleep %s\n",
			sc.VUs, msDuration(sc.DurationMs), msDuration(sc.SleepMs))
	}
	if r.Aborted {
		fmt.Fprintln(w, "  run aborted before the scheduled end")
	}
	fmt.Fprintln(w)

	if len(stats.Checks) > 0 {
		var passes, fails int64
		for _, c := range stats.Checks {
			passes += c.Passes
			fails += c.Fails
		}
		writeMetric(w, "checks", "%.2f%% ✓ %d ✗ %d", stats.ChecksPassRate*100, passes, fails)
		for _, c := range stats.Checks {
			mark := "✓"
			if c.Fails > 0 {
				mark = "✗"
			}
			fmt.Fprintf(w, "    %s %s (%d/%d)\n", mark, c.Name, c.Passes, c.Passes+c.Fails)
		}
	}
	writeMetric(w, "data_received", "%d B", stats.BytesReceived)
	writeMetric(w, "http_req_duration", "avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s p(99)=%s",
		ms(stats.MeanLatency), ms(stats.MinLatency), ms(stats.P50Latency), ms(stats.MaxLatency),
		ms(stats.P90Latency), ms(stats.P95Latency), ms(stats.P99Latency))
	writeMetric(w, "http_req_failed", "%.2f%% (%d of %d)", stats.FailureRate*100, stats.Failures, stats.Total)
	writeMetric(w, "http_reqs", "%d %.2f/s", stats.Total, stats.RequestsPerSec)
	writeMetric(w, "iteration_duration", "avg=%s min=%s max=%s p(95)=%s",
		ms(stats.MeanIteration), ms(stats.MinIteration), ms(stats.MaxIteration), ms(stats.P95Iteration))
	writeMetric(w, "iterations", "%d %.2f/s", stats.Iterations, stats.IterationsPerSec)
	if stats.InterruptedIterations > 0 {
		writeMetric(w, "interrupted_iterations", "%d", stats.InterruptedIterations)
	}
	writeMetric(w, "max_in_flight", "%d", stats.MaxInFlight)
	writeMetric(w, "vus_max", "%d", stats.VUsMax)
	writeMetric(w, "duration", "%s", stats.Duration.Round(time.Millisecond))

	if len(stats.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		writeBuckets(w, stats.StatusCodes, "  ")
	}
	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		writeBuckets(w, stats.Errors, "  ")
	}
	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

func msDuration(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeBuckets(w io.Writer, buckets map[string]int, indent string) {
	for _, row := range metrics.FlattenStatusBuckets(buckets) {
		fmt.Fprintf(w, "%s%s: %d\n", indent, row.Code, row.Count)
	}
}
