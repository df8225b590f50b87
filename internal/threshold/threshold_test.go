package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "valid p95 latency threshold",
			input: "http_req_duration:p95 < 500",
			want:  Threshold{Metric: "http_req_duration", Aggregate: "p95", Operator: "<", Value: 500, Raw: "http_req_duration:p95 < 500"},
		},
		{
			name:  "valid failure rate threshold",
			input: "http_req_failed:rate < 0.01",
			want:  Threshold{Metric: "http_req_failed", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "http_req_failed:rate < 0.01"},
		},
		{
			name:  "legacy request metric alias",
			input: "http_requests:rate > 100",
			want:  Threshold{Metric: "http_reqs", Aggregate: "rate", Operator: ">", Value: 100, Raw: "http_requests:rate > 100"},
		},
		{
			name:  "mean alias",
			input: "http_req_duration:mean<=200",
			want:  Threshold{Metric: "http_req_duration", Aggregate: "avg", Operator: "<=", Value: 200, Raw: "http_req_duration:mean<=200"},
		},
		{
			name:  "iterations count",
			input: "iterations:count >= 600",
			want:  Threshold{Metric: "iterations", Aggregate: "count", Operator: ">=", Value: 600, Raw: "iterations:count >= 600"},
		},
		{
			name:  "vus_max value",
			input: "vus_max:value == 10",
			want:  Threshold{Metric: "vus_max", Aggregate: "value", Operator: "==", Value: 10, Raw: "vus_max:value == 10"},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "invalid format - missing operator", input: "http_req_duration:p95 500", wantError: true},
		{name: "invalid metric", input: "invalid_metric:p95 < 500", wantError: true},
		{name: "invalid aggregate", input: "http_req_duration:p85 < 500", wantError: true},
		{name: "aggregate not valid for metric", input: "checks:p95 < 500", wantError: true},
		{name: "invalid operator", input: "http_req_duration:p95 << 500", wantError: true},
		{name: "invalid value - not a number", input: "http_req_duration:p95 < abc", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseErrorListsSupportedAggregates(t *testing.T) {
	_, err := Parse("checks:count > 1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "supported: rate") {
		t.Errorf("error = %v", err)
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"http_req_duration:p95 < 500",
				"http_req_failed:rate < 0.01",
				"http_reqs:rate > 100",
			},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"http_req_duration:p95 < 500",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Total:            1000,
		Successes:        980,
		Failures:         20,
		FailureRate:      0.02,
		MinLatencyMs:     10,
		MaxLatencyMs:     500,
		MeanLatencyMs:    100,
		P50LatencyMs:     80,
		P90LatencyMs:     200,
		P95LatencyMs:     300,
		P99LatencyMs:     400,
		RequestsPerSec:   100,
		Iterations:       600,
		IterationsPerSec: 10,
		MeanIterationMs:  1002,
		MaxIterationMs:   1500,
		P95IterationMs:   1300,
		ChecksPassRate:   0.98,
		VUsMax:           10,
		Duration:         time.Minute,
	}
}

func TestEvaluator(t *testing.T) {
	stats := sampleStats()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			thresholds: []string{
				"http_req_duration:p99 < 500",
				"http_req_failed:rate < 0.05",
				"http_reqs:rate > 50",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "some thresholds fail",
			thresholds: []string{
				"http_req_duration:p99 < 300",
				"http_req_failed:rate < 0.01",
				"http_reqs:rate > 50",
			},
			wantPass: []bool{false, false, true},
		},
		{
			name: "latency percentiles",
			thresholds: []string{
				"http_req_duration:p50 < 100",
				"http_req_duration:p90 < 250",
				"http_req_duration:p95 <= 300",
				"http_req_duration:p99 < 450",
			},
			wantPass: []bool{true, true, true, true},
		},
		{
			name: "iteration metrics",
			thresholds: []string{
				"iterations:count >= 600",
				"iterations:rate > 10",
				"iteration_duration:avg < 1100",
				"iteration_duration:max < 1400",
			},
			wantPass: []bool{true, false, true, false},
		},
		{
			name: "checks and vus",
			thresholds: []string{
				"checks:rate > 0.99",
				"vus_max:value == 10",
			},
			wantPass: []bool{false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(stats)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			allPass := true
			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
				allPass = allPass && tt.wantPass[i]
			}
			if AllPassed(results) != allPass {
				t.Errorf("AllPassed() = %v, want %v", AllPassed(results), allPass)
			}
		})
	}
}

func TestEvaluatorMessages(t *testing.T) {
	thresholds, err := ParseMultiple([]string{"http_req_failed:count < 10", "http_reqs:count > 900"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	results := NewEvaluator(thresholds).Evaluate(sampleStats())
	if !strings.HasPrefix(results[0].Message, "✗ http_req_failed:count < 10: 20.00") {
		t.Errorf("unexpected failure message %q", results[0].Message)
	}
	if !strings.HasPrefix(results[1].Message, "✓ http_reqs:count > 900") {
		t.Errorf("unexpected pass message %q", results[1].Message)
	}
}

func TestEvaluateUnknownAggregate(t *testing.T) {
	results := NewEvaluator([]Threshold{{Metric: "checks", Aggregate: "p99", Operator: "<", Raw: "checks:p99 < 1"}}).Evaluate(metrics.Stats{})
	if len(results) != 1 || results[0].Pass {
		t.Fatalf("expected failing result, got %+v", results)
	}
	if !strings.Contains(results[0].Message, "unsupported aggregate") {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestEvaluatorNoThresholds(t *testing.T) {
	if results := NewEvaluator(nil).Evaluate(sampleStats()); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
	if !AllPassed(nil) {
		t.Fatal("AllPassed(nil) should be true")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal equal", 100, "<=", 100, true},
		{"greater than true", 150, ">", 100, true},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
		{"unknown operator", 1, "~", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}
