// Package threshold evaluates pass/fail criteria against end-of-test metrics.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/vuload/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "http_req_failed"
	Aggregate string  // e.g., "p95", "avg", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Raw       string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

type extractor func(metrics.Stats) float64

// aggregates lists, per metric, how each aggregate is read from Stats.
// Durations are in milliseconds, rates per second or as a 0..1 ratio.
var aggregates = map[string]map[string]extractor{
	"http_req_duration": {
		"avg": func(s metrics.Stats) float64 { return s.MeanLatencyMs },
		"min": func(s metrics.Stats) float64 { return s.MinLatencyMs },
		"max": func(s metrics.Stats) float64 { return s.MaxLatencyMs },
		"p50": func(s metrics.Stats) float64 { return s.P50LatencyMs },
		"p90": func(s metrics.Stats) float64 { return s.P90LatencyMs },
		"p95": func(s metrics.Stats) float64 { return s.P95LatencyMs },
		"p99": func(s metrics.Stats) float64 { return s.P99LatencyMs },
	},
	"http_req_failed": {
		"rate":  func(s metrics.Stats) float64 { return s.FailureRate },
		"count": func(s metrics.Stats) float64 { return float64(s.Failures) },
	},
	"http_reqs": {
		"count": func(s metrics.Stats) float64 { return float64(s.Total) },
		"rate":  func(s metrics.Stats) float64 { return s.RequestsPerSec },
	},
	"iterations": {
		"count": func(s metrics.Stats) float64 { return float64(s.Iterations) },
		"rate":  func(s metrics.Stats) float64 { return s.IterationsPerSec },
	},
	"iteration_duration": {
		"avg": func(s metrics.Stats) float64 { return s.MeanIterationMs },
		"min": func(s metrics.Stats) float64 { return s.MinIterationMs },
		"max": func(s metrics.Stats) float64 { return s.MaxIterationMs },
		"p95": func(s metrics.Stats) float64 { return s.P95IterationMs },
	},
	"checks": {
		"rate": func(s metrics.Stats) float64 { return s.ChecksPassRate },
	},
	"vus_max": {
		"value": func(s metrics.Stats) float64 { return float64(s.VUsMax) },
	},
}

var metricAliases = map[string]string{
	"http_requests": "http_reqs",
}

var aggregateAliases = map[string]string{
	"mean": "avg",
}

const epsilon = 1e-9

// operators compares an actual value against the configured one. Equality
// tolerates float rounding.
var operators = map[string]func(actual, want float64) bool{
	"<":  func(a, w float64) bool { return a < w },
	"<=": func(a, w float64) bool { return a <= w || math.Abs(a-w) < epsilon },
	">":  func(a, w float64) bool { return a > w },
	">=": func(a, w float64) bool { return a >= w || math.Abs(a-w) < epsilon },
	"==": func(a, w float64) bool { return math.Abs(a-w) < epsilon },
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Evaluator checks a fixed set of thresholds against end-of-run stats.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns one Result per threshold, in order, or nil when none are set.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, len(e.thresholds))
	for i, t := range e.thresholds {
		results[i] = t.evaluate(stats)
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (t Threshold) evaluate(stats metrics.Stats) Result {
	res := Result{Threshold: t, Raw: t.Raw}
	extract, ok := aggregates[t.Metric][t.Aggregate]
	if !ok {
		res.Message = fmt.Sprintf("error: unsupported aggregate %q for %s", t.Aggregate, t.Metric)
		return res
	}
	res.Actual = extract(stats)
	res.Pass = compareValues(res.Actual, t.Operator, t.Value)
	mark := "✗"
	if res.Pass {
		mark = "✓"
	}
	res.Message = fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, res.Actual, t.Operator, t.Value)
	return res
}

// Parse reads "metric:aggregate op value". Accepted forms:
//
//	http_req_duration:p95 < 500     latency percentile in ms
//	http_req_failed:rate < 0.01     failed share of requests
//	http_reqs:count > 100           request count
//	iterations:rate >= 9            iterations per second
//	iteration_duration:max < 2000   iteration request time in ms
//	checks:rate > 0.99              check pass ratio
//	vus_max:value == 10             VU pool size
func Parse(s string) (Threshold, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Threshold{}, errors.New("empty threshold string")
	}
	m := thresholdPattern.FindStringSubmatch(raw)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'http_req_duration:p95 < 500')", raw)
	}
	t := Threshold{
		Metric:    resolveAlias(metricAliases, m[1]),
		Aggregate: resolveAlias(aggregateAliases, m[2]),
		Operator:  m[3],
		Raw:       raw,
	}

	supported, ok := aggregates[t.Metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", t.Metric, strings.Join(sortedKeys(aggregates), ", "))
	}
	if _, ok := supported[t.Aggregate]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q for %s (supported: %s)", t.Aggregate, t.Metric, strings.Join(sortedKeys(supported), ", "))
	}
	if _, ok := operators[t.Operator]; !ok {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", t.Operator, strings.Join(sortedKeys(operators), ", "))
	}
	v, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", m[4], err)
	}
	t.Value = v
	return t, nil
}

// ParseMultiple parses every expression and reports all failures at once.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(exprs))
	var errs []error
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("threshold[%d]: %w", i, err))
			continue
		}
		out = append(out, t)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveAlias(aliases map[string]string, name string) string {
	if alias, ok := aliases[name]; ok {
		return alias
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compareValues(actual float64, operator string, expected float64) bool {
	cmp, ok := operators[operator]
	return ok && cmp(actual, expected)
}
