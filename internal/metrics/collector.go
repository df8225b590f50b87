package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetadata annotates a recorded request.
type RequestMetadata struct {
	StatusCode    string // HTTP status code, or an error class when no response arrived
	BytesReceived int64
}

// Collector records per-request and per-iteration metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	statusCodes  map[string]int64
	bytesRecv    int64

	iterHist     *hdrhistogram.Histogram
	iterations   int64
	interrupted  int64
	minIteration time.Duration
	maxIteration time.Duration
	sumIteration time.Duration
	checks       map[string]*checkCounter
	checkOrder   []string
	vusMax       int
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64
	start        time.Time
}

type checkCounter struct {
	passes int64
	fails  int64
}

// CheckStats aggregates the outcome of one named check.
type CheckStats struct {
	Name   string `json:"name" yaml:"name"`
	Passes int64  `json:"passes" yaml:"passes"`
	Fails  int64  `json:"fails" yaml:"fails"`
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	FailureRate    float64       `json:"failure_rate" yaml:"failure_rate"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
	BytesReceived  int64         `json:"bytes_received" yaml:"bytes_received"`

	Iterations            int64         `json:"iterations" yaml:"iterations"`
	InterruptedIterations int64         `json:"interrupted_iterations" yaml:"interrupted_iterations"`
	IterationsPerSec      float64       `json:"iterations_per_sec" yaml:"iterations_per_sec"`
	MinIteration          time.Duration `json:"-" yaml:"-"`
	MaxIteration          time.Duration `json:"-" yaml:"-"`
	MeanIteration         time.Duration `json:"-" yaml:"-"`
	P95Iteration          time.Duration `json:"-" yaml:"-"`

	InFlight    int64 `json:"in_flight" yaml:"in_flight"`
	MaxInFlight int64 `json:"max_in_flight" yaml:"max_in_flight"`
	VUsMax      int   `json:"vus_max" yaml:"vus_max"`

	Checks         []CheckStats `json:"checks,omitempty" yaml:"checks,omitempty"`
	ChecksPassRate float64      `json:"checks_pass_rate" yaml:"checks_pass_rate"`

	// JSON-friendly millisecond fields.
	MinLatencyMs    float64        `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs    float64        `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs   float64        `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs    float64        `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs    float64        `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs    float64        `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs    float64        `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	MinIterationMs  float64        `json:"min_iteration_ms" yaml:"min_iteration_ms"`
	MaxIterationMs  float64        `json:"max_iteration_ms" yaml:"max_iteration_ms"`
	MeanIterationMs float64        `json:"mean_iteration_ms" yaml:"mean_iteration_ms"`
	P95IterationMs  float64        `json:"p95_iteration_ms" yaml:"p95_iteration_ms"`
	DurationMs      float64        `json:"duration_ms" yaml:"duration_ms"`
	StatusCodes     map[string]int `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	Errors          map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// newHistogram tracks values from 1µs up to 10 minutes with 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 600_000_000, 3)
}

func NewCollector() *Collector {
	return &Collector{
		hist:         newHistogram(),
		iterHist:     newHistogram(),
		errorsByType: make(map[string]int64),
		statusCodes:  make(map[string]int64),
		checks:       make(map[string]*checkCounter),
		start:        time.Now(),
	}
}

// Start marks the beginning of the measured run.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// SetVUsMax records the size of the VU pool.
func (c *Collector) SetVUsMax(n int) {
	c.mu.Lock()
	c.vusMax = n
	c.mu.Unlock()
}

// TrackInFlight counts a request as outstanding until the returned func is called.
func (c *Collector) TrackInFlight() func() {
	cur := c.inFlight.Add(1)
	for {
		prev := c.maxInFlight.Load()
		if cur <= prev || c.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() { c.inFlight.Add(-1) })
	}
}

func recordClamped(h *hdrhistogram.Histogram, d time.Duration) {
	if d <= 0 {
		return
	}
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// RecordRequest records a single request's latency and error state.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recordClamped(c.hist, latency)
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if meta != nil {
		if meta.StatusCode != "" {
			c.statusCodes[meta.StatusCode]++
		}
		c.bytesRecv += meta.BytesReceived
	}

	if err == nil {
		c.successes++
	} else {
		c.failures++
		c.errorsByType[ErrorLabel(err)]++
	}
}

// RecordIteration records a finished or interrupted VU iteration.
func (c *Collector) RecordIteration(d time.Duration, interrupted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if interrupted {
		c.interrupted++
		return
	}
	c.iterations++
	recordClamped(c.iterHist, d)
	c.sumIteration += d
	if c.minIteration == 0 || d < c.minIteration {
		c.minIteration = d
	}
	if d > c.maxIteration {
		c.maxIteration = d
	}
}

// RecordCheck records one evaluation of a named check.
func (c *Collector) RecordCheck(name string, passed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.checks[name]
	if !ok {
		counter = &checkCounter{}
		c.checks[name] = counter
		c.checkOrder = append(c.checkOrder, name)
	}
	if passed {
		counter.passes++
	} else {
		counter.fails++
	}
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:                 total,
		Successes:             c.successes,
		Failures:              c.failures,
		MinLatency:            c.minLatency,
		MaxLatency:            c.maxLatency,
		P50Latency:            quantile(c.hist, 50),
		P90Latency:            quantile(c.hist, 90),
		P95Latency:            quantile(c.hist, 95),
		P99Latency:            quantile(c.hist, 99),
		BytesReceived:         c.bytesRecv,
		Iterations:            c.iterations,
		InterruptedIterations: c.interrupted,
		MinIteration:          c.minIteration,
		MaxIteration:          c.maxIteration,
		P95Iteration:          quantile(c.iterHist, 95),
		InFlight:              c.inFlight.Load(),
		MaxInFlight:           c.maxInFlight.Load(),
		VUsMax:                c.vusMax,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
		stats.FailureRate = float64(c.failures) / float64(total)
	}
	if c.iterations > 0 {
		stats.MeanIteration = time.Duration(int64(c.sumIteration) / c.iterations)
	}

	stats.MinLatencyMs = toMs(stats.MinLatency)
	stats.MaxLatencyMs = toMs(stats.MaxLatency)
	stats.MeanLatencyMs = toMs(stats.MeanLatency)
	stats.P50LatencyMs = toMs(stats.P50Latency)
	stats.P90LatencyMs = toMs(stats.P90Latency)
	stats.P95LatencyMs = toMs(stats.P95Latency)
	stats.P99LatencyMs = toMs(stats.P99Latency)
	stats.MinIterationMs = toMs(stats.MinIteration)
	stats.MaxIterationMs = toMs(stats.MaxIteration)
	stats.MeanIterationMs = toMs(stats.MeanIteration)
	stats.P95IterationMs = toMs(stats.P95Iteration)

	stats.Duration = elapsed
	stats.DurationMs = toMs(elapsed)
	if elapsed > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
		stats.IterationsPerSec = float64(c.iterations) / elapsed.Seconds()
	}

	if len(c.checkOrder) > 0 {
		var passes, all int64
		stats.Checks = make([]CheckStats, 0, len(c.checkOrder))
		for _, name := range c.checkOrder {
			counter := c.checks[name]
			stats.Checks = append(stats.Checks, CheckStats{Name: name, Passes: counter.passes, Fails: counter.fails})
			passes += counter.passes
			all += counter.passes + counter.fails
		}
		if all > 0 {
			stats.ChecksPassRate = float64(passes) / float64(all)
		}
	}

	stats.StatusCodes = copyCounts(c.statusCodes)
	stats.Errors = copyCounts(c.errorsByType)

	return stats
}

func copyCounts(src map[string]int64) map[string]int {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = int(v)
	}
	return out
}

// GetErrorBreakdown returns error labels sorted by descending count.
func (c *Collector) GetErrorBreakdown() []StatusBucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FlattenStatusBuckets(copyCounts(c.errorsByType))
}
