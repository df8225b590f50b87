package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/vuload/internal/runner"
)

// fakeRequester simulates performing a request with fixed latency.
type fakeRequester struct {
	latency  time.Duration
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	err      error
}

func (f *fakeRequester) Do(ctx context.Context) error {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

// TestRunnerRespectsIterations ensures the shared iteration budget stops execution.
func TestRunnerRespectsIterations(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond}
	r := runner.New(runner.Options{
		VUs:        4,
		Iterations: 25,
		Requester:  req,
	})
	res := r.Run(context.Background())
	if res.Iterations != 25 {
		t.Fatalf("expected 25 iterations, got %d", res.Iterations)
	}
	if got := req.calls.Load(); got != 25 {
		t.Fatalf("expected requester called 25 times, got %d", got)
	}
	var sum int64
	for _, n := range res.PerVU {
		sum += n
	}
	if sum != 25 {
		t.Fatalf("per-VU counts sum to %d", sum)
	}
}

// TestRunnerCutsSleepAtDuration ensures the post-request sleep does not extend the run.
func TestRunnerCutsSleepAtDuration(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond}
	r := runner.New(runner.Options{
		VUs:          3,
		Duration:     100 * time.Millisecond,
		Sleep:        time.Second,
		GracefulStop: time.Second,
		Requester:    req,
	})
	start := time.Now()
	res := r.Run(context.Background())
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Fatalf("duration enforcement off: %s", elapsed)
	}
	if res.MaxVUs != 3 || len(res.PerVU) != 3 {
		t.Fatalf("unexpected pool: %+v", res)
	}
	for id, n := range res.PerVU {
		if n != 1 {
			t.Fatalf("VU %d ran %d iterations, want 1", id, n)
		}
	}
}

// TestRunnerBoundsInFlightByVUs ensures outstanding requests never exceed the pool.
func TestRunnerBoundsInFlightByVUs(t *testing.T) {
	req := &fakeRequester{latency: 2 * time.Millisecond}
	r := runner.New(runner.Options{
		VUs:       5,
		Duration:  100 * time.Millisecond,
		Requester: req,
	})
	res := r.Run(context.Background())
	if res.Iterations == 0 {
		t.Fatal("expected iterations")
	}
	if got := req.maxSeen.Load(); got > 5 {
		t.Fatalf("in-flight peaked at %d, want <= 5", got)
	}
}

// TestRunnerContinuesAfterFailures ensures failed requests never stop a VU.
func TestRunnerContinuesAfterFailures(t *testing.T) {
	req := &fakeRequester{err: &runner.HTTPError{StatusCode: 500}}
	r := runner.New(runner.Options{
		VUs:       2,
		Duration:  150 * time.Millisecond,
		Sleep:     10 * time.Millisecond,
		Requester: req,
	})
	res := r.Run(context.Background())
	if res.Errors != res.Iterations {
		t.Fatalf("errors = %d, iterations = %d", res.Errors, res.Iterations)
	}
	for id, n := range res.PerVU {
		if n < 3 {
			t.Fatalf("VU %d stopped early after %d iterations", id, n)
		}
	}
}

// TestRunnerLetsInFlightFinish ensures requests running at expiry complete within the graceful stop.
func TestRunnerLetsInFlightFinish(t *testing.T) {
	req := &fakeRequester{latency: 200 * time.Millisecond}
	r := runner.New(runner.Options{
		VUs:          2,
		Duration:     50 * time.Millisecond,
		GracefulStop: 2 * time.Second,
		Requester:    req,
	})
	start := time.Now()
	res := r.Run(context.Background())
	elapsed := time.Since(start)

	if res.Iterations != 2 || res.Interrupted != 0 {
		t.Fatalf("iterations = %d, interrupted = %d", res.Iterations, res.Interrupted)
	}
	if elapsed < 200*time.Millisecond || elapsed > time.Second {
		t.Fatalf("unexpected elapsed %s", elapsed)
	}
}

// TestRunnerInterruptsAfterGracefulStop ensures slow requests are cancelled once the window ends.
func TestRunnerInterruptsAfterGracefulStop(t *testing.T) {
	req := &fakeRequester{latency: 5 * time.Second}
	var mu sync.Mutex
	var results []runner.IterationResult
	r := runner.New(runner.Options{
		VUs:          3,
		Duration:     50 * time.Millisecond,
		GracefulStop: 50 * time.Millisecond,
		Requester:    req,
		OnIteration: func(res runner.IterationResult) {
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		},
	})
	start := time.Now()
	res := r.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("graceful stop not enforced: %s", elapsed)
	}
	if res.Interrupted != 3 || res.Iterations != 0 || res.Errors != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(results) != 3 {
		t.Fatalf("OnIteration called %d times, want 3", len(results))
	}
	for _, it := range results {
		if !it.Interrupted || !errors.Is(it.Err, context.Canceled) {
			t.Fatalf("unexpected iteration result: %+v", it)
		}
	}
}

// TestRunnerParentCancelInterruptsImmediately ensures cancelling ctx skips the graceful stop.
func TestRunnerParentCancelInterruptsImmediately(t *testing.T) {
	req := &fakeRequester{latency: 5 * time.Second}
	r := runner.New(runner.Options{
		VUs:          2,
		Duration:     time.Minute,
		GracefulStop: 30 * time.Second,
		Requester:    req,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := r.Run(ctx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancellation not honored: %s", elapsed)
	}
	if res.Interrupted != 2 {
		t.Fatalf("interrupted = %d, want 2", res.Interrupted)
	}
}

// spacingRequester records when each VU starts a request.
type spacingRequester struct {
	mu     sync.Mutex
	starts map[int][]time.Time
}

func (s *spacingRequester) Do(ctx context.Context) error {
	info, ok := runner.VUFromContext(ctx)
	if !ok {
		return errors.New("missing VU info")
	}
	s.mu.Lock()
	s.starts[info.ID] = append(s.starts[info.ID], time.Now())
	if int64(len(s.starts[info.ID])) != info.Iteration {
		s.mu.Unlock()
		return errors.New("iteration counter out of step")
	}
	s.mu.Unlock()
	return nil
}

// TestRunnerSleepsBetweenIterations ensures a VU never starts early.
func TestRunnerSleepsBetweenIterations(t *testing.T) {
	req := &spacingRequester{starts: map[int][]time.Time{}}
	sleep := 20 * time.Millisecond
	r := runner.New(runner.Options{
		VUs:       2,
		Duration:  150 * time.Millisecond,
		Sleep:     sleep,
		Requester: req,
	})
	res := r.Run(context.Background())
	if res.Errors != 0 {
		t.Fatalf("requester reported %d errors", res.Errors)
	}
	for id, starts := range req.starts {
		if len(starts) < 2 {
			t.Fatalf("VU %d ran %d iterations", id, len(starts))
		}
		for i := 1; i < len(starts); i++ {
			if gap := starts[i].Sub(starts[i-1]); gap < sleep {
				t.Fatalf("VU %d iteration %d started %s after the previous one", id, i+1, gap)
			}
		}
	}
}

// TestRateLimiterCapsThroughput ensures the rate limiter restricts iteration starts.
func TestRateLimiterCapsThroughput(t *testing.T) {
	req := &fakeRequester{}
	rateLimit := 100
	duration := 100 * time.Millisecond
	r := runner.New(runner.Options{
		VUs:            20,
		Duration:       duration,
		RatePerSecond:  rateLimit,
		Requester:      req,
		LimiterFactory: func(rps int) *rate.Limiter { return rate.NewLimiter(rate.Limit(rps), 1) },
	})
	res := r.Run(context.Background())
	maxExpected := int64(float64(rateLimit)*duration.Seconds()*1.2) + 1
	if res.Iterations > maxExpected {
		t.Fatalf("rate limiter exceeded: total=%d max=%d", res.Iterations, maxExpected)
	}
	if got := req.calls.Load(); got != res.Iterations {
		t.Fatalf("calls mismatch: %d vs %d", got, res.Iterations)
	}
}

// TestRunnerStagesRampVUs ensures staged runs size the pool by the peak target.
func TestRunnerStagesRampVUs(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond}
	r := runner.New(runner.Options{
		Stages: []runner.Stage{
			{Duration: 50 * time.Millisecond, Target: 3},
			{Duration: 250 * time.Millisecond, Target: 3},
		},
		Sleep:     10 * time.Millisecond,
		Requester: req,
	})
	if r.MaxVUs() != 3 {
		t.Fatalf("MaxVUs() = %d, want 3", r.MaxVUs())
	}
	if r.TotalDuration() != 300*time.Millisecond {
		t.Fatalf("TotalDuration() = %s", r.TotalDuration())
	}

	var peak atomic.Int64
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := int64(r.ActiveVUs()); n > peak.Load() {
					peak.Store(n)
				}
			}
		}
	}()

	start := time.Now()
	res := r.Run(context.Background())
	close(stop)
	elapsed := time.Since(start)

	if elapsed < 300*time.Millisecond || elapsed > time.Second {
		t.Fatalf("unexpected elapsed %s", elapsed)
	}
	for id, n := range res.PerVU {
		if n == 0 {
			t.Fatalf("VU %d never ran", id)
		}
	}
	if peak.Load() != 3 {
		t.Fatalf("peak active VUs = %d, want 3", peak.Load())
	}
	if r.ActiveVUs() != 0 {
		t.Fatalf("ActiveVUs() = %d after run", r.ActiveVUs())
	}
}
