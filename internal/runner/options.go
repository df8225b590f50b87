package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Requester abstracts executing the request of a single iteration.
// Implementations should return an error for failed requests.
type Requester interface {
	Do(ctx context.Context) error
}

// Stage moves the number of active VUs linearly to Target over Duration.
type Stage struct {
	Duration time.Duration
	Target   int
}

// IterationResult describes one finished or interrupted iteration.
type IterationResult struct {
	VU          int
	Iteration   int64
	Duration    time.Duration
	Err         error
	Interrupted bool
}

// Options configure the Runner.
type Options struct {
	VUs           int           // size of the VU pool when no stages are set
	Duration      time.Duration // how long VUs keep starting iterations (0 means until Iterations or ctx)
	Sleep         time.Duration // pause after each iteration
	GracefulStop  time.Duration // how long in-flight iterations may run after the end
	Iterations    int           // iterations shared by all VUs (0 means unlimited)
	RatePerSecond int           // global cap on iteration starts (0 means unlimited)
	Stages        []Stage       // ramping VU profile, overrides VUs and Duration
	Requester     Requester     // request executor (required)

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	OnIteration    func(IterationResult)       // called from VU goroutines, must be safe for concurrent use
}

func (o *Options) normalize() {
	o.VUs = max(o.VUs, 1)
	o.Duration = max(o.Duration, 0)
	o.Sleep = max(o.Sleep, 0)
	o.GracefulStop = max(o.GracefulStop, 0)
	o.Iterations = max(o.Iterations, 0)
	o.RatePerSecond = max(o.RatePerSecond, 0)
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps starts evenly spaced across VUs.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
