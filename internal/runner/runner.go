package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures execution summary.
type Result struct {
	Iterations  int64 // iterations whose request completed, successfully or not
	Interrupted int64 // iterations cut off by the graceful stop or cancellation
	Errors      int64 // completed iterations whose request failed
	Duration    time.Duration
	MaxVUs      int
	PerVU       []int64 // completed iterations per VU index
}

// Runner drives a closed pool of virtual users. Each VU loops
// {request, sleep} until the run ends.
type Runner struct {
	opt   Options
	plan  *stagePlan
	pacer *pacer
	gate  *vuGate

	started   atomic.Int64
	activeVUs atomic.Int64
}

func New(opt Options) *Runner {
	opt.normalize()
	plan := compileStagePlan(opt.Stages)
	r := &Runner{opt: opt, plan: plan, pacer: newPacer(opt)}
	if plan != nil {
		initial, _ := plan.targetAt(0)
		r.gate = newVUGate(plan.maxVUs, initial)
	} else {
		r.gate = newVUGate(opt.VUs, opt.VUs)
	}
	return r
}

// MaxVUs is the size of the VU pool.
func (r *Runner) MaxVUs() int {
	return r.gate.size
}

// ActiveVUs reports how many VUs are currently running iterations.
func (r *Runner) ActiveVUs() int {
	return int(r.activeVUs.Load())
}

// TotalDuration is the scheduled length of the run, zero when unbounded.
func (r *Runner) TotalDuration() time.Duration {
	if r.plan != nil {
		return r.plan.totalDuration()
	}
	return r.opt.Duration
}

// Run blocks until every VU has exited. VUs stop starting iterations once the
// duration elapses or the shared iteration budget is spent. Requests already
// in flight may finish within GracefulStop; cancelling ctx interrupts them at once.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()

	hardCtx, hardCancel := context.WithCancel(ctx)
	defer hardCancel()

	var stopCtx context.Context
	var stopCancel context.CancelFunc
	if total := r.TotalDuration(); total > 0 {
		stopCtx, stopCancel = context.WithTimeout(hardCtx, total)
	} else {
		stopCtx, stopCancel = context.WithCancel(hardCtx)
	}
	defer stopCancel()

	done := make(chan struct{})
	go r.gracefulStop(stopCtx, hardCancel, done)

	if r.plan != nil {
		go r.runStageController(stopCtx, start)
	}

	size := r.gate.size
	perVU := make([]int64, size)
	var interrupted, errs atomic.Int64

	var wg sync.WaitGroup
	wg.Add(size)
	for id := 0; id < size; id++ {
		go func(id int) {
			defer wg.Done()
			r.runVU(stopCtx, hardCtx, stopCancel, id, &perVU[id], &interrupted, &errs)
		}(id)
	}
	wg.Wait()
	close(done)

	var completed int64
	for i := range perVU {
		completed += atomic.LoadInt64(&perVU[i])
	}

	return Result{
		Iterations:  completed,
		Interrupted: interrupted.Load(),
		Errors:      errs.Load(),
		Duration:    time.Since(start),
		MaxVUs:      size,
		PerVU:       perVU,
	}
}

func (r *Runner) runVU(stopCtx, hardCtx context.Context, stop context.CancelFunc, id int, completed *int64, interrupted, errs *atomic.Int64) {
	active := false
	setActive := func(v bool) {
		if v == active {
			return
		}
		active = v
		if v {
			r.activeVUs.Add(1)
		} else {
			r.activeVUs.Add(-1)
		}
	}
	defer setActive(false)

	var iteration int64
	for {
		if stopCtx.Err() != nil {
			return
		}

		ok, changed := r.gate.state(id)
		if !ok {
			setActive(false)
			select {
			case <-stopCtx.Done():
				return
			case <-changed:
				continue
			}
		}
		setActive(true)

		if err := r.pacer.Wait(stopCtx); err != nil {
			return
		}
		if !r.claimIteration() {
			stop()
			return
		}

		iteration++
		res := r.iterate(hardCtx, id, iteration)
		switch {
		case res.Interrupted:
			interrupted.Add(1)
		case res.Err != nil:
			errs.Add(1)
			atomic.AddInt64(completed, 1)
		default:
			atomic.AddInt64(completed, 1)
		}
		if r.opt.OnIteration != nil {
			r.opt.OnIteration(res)
		}
		if res.Interrupted {
			return
		}

		if !sleepCtx(stopCtx, r.opt.Sleep) {
			return
		}
	}
}

func (r *Runner) iterate(hardCtx context.Context, id int, iteration int64) IterationResult {
	start := time.Now()
	ctx := withVUInfo(hardCtx, VUInfo{ID: id, Iteration: iteration})

	var err error
	if r.opt.Requester != nil {
		err = r.opt.Requester.Do(ctx)
	}

	return IterationResult{
		VU:          id,
		Iteration:   iteration,
		Duration:    time.Since(start),
		Err:         err,
		Interrupted: err != nil && hardCtx.Err() != nil,
	}
}

// claimIteration reserves one slot of the shared iteration budget.
func (r *Runner) claimIteration() bool {
	n := r.started.Add(1)
	return r.opt.Iterations <= 0 || n <= int64(r.opt.Iterations)
}

// gracefulStop cancels in-flight requests GracefulStop after VUs were told to stop.
func (r *Runner) gracefulStop(stopCtx context.Context, hardCancel context.CancelFunc, done <-chan struct{}) {
	select {
	case <-stopCtx.Done():
	case <-done:
		return
	}
	if r.opt.GracefulStop <= 0 {
		hardCancel()
		return
	}
	timer := time.NewTimer(r.opt.GracefulStop)
	defer timer.Stop()
	select {
	case <-timer.C:
		hardCancel()
	case <-done:
	}
}

func (r *Runner) runStageController(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target, ok := r.plan.targetAt(time.Since(start))
			if !ok {
				return
			}
			r.gate.set(target)
		}
	}
}

// sleepCtx sleeps for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// vuGate tracks how many VUs of the pool may run. Parked VUs wait on the
// changed channel, which is closed and replaced on every update.
type vuGate struct {
	size    int
	mu      sync.Mutex
	target  int
	changed chan struct{}
}

func newVUGate(size, target int) *vuGate {
	g := &vuGate{size: size, changed: make(chan struct{})}
	g.target = clampTarget(target, size)
	return g
}

func (g *vuGate) set(target int) {
	target = clampTarget(target, g.size)
	g.mu.Lock()
	defer g.mu.Unlock()
	if target == g.target {
		return
	}
	g.target = target
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *vuGate) state(id int) (bool, <-chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return id < g.target, g.changed
}

func clampTarget(target, size int) int {
	if target < 0 {
		return 0
	}
	if target > size {
		return size
	}
	return target
}
