package runner

import (
	"context"

	"golang.org/x/time/rate"
)

// pacer gates iteration starts through a rate.Limiter shared by all VUs.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(opt Options) *pacer {
	if opt.RatePerSecond <= 0 {
		return nil
	}
	return &pacer{limiter: opt.LimiterFactory(opt.RatePerSecond)}
}

// Wait blocks until the next start is allowed. A nil pacer never blocks.
func (p *pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
