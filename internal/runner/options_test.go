package runner

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.VUs != 1 {
					t.Errorf("VUs = %d, want 1", o.VUs)
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
			},
		},
		{
			name: "negative values corrected",
			input: Options{
				VUs:           -5,
				Duration:      -time.Second,
				Sleep:         -time.Second,
				GracefulStop:  -time.Second,
				Iterations:    -10,
				RatePerSecond: -1,
			},
			validate: func(t *testing.T, o Options) {
				if o.VUs != 1 {
					t.Errorf("VUs = %d, want 1", o.VUs)
				}
				if o.Duration != 0 || o.Sleep != 0 || o.GracefulStop != 0 {
					t.Errorf("durations not clamped: %v %v %v", o.Duration, o.Sleep, o.GracefulStop)
				}
				if o.Iterations != 0 {
					t.Errorf("Iterations = %d, want 0", o.Iterations)
				}
				if o.RatePerSecond != 0 {
					t.Errorf("RatePerSecond = %d, want 0", o.RatePerSecond)
				}
			},
		},
		{
			name: "preserve valid values",
			input: Options{
				VUs:           10,
				Duration:      time.Minute,
				Sleep:         time.Second,
				Iterations:    100,
				RatePerSecond: 50,
			},
			validate: func(t *testing.T, o Options) {
				if o.VUs != 10 {
					t.Errorf("VUs = %d, want 10", o.VUs)
				}
				if o.Duration != time.Minute || o.Sleep != time.Second {
					t.Errorf("durations changed: %v %v", o.Duration, o.Sleep)
				}
				if o.Iterations != 100 {
					t.Errorf("Iterations = %d, want 100", o.Iterations)
				}
				if o.RatePerSecond != 50 {
					t.Errorf("RatePerSecond = %d, want 50", o.RatePerSecond)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			tt.validate(t, opts)
		})
	}
}

func TestLimiterFactory(t *testing.T) {
	opts := Options{}
	opts.normalize()

	limiter := opts.LimiterFactory(0)
	if limiter.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", limiter.Limit())
	}

	rps := 100
	limiter = opts.LimiterFactory(rps)
	if limiter.Limit() != rate.Limit(rps) {
		t.Errorf("Limit(%d) = %v, want %v", rps, limiter.Limit(), rate.Limit(rps))
	}
	if limiter.Burst() != 1 {
		t.Errorf("Burst(%d) = %d, want 1", rps, limiter.Burst())
	}
}

func TestNewPacerDisabledWithoutRate(t *testing.T) {
	opts := Options{}
	opts.normalize()
	if p := newPacer(opts); p != nil {
		t.Fatalf("expected nil pacer, got %+v", p)
	}
	var p *pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("nil pacer Wait() = %v", err)
	}
}

func TestVUGate(t *testing.T) {
	g := newVUGate(3, 1)
	if ok, _ := g.state(0); !ok {
		t.Fatal("VU 0 should be active")
	}
	ok, changed := g.state(2)
	if ok {
		t.Fatal("VU 2 should be parked")
	}
	g.set(5)
	select {
	case <-changed:
	default:
		t.Fatal("changed channel not closed on update")
	}
	if ok, _ := g.state(2); !ok {
		t.Fatal("VU 2 should be active after raising the target")
	}
	if g.target != 3 {
		t.Fatalf("target = %d, want clamp to pool size 3", g.target)
	}
}
