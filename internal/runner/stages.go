package runner

import (
	"math"
	"time"
)

type stagePlan struct {
	segments []stageSegment
	duration time.Duration
	maxVUs   int
}

type stageSegment struct {
	start    time.Duration
	duration time.Duration
	fromVUs  float64
	toVUs    float64
}

// compileStagePlan chains stages into segments. The first stage ramps from
// zero, each following one from the previous target.
func compileStagePlan(stages []Stage) *stagePlan {
	if len(stages) == 0 {
		return nil
	}

	plan := &stagePlan{}
	var offset time.Duration
	from := 0.0
	for _, stage := range stages {
		target := stage.Target
		if target < 0 {
			target = 0
		}
		if target > plan.maxVUs {
			plan.maxVUs = target
		}
		if stage.Duration <= 0 {
			from = float64(target)
			continue
		}
		plan.segments = append(plan.segments, stageSegment{
			start:    offset,
			duration: stage.Duration,
			fromVUs:  from,
			toVUs:    float64(target),
		})
		offset += stage.Duration
		from = float64(target)
	}

	if len(plan.segments) == 0 || plan.maxVUs == 0 {
		return nil
	}
	plan.duration = offset
	return plan
}

// targetAt returns the number of VUs that should be active at elapsed.
// ok is false once the plan has ended.
func (p *stagePlan) targetAt(elapsed time.Duration) (int, bool) {
	if p == nil || len(p.segments) == 0 {
		return 0, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for _, seg := range p.segments {
		if elapsed < seg.start || elapsed >= seg.start+seg.duration {
			continue
		}
		if seg.fromVUs == seg.toVUs {
			return int(seg.toVUs), true
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		if progress < 0 {
			progress = 0
		} else if progress > 1 {
			progress = 1
		}
		return int(math.Round(seg.fromVUs + (seg.toVUs-seg.fromVUs)*progress)), true
	}
	return 0, false
}

func (p *stagePlan) totalDuration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}
