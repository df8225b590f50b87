package output

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/metrics"
)

// Source is where live progress views read the running test from.
type Source struct {
	Collector *metrics.Collector
	ActiveVUs func() int
	MaxVUs    int
	Total     time.Duration // scheduled run length
}

// Snapshot is one point-in-time view of a running test.
type Snapshot struct {
	Stats     metrics.Stats
	ActiveVUs int
	MaxVUs    int
	Elapsed   time.Duration
	Total     time.Duration
}

// Fraction is the elapsed share of the scheduled run, clamped to [0, 1].
func (s Snapshot) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	f := float64(s.Elapsed) / float64(s.Total)
	if f > 1 {
		return 1
	}
	return f
}

func (s Source) snapshot() Snapshot {
	elapsed := s.Collector.Elapsed()
	snap := Snapshot{
		Stats:   s.Collector.Stats(elapsed),
		MaxVUs:  s.MaxVUs,
		Elapsed: elapsed,
		Total:   s.Total,
	}
	if s.ActiveVUs != nil {
		snap.ActiveVUs = s.ActiveVUs()
	}
	return snap
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func statusLine(s Snapshot) string {
	return fmt.Sprintf("VUs: %d/%d | Iterations: %d | Requests: %d | Failures: %d | RPS: %.1f | %s/%s",
		s.ActiveVUs, s.MaxVUs, s.Stats.Iterations, s.Stats.Total, s.Stats.Failures,
		s.Stats.RequestsPerSec, formatClock(s.Elapsed), formatClock(s.Total))
}

// Progress is a live view started before the run and stopped after it.
type Progress interface {
	Start()
	Stop()
}

// NewProgress picks the reporter for mode. auto renders the bar on a
// terminal and the line reporter otherwise; none returns nil.
func NewProgress(mode config.ProgressMode, src Source, interval time.Duration, w io.Writer) Progress {
	switch mode {
	case config.ProgressNone:
		return nil
	case config.ProgressBar:
		return NewBarReporter(src, interval, w)
	case config.ProgressLine:
		return NewProgressReporter(src, interval, w)
	}
	if isTerminal(w) {
		return NewBarReporter(src, interval, w)
	}
	return NewProgressReporter(src, interval, w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ProgressReporter rewrites a single status line in place.
type ProgressReporter struct {
	source   Source
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(src Source, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   src,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+statusLine(p.source.snapshot()))
		case <-p.done:
			return
		}
	}
}
