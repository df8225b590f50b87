package output

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const barWidth = 40

type tickMsg time.Time

type finishMsg struct{}

// barModel renders elapsed time as a progress bar above the status line.
type barModel struct {
	source   Source
	interval time.Duration
	bar      progress.Model
	snap     Snapshot
}

func newBarModel(src Source, interval time.Duration) barModel {
	return barModel{
		source:   src,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m barModel) Init() tea.Cmd {
	return tick(m.interval)
}

func (m barModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		m.snap = m.source.snapshot()
		return m, tick(m.interval)
	case finishMsg:
		m.snap = m.source.snapshot()
		return m, tea.Quit
	}
	return m, nil
}

func (m barModel) View() string {
	return m.bar.ViewAs(m.snap.Fraction()) + "\n" + statusLine(m.snap) + "\n"
}

// BarReporter drives barModel in a bubbletea program.
type BarReporter struct {
	program *tea.Program
	done    chan struct{}
	active  int32
}

func NewBarReporter(src Source, interval time.Duration, w io.Writer) *BarReporter {
	if w == nil {
		w = io.Discard
	}
	return &BarReporter{
		program: tea.NewProgram(newBarModel(src, interval),
			tea.WithOutput(w),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		),
		done: make(chan struct{}),
	}
}

func (b *BarReporter) Start() {
	if !atomic.CompareAndSwapInt32(&b.active, 0, 1) {
		return
	}
	go func() {
		defer close(b.done)
		_, _ = b.program.Run()
	}()
}

// Stop renders the final snapshot and waits for the program to exit.
func (b *BarReporter) Stop() {
	if atomic.CompareAndSwapInt32(&b.active, 1, 0) {
		b.program.Send(finishMsg{})
		<-b.done
	}
}
