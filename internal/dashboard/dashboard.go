package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/vuload/internal/metrics"
)

const historySize = 100

// TestConfig holds load test configuration parameters for display.
type TestConfig struct {
	TargetURL  string
	VUs        int           // pool size
	Duration   time.Duration // scheduled run length
	Sleep      time.Duration
	Stages     int
	Iterations int64   // shared iteration cap, 0 = none
	RPS        float64 // 0 = unlimited
	Timeout    time.Duration
	ConfigFile string
}

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	collector    *metrics.Collector
	activeVUs    func() int
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	vuGauge        *widgets.Gauge
	rpsGauge       *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	iterPara       *widgets.Paragraph
	statusList     *widgets.List
	errorList      *widgets.List
	latencyHistory []float64
	startTime      time.Time
	testConfig     TestConfig
}

// New initializes termui. activeVUs reports the running VU count and
// shutdownFunc is called when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, activeVUs func() int, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(collector, activeVUs, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(collector *metrics.Collector, activeVUs func() int, cfg TestConfig, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	if activeVUs == nil {
		activeVUs = func() int { return 0 }
	}
	d := &Dashboard{
		collector:      collector,
		activeVUs:      activeVUs,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
		testConfig:     cfg,
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.vuGauge = widgets.NewGauge()
	d.vuGauge.Title = "Active VUs"
	d.vuGauge.BarColor = ui.ColorGreen
	d.vuGauge.BorderStyle.Fg = ui.ColorCyan
	d.vuGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Waiting for data..."
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.iterPara = widgets.NewParagraph()
	d.iterPara.Title = "Iterations"
	d.iterPara.Text = "Waiting for data..."
	d.iterPara.BorderStyle.Fg = ui.ColorCyan

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Codes"
	d.statusList.Rows = []string{"Awaiting data"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"[No failures](fg:green)"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(0.5, d.vuGauge),
			ui.NewCol(0.5, d.rpsGauge),
		),
		ui.NewRow(0.3,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.4,
			ui.NewCol(0.34, d.iterPara),
			ui.NewCol(0.33, d.statusList),
			ui.NewCol(0.33, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			d.handleEvent(e)
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) handleEvent(e ui.Event) {
	switch e.ID {
	case "q", "<C-c>":
		// Stop() ends the loop once the runner has drained.
		if d.shutdownFunc != nil {
			d.shutdownFunc()
		}
	case "<Resize>":
		payload := e.Payload.(ui.Resize)
		d.grid.SetRect(0, 0, payload.Width, payload.Height)
		ui.Clear()
		d.render()
	}
}

func (d *Dashboard) update() {
	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)
	d.apply(stats, d.activeVUs(), elapsed)
}

// apply refreshes every widget from one snapshot.
func (d *Dashboard) apply(stats metrics.Stats, active int, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if stats.Total > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.MeanLatencyMs)
		if len(d.latencyHistory) > historySize {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	maxVUs := d.testConfig.VUs
	if stats.VUsMax > maxVUs {
		maxVUs = stats.VUsMax
	}
	d.vuGauge.Percent = percent(float64(active), float64(maxVUs))
	d.vuGauge.Label = fmt.Sprintf("%d / %d VUs", active, maxVUs)

	maxRPS := 100.0
	if d.testConfig.RPS > 0 {
		maxRPS = d.testConfig.RPS
	}
	if stats.RequestsPerSec > maxRPS {
		maxRPS = stats.RequestsPerSec
	}
	d.rpsGauge.Percent = percent(stats.RequestsPerSec, maxRPS)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS", stats.RequestsPerSec)

	successRate := 0.0
	if stats.Total > 0 {
		successRate = (float64(stats.Successes) / float64(stats.Total)) * 100
	}
	remaining := d.testConfig.Duration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Remaining: %s | Requests: %d | Success Rate: %.1f%%",
		d.testConfig.TargetURL,
		d.formatTestParams(),
		elapsed.Round(time.Second),
		remaining.Round(time.Second),
		stats.Total,
		successRate,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP95:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P95LatencyMs,
		stats.P99LatencyMs,
	)

	d.iterPara.Text = fmt.Sprintf(
		"Completed:   %d\nInterrupted: %d\nPer second:  %.2f\nMean:        %.2fms\nP95:         %.2fms\nIn flight:   %d (max %d)",
		stats.Iterations,
		stats.InterruptedIterations,
		stats.IterationsPerSec,
		stats.MeanIterationMs,
		stats.P95IterationMs,
		stats.InFlight,
		stats.MaxInFlight,
	)

	d.statusList.Rows = formatStatusListRows(stats.StatusCodes)
	d.errorList.Rows = formatErrorRows(stats.Errors)
}

func percent(value, max float64) int {
	if max <= 0 {
		return 0
	}
	p := int((value / max) * 100)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

const maxListRows = 10

func formatStatusListRows(codes map[string]int) []string {
	rows := metrics.FlattenStatusBuckets(codes)
	if len(rows) == 0 {
		return []string{"Awaiting data"}
	}
	if len(rows) > maxListRows {
		rows = rows[:maxListRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		color := "green"
		if !strings.HasPrefix(row.Code, "2") && !strings.HasPrefix(row.Code, "3") {
			color = "red"
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:%s) %d", row.Code, color, row.Count))
	}
	return formatted
}

func formatErrorRows(errs map[string]int) []string {
	rows := metrics.FlattenStatusBuckets(errs)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > maxListRows {
		rows = rows[:maxListRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", row.Code, row.Count))
	}
	return formatted
}

// formatTestParams formats the test configuration parameters for display.
func (d *Dashboard) formatTestParams() string {
	var parts []string

	if d.testConfig.VUs > 0 {
		parts = append(parts, fmt.Sprintf("VUs: %d", d.testConfig.VUs))
	}

	if d.testConfig.Stages > 0 {
		parts = append(parts, fmt.Sprintf("Stages: %d", d.testConfig.Stages))
	}

	if d.testConfig.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.testConfig.Duration))
	}

	parts = append(parts, fmt.Sprintf("Sleep: %s", d.testConfig.Sleep))

	if d.testConfig.RPS > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", d.testConfig.RPS))
	}

	if d.testConfig.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("Iterations: %d", d.testConfig.Iterations))
	}

	if d.testConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.testConfig.Timeout))
	}

	if d.testConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.testConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
