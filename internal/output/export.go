package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// WriteSummary writes r to path as JSON or YAML, chosen by the file extension.
func WriteSummary(path string, r Report) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		return fmt.Errorf("summary export: unsupported extension %q (use .json, .yaml or .yml)", ext)
	}
	if err != nil {
		return fmt.Errorf("summary export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("summary export: %w", err)
	}
	return nil
}

// HistoryEntry is one line of the run history file.
type HistoryEntry struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	Target           string    `json:"target"`
	VUs              int       `json:"vus"`
	DurationMs       float64   `json:"duration_ms"`
	Requests         int64     `json:"requests"`
	Failures         int64     `json:"failures"`
	Iterations       int64     `json:"iterations"`
	RequestsPerSec   float64   `json:"requests_per_sec"`
	P95LatencyMs     float64   `json:"p95_latency_ms"`
	ThresholdsPassed bool      `json:"thresholds_passed"`
	Aborted          bool      `json:"aborted"`
}

// NewHistoryEntry condenses r into a history line.
func NewHistoryEntry(r Report) HistoryEntry {
	return HistoryEntry{
		RunID:            r.RunID,
		StartedAt:        r.StartedAt,
		Target:           r.Target,
		VUs:              r.Stats.VUsMax,
		DurationMs:       r.Stats.DurationMs,
		Requests:         r.Stats.Total,
		Failures:         r.Stats.Failures,
		Iterations:       r.Stats.Iterations,
		RequestsPerSec:   r.Stats.RequestsPerSec,
		P95LatencyMs:     r.Stats.P95LatencyMs,
		ThresholdsPassed: r.ThresholdsPassed(),
		Aborted:          r.Aborted,
	}
}

func lockPath(path string) string {
	return path + ".lock"
}

// AppendHistory appends one JSON line for r to path. Concurrent runs sharing
// the file serialize on an exclusive lock next to it.
func AppendHistory(path string, r Report) error {
	line, err := json.Marshal(NewHistoryEntry(r))
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	line = append(line, '\n')

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("history lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("history: %w", err)
	}
	return f.Close()
}

// ReadHistory returns every entry in path, oldest first. A missing file is empty.
func ReadHistory(path string) ([]HistoryEntry, error) {
	lock := flock.New(lockPath(path))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("history lock: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer f.Close()

	var entries []HistoryEntry
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("history line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}
