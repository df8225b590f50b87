package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestWriteSummaryJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	if err := WriteSummary(path, sampleReport()); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON summary: %v", err)
	}
	if decoded.RunID != sampleReport().RunID || decoded.Stats.Total != 600 {
		t.Fatalf("unexpected summary: %+v", decoded)
	}
}

func TestWriteSummaryYAML(t *testing.T) {
	for _, name := range []string{"summary.yaml", "summary.YML"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteSummary(path, sampleReport()); err != nil {
				t.Fatalf("WriteSummary() error = %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			var decoded map[string]interface{}
			if err := yaml.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("invalid YAML summary: %v", err)
			}
			if decoded["target"] != "http://localhost:8080/members" {
				t.Fatalf("target = %v", decoded["target"])
			}
			m, ok := decoded["metrics"].(map[string]interface{})
			if !ok || m["total"] != 600 {
				t.Fatalf("metrics = %v", decoded["metrics"])
			}
		})
	}
}

func TestWriteSummaryRejectsUnknownExtension(t *testing.T) {
	if err := WriteSummary(filepath.Join(t.TempDir(), "summary.txt"), sampleReport()); err == nil {
		t.Fatal("expected error for .txt")
	}
}

func TestAppendHistoryConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	const runs = 8
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := sampleReport()
			r.RunID = NewRunID()
			errs <- AppendHistory(path, r)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
	}

	entries, err := ReadHistory(path)
	if err != nil {
		t.Fatalf("ReadHistory() error = %v", err)
	}
	if len(entries) != runs {
		t.Fatalf("got %d entries, want %d", len(entries), runs)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.RunID] {
			t.Fatalf("duplicate run id %s", e.RunID)
		}
		seen[e.RunID] = true
		if e.Requests != 600 || e.Failures != 10 || e.ThresholdsPassed || e.VUs != 10 {
			t.Fatalf("unexpected entry: %+v", e)
		}
	}
}

func TestReadHistoryMissingFile(t *testing.T) {
	entries, err := ReadHistory(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || entries != nil {
		t.Fatalf("ReadHistory() = %v, %v; want nil, nil", entries, err)
	}
}

func TestReadHistoryBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	if err := os.WriteFile(path, []byte("{\"run_id\":\"a\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHistory(path); err == nil {
		t.Fatal("expected parse error")
	}
}
