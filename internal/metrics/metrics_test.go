package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Raw().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func TestNamespaceOption(t *testing.T) {
	if ns := NewRegistry(WithoutDefaultCollectors()).Namespace(); ns != "specvalidate" {
		t.Fatalf("expected default namespace, got %s", ns)
	}
	if ns := NewRegistry(WithNamespace("ci"), WithoutDefaultCollectors()).Namespace(); ns != "ci" {
		t.Fatalf("expected namespace ci, got %s", ns)
	}
}

func TestWithoutDefaultCollectors(t *testing.T) {
	reg := NewRegistry(WithoutDefaultCollectors())
	if mfs := gather(t, reg); len(mfs) != 0 {
		t.Fatalf("expected no metrics, got %d families", len(mfs))
	}
}

func TestRecorderObservesRuns(t *testing.T) {
	reg := NewRegistry(WithoutDefaultCollectors())
	rec := NewRecorder(reg)

	rec.ObserveRun("succeeded", 120*time.Millisecond, map[string]int{"warn": 2, "error": 0})
	rec.ObserveRun("failed", time.Millisecond, nil)
	rec.ObserveFetch("https://rules.example.com/a.yaml", nil)
	rec.ObserveFetch("https://rules.example.com/b.yaml", errors.New("boom"))

	mfs := gather(t, reg)

	runs := mfs["specvalidate_runs_total"]
	if runs == nil || len(runs.GetMetric()) != 2 {
		t.Fatalf("expected two run series, got %v", runs)
	}

	diags := mfs["specvalidate_diagnostics_total"]
	if diags == nil || len(diags.GetMetric()) != 1 {
		t.Fatalf("expected one diagnostics series, got %v", diags)
	}
	if got := diags.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 warn diagnostics, got %v", got)
	}

	hist := mfs["specvalidate_run_duration_seconds"]
	if hist == nil || hist.GetMetric()[0].GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected two duration samples, got %v", hist)
	}

	fetches := mfs["specvalidate_ruleset_fetches_total"]
	if fetches == nil || len(fetches.GetMetric()) != 2 {
		t.Fatalf("expected ok and error fetch series, got %v", fetches)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.ObserveRun("succeeded", time.Second, map[string]int{"error": 1})
	rec.ObserveFetch("x", nil)
}

func TestWriteTextfile(t *testing.T) {
	reg := NewRegistry(WithoutDefaultCollectors())
	rec := NewRecorder(reg)
	rec.ObserveRun("skipped", 0, nil)

	path := filepath.Join(t.TempDir(), "textfile", "specvalidate.prom")
	if err := reg.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `specvalidate_runs_total{status="skipped"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", data)
	}

	if err := reg.WriteTextfile(""); err != nil {
		t.Fatalf("empty path should be ignored: %v", err)
	}
}
