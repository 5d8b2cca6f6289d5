package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/theroutercompany/spec_validator/internal/config"
	"github.com/theroutercompany/spec_validator/internal/validation"
)

const cleanSpec = `
openapi: 3.0.3
info:
  title: Petstore
  version: 1.0.0
  contact:
    name: API Team
paths: {}
`

type layout struct {
	specs       string
	validations string
	ruleset     string
}

func newLayout(t *testing.T, rules string) layout {
	t.Helper()
	root := t.TempDir()
	l := layout{
		specs:       filepath.Join(root, "swagger-apis"),
		validations: filepath.Join(root, "swagger-validations"),
		ruleset:     filepath.Join(root, ".spectral.yaml"),
	}
	if err := os.MkdirAll(l.specs, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, l.ruleset, rules)
	return l
}

func (l layout) args(extra ...string) []string {
	base := []string{
		"--specs-root", l.specs,
		"--validations-root", l.validations,
		"--ruleset", l.ruleset,
		"--log-level", "error",
	}
	return append(base, extra...)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String())
}

func TestRunMissingSpecExitsZero(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")

	code, stdout, _ := runCLI(l.args("orgA/missing.yml")...)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout, "skipped") {
		t.Fatalf("unexpected output: %s", stdout)
	}
	if _, err := os.Stat(l.validations); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("validations root should not exist, stat err=%v", err)
	}
}

func TestRunDefaultCommandWritesResult(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")
	writeFile(t, filepath.Join(l.specs, "orgA", "petstore.yml"), cleanSpec)

	code, stdout, stderr := runCLI(l.args("orgA/petstore.yml")...)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.HasPrefix(stdout, "ok") {
		t.Fatalf("unexpected output: %s", stdout)
	}
	data, err := os.ReadFile(filepath.Join(l.validations, "orgA", "petstore.json"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected empty collection, got %s", data)
	}
}

func TestRunMalformedRulesetExitsNonZero(t *testing.T) {
	l := newLayout(t, "extends: [\n")
	writeFile(t, filepath.Join(l.specs, "orgA", "petstore.yml"), cleanSpec)

	code, stdout, _ := runCLI(append([]string{"run"}, l.args("orgA/petstore.yml")...)...)
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdout, "[ruleset]") {
		t.Fatalf("expected ruleset stage in output, got %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(l.validations, "orgA", "petstore.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no result file expected, stat err=%v", err)
	}
}

func TestRunRequiresIdentifier(t *testing.T) {
	l := newLayout(t, "rules: {}\n")
	code, _, stderr := runCLI(l.args()...)
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "identifier is required") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	l := newLayout(t, "rules: {}\n")
	code, _, stderr := runCLI(l.args("--format", "xml", "a.yml")...)
	if code != exitFailure || !strings.Contains(stderr, "output.format") {
		t.Fatalf("expected format error, got %d: %s", code, stderr)
	}
}

func TestRunRejectsMissingConfigFile(t *testing.T) {
	l := newLayout(t, "rules: {}\n")
	missing := filepath.Join(t.TempDir(), "specvalidte.yaml")
	code, _, stderr := runCLI(l.args("--config", missing, "a.yml")...)
	if code != exitFailure || !strings.Contains(stderr, "specvalidte.yaml") {
		t.Fatalf("expected missing config error, got %d: %s", code, stderr)
	}
}

func TestAllCommandWritesMetrics(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")
	writeFile(t, filepath.Join(l.specs, "orgA", "petstore.yml"), cleanSpec)
	writeFile(t, filepath.Join(l.specs, "orgB", "orders.json"), `{"openapi":"3.0.3","info":{"title":"o","version":"1"},"paths":{}}`)
	textfile := filepath.Join(t.TempDir(), "specvalidate.prom")

	code, stdout, stderr := runCLI(append([]string{"all"}, l.args("--metrics-textfile", textfile)...)...)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "2 succeeded, 0 skipped, 0 failed") {
		t.Fatalf("unexpected summary: %s", stdout)
	}
	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), `specvalidate_runs_total{status="succeeded"} 2`) {
		t.Fatalf("unexpected metrics:\n%s", data)
	}
}

func TestRulesCommand(t *testing.T) {
	code, stdout, _ := runCLI("rules", "--recommended")
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "info-contact") {
		t.Fatalf("expected info-contact in listing: %s", stdout)
	}
	if strings.Contains(stdout, "oas3-server-not-example.com") {
		t.Fatalf("opt-in rule listed under --recommended")
	}
}

type watchHarness struct {
	batches chan []validation.Result
	cancel  context.CancelFunc
	done    chan error
}

func startWatch(t *testing.T, l layout) *watchHarness {
	t.Helper()
	cfg := config.Config{
		SpecsRoot:       l.specs,
		ValidationsRoot: l.validations,
		Ruleset:         l.ruleset,
		Concurrency:     1,
		Output:          config.OutputConfig{Format: "json"},
	}
	runner, err := validation.New(cfg, validation.WithLogger(zap.NewNop().Sugar()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &watchHarness{
		batches: make(chan []validation.Result, 64),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	ready := make(chan struct{})
	go func() {
		h.done <- watchSpecs(ctx, watchOptions{
			Runner:    runner,
			Debounce:  20 * time.Millisecond,
			Logger:    zap.NewNop().Sugar(),
			OnResults: func(r []validation.Result) { h.batches <- r },
			Ready:     func() { close(ready) },
		})
	}()
	t.Cleanup(h.stop)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher not ready")
	}
	return h
}

func (h *watchHarness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
	}
}

// await returns the first result for identifier that satisfies match.
func (h *watchHarness) await(t *testing.T, identifier string, match func(validation.Result) bool) validation.Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-h.batches:
			for _, res := range batch {
				if res.Identifier == identifier && match(res) {
					return res
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", identifier)
		}
	}
}

func succeeded(res validation.Result) bool {
	return res.Status == validation.StatusSucceeded
}

func TestWatchRevalidatesChangedSpecs(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")
	h := startWatch(t, l)
	initial := <-h.batches
	if len(initial) != 0 {
		t.Fatalf("expected empty initial pass, got %+v", initial)
	}

	writeFile(t, filepath.Join(l.specs, "petstore.yml"), cleanSpec)
	h.await(t, "petstore.yml", succeeded)

	if _, err := os.Stat(filepath.Join(l.validations, "petstore.json")); err != nil {
		t.Fatalf("expected result file: %v", err)
	}
}

func TestWatchRulesetChangeRevalidatesAll(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")
	noContact := strings.Replace(cleanSpec, "  contact:\n    name: API Team\n", "", 1)
	writeFile(t, filepath.Join(l.specs, "orgA", "a.yml"), noContact)
	writeFile(t, filepath.Join(l.specs, "orgB", "b.yml"), noContact)

	h := startWatch(t, l)
	initial := <-h.batches
	if len(initial) != 2 {
		t.Fatalf("expected both specs in the initial pass, got %d", len(initial))
	}
	for _, res := range initial {
		if len(res.Diagnostics) != 1 {
			t.Fatalf("expected info-contact for %s, got %+v", res.Identifier, res.Diagnostics)
		}
	}

	writeFile(t, l.ruleset, "rules:\n  info-contact: off\n")

	clean := func(res validation.Result) bool { return succeeded(res) && len(res.Diagnostics) == 0 }
	h.await(t, "orgB/b.yml", clean)

	data, err := os.ReadFile(filepath.Join(l.validations, "orgA", "a.json"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("untouched spec was not re-validated with the new ruleset: %s", data)
	}
}

func TestWatchPicksUpNewDirectories(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")
	h := startWatch(t, l)
	<-h.batches

	// a directory that already holds a spec when it appears, as with cp -r
	staging := filepath.Join(t.TempDir(), "orgC")
	writeFile(t, filepath.Join(staging, "v1", "api.yaml"), cleanSpec)
	if err := os.Rename(staging, filepath.Join(l.specs, "orgC")); err != nil {
		t.Fatalf("move directory into specs root: %v", err)
	}
	h.await(t, "orgC/v1/api.yaml", succeeded)

	// the new directory is watched for later writes
	writeFile(t, filepath.Join(l.specs, "orgC", "v1", "orders.yml"), cleanSpec)
	h.await(t, "orgC/v1/orders.yml", succeeded)
}

func TestWatchIgnoresNestedValidationsRoot(t *testing.T) {
	l := newLayout(t, "rules:\n  info-contact: warn\n")
	l.validations = filepath.Join(l.specs, "validations")
	h := startWatch(t, l)
	<-h.batches

	writeFile(t, filepath.Join(l.specs, "petstore.yml"), cleanSpec)
	h.await(t, "petstore.yml", succeeded)

	quiet := time.After(300 * time.Millisecond)
	for {
		select {
		case batch := <-h.batches:
			for _, res := range batch {
				if strings.HasPrefix(res.Identifier, "validations/") {
					t.Fatalf("watch re-linted its own output: %s", res.Identifier)
				}
			}
		case <-quiet:
			return
		}
	}
}
