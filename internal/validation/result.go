package validation

import (
	"time"

	"github.com/theroutercompany/spec_validator/internal/lint"
	"github.com/theroutercompany/spec_validator/internal/paths"
)

// Status is the outcome of one run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Stage names the pipeline step a failed run stopped at.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageRead     Stage = "read"
	StageRuleset  Stage = "ruleset"
	StageLint     Stage = "lint"
	StageWrite    Stage = "write"
	StageCanceled Stage = "canceled"
)

// Result captures the outcome of validating a single identifier.
type Result struct {
	Identifier  string
	RunID       string
	Status      Status
	Stage       Stage
	Paths       paths.Triple
	Diagnostics []lint.Diagnostic
	Err         error
	Duration    time.Duration
}

// Failed reports whether the run should turn into a non-zero exit.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// Summary counts results per status.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
