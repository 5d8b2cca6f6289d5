package lint

import (
	"fmt"
	"sort"
	"strings"
)

// Severity follows the numeric scale used by Spectral's JSON output.
type Severity int

const (
	SeverityOff   Severity = -1
	SeverityError Severity = 0
	SeverityWarn  Severity = 1
	SeverityInfo  Severity = 2
	SeverityHint  Severity = 3
)

var severityNames = map[string]Severity{
	"off":         SeverityOff,
	"error":       SeverityError,
	"warn":        SeverityWarn,
	"warning":     SeverityWarn,
	"info":        SeverityInfo,
	"information": SeverityInfo,
	"hint":        SeverityHint,
}

// ParseSeverity accepts the names Spectral rulesets use.
func ParseSeverity(name string) (Severity, error) {
	sev, ok := severityNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return SeverityOff, fmt.Errorf("unknown severity %q", name)
	}
	return sev, nil
}

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarn:
		return "warn"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "off"
	}
}

// Position is a zero-based line/character pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range spans the node a diagnostic points at.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is one rule violation.
type Diagnostic struct {
	Code     string   `json:"code"`
	Path     []string `json:"path"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Range    Range    `json:"range"`
	Source   string   `json:"source,omitempty"`
}

// SortDiagnostics orders diagnostics by position, then code, then path.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Range.Start.Line != b.Range.Start.Line {
			return a.Range.Start.Line < b.Range.Start.Line
		}
		if a.Range.Start.Character != b.Range.Start.Character {
			return a.Range.Start.Character < b.Range.Start.Character
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return strings.Join(a.Path, "\x00") < strings.Join(b.Path, "\x00")
	})
}

// CountBySeverity tallies diagnostics per severity.
func CountBySeverity(diags []Diagnostic) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}
