package report

import "github.com/theroutercompany/spec_validator/internal/lint"

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema,omitempty"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

// sarifRegion is one-based.
type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

func toSARIF(source string, diags []lint.Diagnostic, opts Options) sarifLog {
	tool := opts.Tool
	if tool == "" {
		tool = "specvalidate"
	}

	results := make([]sarifResult, 0, len(diags))
	var rules []sarifRule
	seen := make(map[string]struct{})
	for _, d := range diags {
		if _, ok := seen[d.Code]; !ok {
			seen[d.Code] = struct{}{}
			desc := d.Code
			if rule, ok := lint.Lookup(d.Code); ok {
				desc = rule.Description
			}
			rules = append(rules, sarifRule{ID: d.Code, ShortDescription: sarifMessage{Text: desc}})
		}

		uri := d.Source
		if uri == "" {
			uri = source
		}
		results = append(results, sarifResult{
			RuleID:  d.Code,
			Level:   sarifLevel(d.Severity),
			Message: sarifMessage{Text: d.Message},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: uri},
					Region: &sarifRegion{
						StartLine:   d.Range.Start.Line + 1,
						StartColumn: d.Range.Start.Character + 1,
						EndLine:     d.Range.End.Line + 1,
						EndColumn:   d.Range.End.Character + 1,
					},
				},
			}},
		})
	}

	return sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: tool, Version: opts.Version, Rules: rules}},
			Results: results,
		}},
	}
}

func sarifLevel(sev lint.Severity) string {
	switch sev {
	case lint.SeverityError:
		return "error"
	case lint.SeverityWarn:
		return "warning"
	default:
		return "note"
	}
}
