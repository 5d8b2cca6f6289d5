// Package lint evaluates OpenAPI documents against a configurable set of
// built-in rules and reports Spectral-compatible diagnostics.
//
// Parsing and structural validation are delegated to kin-openapi; positions
// come from a yaml.v3 node tree so every diagnostic can point at source.
package lint

import (
	"context"
	"errors"
	"regexp"
	"strconv"
)

// ErrNoRuleset is returned by Run when no ruleset has been attached.
var ErrNoRuleset = errors.New("no ruleset has been provided")

const (
	codeParser             = "parser"
	codeUnrecognizedFormat = "unrecognized-format"
)

// Engine runs rules against documents. Configure it with SetRuleset before
// calling Run; Run is safe for concurrent use once configured.
type Engine struct {
	rules   []Rule
	config  RuleConfig
	fetcher Fetcher
}

// Fetcher retrieves remote documents referenced by $ref. Implementations
// must honour ctx.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Option customises an Engine.
type Option func(*Engine)

// WithRules replaces the built-in catalog.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = append([]Rule(nil), rules...)
	}
}

// WithFetcher routes remote $ref retrieval through f.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) {
		if f != nil {
			e.fetcher = f
		}
	}
}

// NewEngine constructs an Engine over the built-in catalog.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: Builtin(), fetcher: defaultFetcher}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// SetRuleset attaches the effective rule severities.
func (e *Engine) SetRuleset(cfg RuleConfig) {
	copied := make(RuleConfig, len(cfg))
	for name, sev := range cfg {
		copied[name] = sev
	}
	e.config = copied
}

// Run lints doc and returns its diagnostics sorted by position. The returned
// slice is never nil.
func (e *Engine) Run(ctx context.Context, doc Document) ([]Diagnostic, error) {
	if e.config == nil {
		return nil, ErrNoRuleset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tr, err := parseTree(doc.Text)
	if err != nil {
		return []Diagnostic{parserDiagnostic(doc, err)}, nil
	}

	format, ok := detectFormat(tr)
	if !ok {
		return []Diagnostic{{
			Code:     codeUnrecognizedFormat,
			Path:     []string{},
			Message:  "The provided document does not match any of the registered formats [OpenAPI 2.0 (Swagger), OpenAPI 3.x]",
			Severity: SeverityWarn,
			Source:   doc.Name,
		}}, nil
	}

	t := &target{doc: doc, format: format, tree: tr}
	t.model, t.structural = loadModel(ctx, doc, format, e.fetcher)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diags := []Diagnostic{}
	for _, rule := range e.rules {
		severity, enabled := e.config[rule.Name]
		if !enabled || severity == SeverityOff || !rule.AppliesTo(format) || rule.check == nil {
			continue
		}
		for _, f := range rule.check(t) {
			diags = append(diags, Diagnostic{
				Code:     rule.Name,
				Path:     f.Path,
				Message:  f.Message,
				Severity: severity,
				Range:    tr.rangeOf(f.Path),
				Source:   doc.Name,
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	SortDiagnostics(diags)
	return diags, nil
}

var yamlErrorLine = regexp.MustCompile(`line (\d+)`)

func parserDiagnostic(doc Document, err error) Diagnostic {
	d := Diagnostic{
		Code:     codeParser,
		Path:     []string{},
		Message:  err.Error(),
		Severity: SeverityError,
		Source:   doc.Name,
	}
	if m := yamlErrorLine.FindStringSubmatch(err.Error()); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil && line > 0 {
			d.Range = Range{Start: Position{Line: line - 1}, End: Position{Line: line - 1}}
		}
	}
	return d
}
