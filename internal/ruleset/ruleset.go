// Package ruleset loads Spectral-style ruleset files and resolves them into
// the rule severities the lint engine runs with.
//
// A ruleset may extend the built-in "spectral:oas" catalog, other ruleset
// files on disk, or rulesets served over HTTP(S), and then override
// individual rule severities.
package ruleset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/theroutercompany/spec_validator/internal/lint"
)

// BuiltinOAS is the extends target for the built-in OpenAPI rules.
const BuiltinOAS = "spectral:oas"

var (
	// ErrCycle reports a ruleset that extends itself, directly or not.
	ErrCycle = errors.New("ruleset extends cycle")
	// ErrUnknownRule reports an override of a rule that does not exist.
	ErrUnknownRule = errors.New("unknown rule")
	// ErrUnsupported reports ruleset features this loader does not implement.
	ErrUnsupported = errors.New("unsupported ruleset feature")
)

// Mode controls which rules of an extended ruleset are enabled.
type Mode string

const (
	ModeRecommended Mode = "recommended"
	ModeAll         Mode = "all"
	ModeOff         Mode = "off"
)

// Ruleset is a fully resolved ruleset.
type Ruleset struct {
	// Source is the file path or URL the ruleset was loaded from.
	Source string
	// Rules holds every enabled rule and its severity.
	Rules lint.RuleConfig
}

// Enabled lists the enabled rule names in order.
func (r *Ruleset) Enabled() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Rules))
	for name := range r.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileReader is the filesystem capability used to read ruleset files.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Fetcher is the network capability used to retrieve remote rulesets.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// OSFiles reads from the local filesystem.
type OSFiles struct{}

// ReadFile implements FileReader.
func (OSFiles) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Resources bundles the capabilities Load may use. A nil Files falls back to
// OSFiles; a nil Fetcher makes remote references an error.
type Resources struct {
	Files   FileReader
	Fetcher Fetcher
}

type rulesetFile struct {
	Extends      yaml.Node `yaml:"extends"`
	Rules        yaml.Node `yaml:"rules"`
	Functions    yaml.Node `yaml:"functions"`
	FunctionsDir yaml.Node `yaml:"functionsDir"`
	Overrides    yaml.Node `yaml:"overrides"`
	Aliases      yaml.Node `yaml:"aliases"`
}

type extendsEntry struct {
	target string
	mode   Mode
}

// Load reads the ruleset at location (a path or http(s) URL) and resolves it.
func Load(ctx context.Context, location string, res Resources) (*Ruleset, error) {
	if strings.TrimSpace(location) == "" {
		return nil, errors.New("ruleset location is empty")
	}
	if res.Files == nil {
		res.Files = OSFiles{}
	}
	if !isURL(location) {
		if abs, err := filepath.Abs(location); err == nil {
			location = abs
		}
	}

	l := &loader{res: res}
	cfg, err := l.load(ctx, location)
	if err != nil {
		return nil, err
	}

	enabled := make(lint.RuleConfig, len(cfg))
	for name, sev := range cfg {
		if sev != lint.SeverityOff {
			enabled[name] = sev
		}
	}
	return &Ruleset{Source: location, Rules: enabled}, nil
}

type loader struct {
	res   Resources
	stack []string
}

func (l *loader) load(ctx context.Context, location string) (lint.RuleConfig, error) {
	for _, seen := range l.stack {
		if seen == location {
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(l.stack, location), " -> "))
		}
	}
	l.stack = append(l.stack, location)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	data, err := l.read(ctx, location)
	if err != nil {
		return nil, err
	}

	var file rulesetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode ruleset %s: %w", location, err)
	}
	if err := rejectUnsupported(file); err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", location, err)
	}

	entries, err := parseExtends(&file.Extends)
	if err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", location, err)
	}

	cfg := lint.RuleConfig{}
	for _, entry := range entries {
		parent, err := l.extend(ctx, location, entry)
		if err != nil {
			return nil, err
		}
		for name, sev := range parent {
			cfg[name] = sev
		}
	}

	if err := applyRules(cfg, &file.Rules); err != nil {
		return nil, fmt.Errorf("ruleset %s: %w", location, err)
	}
	return cfg, nil
}

func (l *loader) extend(ctx context.Context, from string, entry extendsEntry) (lint.RuleConfig, error) {
	if entry.target == BuiltinOAS {
		return builtin(entry.mode), nil
	}
	if strings.HasPrefix(entry.target, "spectral:") {
		return nil, fmt.Errorf("%w: extends %q", ErrUnsupported, entry.target)
	}

	target, err := resolve(from, entry.target)
	if err != nil {
		return nil, err
	}
	parent, err := l.load(ctx, target)
	if err != nil {
		return nil, err
	}
	if entry.mode == ModeOff {
		for name := range parent {
			parent[name] = lint.SeverityOff
		}
	}
	return parent, nil
}

func (l *loader) read(ctx context.Context, location string) ([]byte, error) {
	if isURL(location) {
		if l.res.Fetcher == nil {
			return nil, fmt.Errorf("fetch ruleset %s: no fetcher configured", location)
		}
		data, err := l.res.Fetcher.Fetch(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("fetch ruleset %s: %w", location, err)
		}
		return data, nil
	}
	data, err := l.res.Files.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read ruleset %s: %w", location, err)
	}
	return data, nil
}

func builtin(mode Mode) lint.RuleConfig {
	cfg := lint.RuleConfig{}
	for _, rule := range lint.Builtin() {
		switch {
		case mode == ModeAll, mode == ModeRecommended && rule.Recommended:
			cfg[rule.Name] = rule.Severity
		default:
			cfg[rule.Name] = lint.SeverityOff
		}
	}
	return cfg
}

func parseExtends(node *yaml.Node) ([]extendsEntry, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		return []extendsEntry{{target: node.Value, mode: ModeRecommended}}, nil
	case yaml.SequenceNode:
	default:
		return nil, errors.New("extends must be a string or a list")
	}

	entries := make([]extendsEntry, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			entries = append(entries, extendsEntry{target: item.Value, mode: ModeRecommended})
		case yaml.SequenceNode:
			if len(item.Content) != 2 || item.Content[0].Kind != yaml.ScalarNode || item.Content[1].Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("extends entry at line %d must be [ruleset, mode]", item.Line)
			}
			mode := Mode(item.Content[1].Value)
			switch mode {
			case ModeRecommended, ModeAll, ModeOff:
			default:
				return nil, fmt.Errorf("extends mode %q at line %d must be recommended, all or off", mode, item.Line)
			}
			entries = append(entries, extendsEntry{target: item.Content[0].Value, mode: mode})
		default:
			return nil, fmt.Errorf("extends entry at line %d is not a string or pair", item.Line)
		}
	}
	return entries, nil
}

func applyRules(cfg lint.RuleConfig, node *yaml.Node) error {
	switch node.Kind {
	case 0:
		return nil
	case yaml.MappingNode:
	default:
		return errors.New("rules must be a mapping")
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := node.Content[i+1]

		if isCustomRule(value) {
			return fmt.Errorf("%w: custom rule %q (given/then definitions)", ErrUnsupported, name)
		}
		rule, ok := lint.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRule, name)
		}

		sev, err := ruleSeverity(rule, cfg, value)
		if err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
		cfg[name] = sev
	}
	return nil
}

func ruleSeverity(rule lint.Rule, cfg lint.RuleConfig, value *yaml.Node) (lint.Severity, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!bool" {
			if value.Value != "true" {
				return lint.SeverityOff, nil
			}
			if current, ok := cfg[rule.Name]; ok && current != lint.SeverityOff {
				return current, nil
			}
			return rule.Severity, nil
		}
		return lint.ParseSeverity(value.Value)
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			if value.Content[i].Value == "severity" {
				return lint.ParseSeverity(value.Content[i+1].Value)
			}
		}
		return rule.Severity, nil
	default:
		return lint.SeverityOff, errors.New("value must be a severity, boolean or mapping")
	}
}

func isCustomRule(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "given", "then":
			return true
		}
	}
	return false
}

func rejectUnsupported(file rulesetFile) error {
	keys := []struct {
		name string
		node yaml.Node
	}{
		{"functions", file.Functions},
		{"functionsDir", file.FunctionsDir},
		{"overrides", file.Overrides},
		{"aliases", file.Aliases},
	}
	for _, key := range keys {
		if key.node.Kind != 0 {
			return fmt.Errorf("%w: %s", ErrUnsupported, key.name)
		}
	}
	return nil
}

// resolve locates target relative to the ruleset that referenced it.
func resolve(from, target string) (string, error) {
	if isURL(target) {
		return target, nil
	}
	if isURL(from) {
		base, err := url.Parse(from)
		if err != nil {
			return "", fmt.Errorf("parse ruleset url %s: %w", from, err)
		}
		ref, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parse extends %q: %w", target, err)
		}
		return base.ResolveReference(ref).String(), nil
	}
	if filepath.IsAbs(target) {
		return target, nil
	}
	return filepath.Join(filepath.Dir(from), filepath.FromSlash(target)), nil
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}
