// Package config loads, validates, and normalises runner configuration.
//
// Values are layered: built-in defaults, then YAML files, then environment
// variables. Relative paths declared inside a YAML file are resolved against
// that file's directory so a config can live next to the specs it describes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSpecsRoot       = "specs"
	defaultValidationsRoot = "validations"
	defaultRuleset         = ".spectral.yaml"
	defaultConcurrency     = 4
	defaultOutputFormat    = "json"
	defaultFetchTimeout    = 10 * time.Second
	defaultFetchRateLimit  = 5.0
	defaultFetchBurst      = 1
	defaultFetchUserAgent  = "specvalidate/ruleset-fetch"
	defaultLogLevel        = "info"
	defaultConfigEnvVar    = "SPECVALIDATE_CONFIG"
	envSpecsRoot           = "SPECS_ROOT"
	envValidationsRoot     = "VALIDATIONS_ROOT"
	envRuleset             = "SPECTRAL_RULESET"
	envConcurrency         = "CONCURRENCY"
	envOutputFormat        = "OUTPUT_FORMAT"
	envOutputIndent        = "OUTPUT_INDENT"
	envFetchTimeout        = "FETCH_TIMEOUT_MS"
	envFetchRateLimit      = "FETCH_RATE_LIMIT"
	envFetchBurst          = "FETCH_BURST"
	envFetchUserAgent      = "FETCH_USER_AGENT"
	envMetricsTextfile     = "METRICS_TEXTFILE"
	envLogLevel            = "LOG_LEVEL"
)

var supportedFormats = map[string]struct{}{
	"json":  {},
	"sarif": {},
}

// Config captures everything a validation run needs.
type Config struct {
	SpecsRoot       string        `yaml:"specsRoot"`
	ValidationsRoot string        `yaml:"validationsRoot"`
	Ruleset         string        `yaml:"ruleset"`
	Concurrency     int           `yaml:"concurrency"`
	Output          OutputConfig  `yaml:"output"`
	Fetch           FetchConfig   `yaml:"fetch"`
	Metrics         MetricsConfig `yaml:"metrics"`
	Log             LogConfig     `yaml:"log"`
}

// OutputConfig controls how diagnostics are serialised.
type OutputConfig struct {
	Format string `yaml:"format"`
	Indent bool   `yaml:"indent"`
}

// FetchConfig governs remote ruleset retrieval.
type FetchConfig struct {
	Timeout   Duration `yaml:"timeout"`
	RateLimit float64  `yaml:"rateLimit"`
	Burst     int      `yaml:"burst"`
	UserAgent string   `yaml:"userAgent"`
}

// MetricsConfig points at an optional node-exporter textfile.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration is a YAML-friendly wrapper over time.Duration supporting numeric millisecond inputs.
type Duration time.Duration

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.AsDuration().String(), nil
}

// UnmarshalYAML decodes scalar duration values from either Go duration strings or millisecond integers.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}

	txt := strings.TrimSpace(value.Value)
	if txt == "" {
		*d = Duration(0)
		return nil
	}
	if ms, err := strconv.Atoi(txt); err == nil {
		if ms < 0 {
			return fmt.Errorf("duration must be non-negative, got %d", ms)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(txt)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", txt, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration must be non-negative, got %s", parsed)
	}
	*d = Duration(parsed)
	return nil
}

// DurationFrom constructs a Duration from a time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration(d)
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		SpecsRoot:       defaultSpecsRoot,
		ValidationsRoot: defaultValidationsRoot,
		Ruleset:         defaultRuleset,
		Concurrency:     defaultConcurrency,
		Output: OutputConfig{
			Format: defaultOutputFormat,
		},
		Fetch: FetchConfig{
			Timeout:   DurationFrom(defaultFetchTimeout),
			RateLimit: defaultFetchRateLimit,
			Burst:     defaultFetchBurst,
			UserAgent: defaultFetchUserAgent,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}

// Option customises the load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	paths     []string
	required  map[string]bool
	lookupEnv func(string) (string, bool)
}

// WithPath adds a YAML config path to attempt loading. Missing files are skipped.
func WithPath(path string) Option {
	return func(o *loaderOptions) {
		if strings.TrimSpace(path) != "" {
			o.paths = append(o.paths, path)
		}
	}
}

// WithRequiredPath adds a YAML config path that must exist. Use it for paths
// the operator named explicitly.
func WithRequiredPath(path string) Option {
	return func(o *loaderOptions) {
		if strings.TrimSpace(path) == "" {
			return
		}
		if o.required == nil {
			o.required = make(map[string]bool)
		}
		o.paths = append(o.paths, path)
		o.required[path] = true
	}
}

// WithLookupEnv overrides the environment lookup function (useful for tests).
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loaderOptions) {
		o.lookupEnv = fn
	}
}

// Load builds a Config from defaults, YAML files, and environment overrides (in that order).
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		lookupEnv: os.LookupEnv,
	}
	if envPath := strings.TrimSpace(os.Getenv(defaultConfigEnvVar)); envPath != "" {
		options.paths = append(options.paths, envPath)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg := Default()

	for _, path := range options.paths {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !options.required[path]:
			continue
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := applyFile(&cfg, path, data); err != nil {
			return cfg, err
		}
	}

	if err := applyEnvOverrides(&cfg, options.lookupEnv); err != nil {
		return cfg, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// declaredPaths records which path fields a single file set.
type declaredPaths struct {
	SpecsRoot       string `yaml:"specsRoot"`
	ValidationsRoot string `yaml:"validationsRoot"`
	Ruleset         string `yaml:"ruleset"`
	Metrics         struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

func applyFile(cfg *Config, path string, data []byte) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config %q: %w", path, err)
	}

	var declared declaredPaths
	if err := yaml.Unmarshal(data, &declared); err != nil {
		return fmt.Errorf("decode config %q: %w", path, err)
	}

	base := filepath.Dir(path)
	if declared.SpecsRoot != "" {
		cfg.SpecsRoot = relativeTo(base, declared.SpecsRoot)
	}
	if declared.ValidationsRoot != "" {
		cfg.ValidationsRoot = relativeTo(base, declared.ValidationsRoot)
	}
	if declared.Ruleset != "" && !isURL(declared.Ruleset) {
		cfg.Ruleset = relativeTo(base, declared.Ruleset)
	}
	if declared.Metrics.Textfile != "" {
		cfg.Metrics.Textfile = relativeTo(base, declared.Metrics.Textfile)
	}
	return nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if val, ok := lookup(envSpecsRoot); ok && strings.TrimSpace(val) != "" {
		cfg.SpecsRoot = strings.TrimSpace(val)
	}
	if val, ok := lookup(envValidationsRoot); ok && strings.TrimSpace(val) != "" {
		cfg.ValidationsRoot = strings.TrimSpace(val)
	}
	if val, ok := lookup(envRuleset); ok && strings.TrimSpace(val) != "" {
		cfg.Ruleset = strings.TrimSpace(val)
	}

	if val, ok := lookup(envConcurrency); ok && strings.TrimSpace(val) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s value: %s", envConcurrency, val)
		}
		cfg.Concurrency = n
	}

	if val, ok := lookup(envOutputFormat); ok && strings.TrimSpace(val) != "" {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(val))
	}
	if val, ok := lookup(envOutputIndent); ok && strings.TrimSpace(val) != "" {
		indent, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envOutputIndent, err)
		}
		cfg.Output.Indent = indent
	}

	if val, ok := lookup(envFetchTimeout); ok && strings.TrimSpace(val) != "" {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envFetchTimeout, err)
		}
		cfg.Fetch.Timeout = DurationFrom(timeout)
	}
	if val, ok := lookup(envFetchRateLimit); ok && strings.TrimSpace(val) != "" {
		limit, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid %s value: %s", envFetchRateLimit, val)
		}
		cfg.Fetch.RateLimit = limit
	}
	if val, ok := lookup(envFetchBurst); ok && strings.TrimSpace(val) != "" {
		burst, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || burst <= 0 {
			return fmt.Errorf("invalid %s value: %s", envFetchBurst, val)
		}
		cfg.Fetch.Burst = burst
	}
	if val, ok := lookup(envFetchUserAgent); ok && strings.TrimSpace(val) != "" {
		cfg.Fetch.UserAgent = strings.TrimSpace(val)
	}

	if val, ok := lookup(envMetricsTextfile); ok && strings.TrimSpace(val) != "" {
		cfg.Metrics.Textfile = strings.TrimSpace(val)
	}
	if val, ok := lookup(envLogLevel); ok && strings.TrimSpace(val) != "" {
		cfg.Log.Level = strings.TrimSpace(val)
	}

	return nil
}

// normalize fills in defaults that may be missing after YAML/env overrides.
func (cfg *Config) normalize() {
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	if cfg.Output.Format == "" {
		cfg.Output.Format = defaultOutputFormat
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Fetch.Timeout.AsDuration() <= 0 {
		cfg.Fetch.Timeout = DurationFrom(defaultFetchTimeout)
	}
	if cfg.Fetch.RateLimit == 0 {
		cfg.Fetch.RateLimit = defaultFetchRateLimit
	}
	if cfg.Fetch.Burst == 0 {
		cfg.Fetch.Burst = defaultFetchBurst
	}
	if strings.TrimSpace(cfg.Fetch.UserAgent) == "" {
		cfg.Fetch.UserAgent = defaultFetchUserAgent
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = defaultLogLevel
	}
}

// Validate performs semantic validation on the configuration.
func (cfg Config) Validate() error {
	var errs []error

	if strings.TrimSpace(cfg.SpecsRoot) == "" {
		errs = append(errs, fmt.Errorf("specsRoot must not be empty"))
	}
	if strings.TrimSpace(cfg.ValidationsRoot) == "" {
		errs = append(errs, fmt.Errorf("validationsRoot must not be empty"))
	}
	if sameDir(cfg.SpecsRoot, cfg.ValidationsRoot) {
		errs = append(errs, fmt.Errorf("validationsRoot must differ from specsRoot"))
	}
	if strings.TrimSpace(cfg.Ruleset) == "" {
		errs = append(errs, fmt.Errorf("ruleset must not be empty"))
	}
	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive"))
	}
	if _, ok := supportedFormats[cfg.Output.Format]; !ok {
		errs = append(errs, fmt.Errorf("output.format %q is not supported (json, sarif)", cfg.Output.Format))
	}
	if cfg.Fetch.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("fetch.rateLimit must be positive"))
	}
	if cfg.Fetch.Burst < 0 {
		errs = append(errs, fmt.Errorf("fetch.burst must be positive"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func parsePositiveDurationMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func sameDir(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func relativeTo(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}
