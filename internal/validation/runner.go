// Package validation runs the lint pipeline for spec files and writes the
// diagnostics into the mirrored validations tree.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theroutercompany/spec_validator/internal/config"
	"github.com/theroutercompany/spec_validator/internal/lint"
	"github.com/theroutercompany/spec_validator/internal/metrics"
	"github.com/theroutercompany/spec_validator/internal/paths"
	"github.com/theroutercompany/spec_validator/internal/report"
	"github.com/theroutercompany/spec_validator/internal/ruleset"
	pkglog "github.com/theroutercompany/spec_validator/pkg/log"
)

var specExtensions = map[string]struct{}{
	".yml":  {},
	".yaml": {},
	".json": {},
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger overrides the shared logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder attaches run metrics.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithResources replaces the filesystem and fetch capabilities used to load
// the ruleset.
func WithResources(res ruleset.Resources) Option {
	return func(r *Runner) {
		r.resources = res
		r.customResources = true
	}
}

// WithEngineOptions passes options to every engine the runner builds.
func WithEngineOptions(opts ...lint.Option) Option {
	return func(r *Runner) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// WithVersion stamps SARIF output with the tool version.
func WithVersion(version string) Option {
	return func(r *Runner) {
		r.version = version
	}
}

// Runner validates spec identifiers against one ruleset. The ruleset is loaded
// on first use and shared by every later run until ResetRuleset is called.
type Runner struct {
	cfg             config.Config
	format          report.Format
	logger          *zap.SugaredLogger
	recorder        *metrics.Recorder
	resources       ruleset.Resources
	customResources bool
	engineOpts      []lint.Option
	version         string

	mu     sync.Mutex
	rules  *ruleset.Ruleset
	engine *lint.Engine
}

// New builds a Runner from cfg.
func New(cfg config.Config, opts ...Option) (*Runner, error) {
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		format: format,
		logger: pkglog.Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if !r.customResources {
		r.resources = ruleset.Resources{
			Files: ruleset.OSFiles{},
			Fetcher: ruleset.NewHTTPFetcher(
				cfg.Fetch.Timeout.AsDuration(),
				ruleset.WithRateLimit(cfg.Fetch.RateLimit, cfg.Fetch.Burst),
				ruleset.WithUserAgent(cfg.Fetch.UserAgent),
				ruleset.WithObserver(r.recorder.ObserveFetch),
			),
		}
	}
	return r, nil
}

// Config returns the configuration the runner was built with.
func (r *Runner) Config() config.Config {
	return r.cfg
}

// Ruleset returns the cached ruleset, or nil before the first load.
func (r *Runner) Ruleset() *ruleset.Ruleset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules
}

// ResetRuleset drops the cached ruleset so the next run reloads it.
func (r *Runner) ResetRuleset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = nil
	r.engine = nil
}

// Run validates a single identifier. A missing spec file is skipped without
// touching the validations tree.
func (r *Runner) Run(ctx context.Context, identifier string) (res Result) {
	start := time.Now()
	res = Result{Identifier: identifier, RunID: uuid.NewString()}
	logger := r.logger.With("runId", res.RunID, "identifier", identifier)

	defer func() {
		res.Duration = time.Since(start)
		r.observe(res)
	}()

	fail := func(stage Stage, err error) Result {
		res.Status = StatusFailed
		res.Stage = stage
		res.Err = err
		return res
	}

	triple, err := paths.Resolve(r.cfg.SpecsRoot, r.cfg.ValidationsRoot, identifier)
	if err != nil {
		logger.Errorw("invalid identifier", "error", err)
		return fail(StageResolve, err)
	}
	res.Paths = triple

	info, err := os.Stat(triple.Input)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnw("spec file does not exist", "path", triple.Input)
		res.Status = StatusSkipped
		return res
	}
	if err != nil {
		logger.Errorw("stat spec file", "path", triple.Input, "error", err)
		return fail(StageRead, fmt.Errorf("stat %s: %w", triple.Input, err))
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory", triple.Input)
		logger.Errorw("read spec file", "path", triple.Input, "error", err)
		return fail(StageRead, err)
	}

	raw, err := os.ReadFile(triple.Input)
	if err != nil {
		logger.Errorw("read spec file", "path", triple.Input, "error", err)
		return fail(StageRead, fmt.Errorf("read %s: %w", triple.Input, err))
	}
	doc := lint.NewDocument(string(raw), lint.ParserFor(triple.Input), identifier).WithSource(triple.Input)

	engine, err := r.loadRuleset(ctx)
	if err != nil {
		logger.Errorw("load ruleset", "ruleset", r.cfg.Ruleset, "error", err)
		return fail(StageRuleset, err)
	}

	diags, err := engine.Run(ctx, doc)
	if err != nil {
		logger.Errorw("lint spec", "error", err)
		return fail(StageLint, err)
	}
	res.Diagnostics = diags

	payload, err := report.Encode(identifier, diags, report.Options{
		Format:  r.format,
		Indent:  r.cfg.Output.Indent,
		Version: r.version,
	})
	if err != nil {
		logger.Errorw("encode diagnostics", "error", err)
		return fail(StageWrite, err)
	}
	if err := writeOutput(triple, payload); err != nil {
		logger.Errorw("write validation result", "path", triple.Output, "error", err)
		return fail(StageWrite, err)
	}

	logger.Infow("spec validated",
		"output", triple.Output,
		"diagnostics", len(diags),
		"errors", lint.CountBySeverity(diags)[lint.SeverityError],
	)
	res.Status = StatusSucceeded
	return res
}

// RunAll validates every yml, yaml and json file under the specs root using
// up to Concurrency workers. Results follow walk order.
func (r *Runner) RunAll(ctx context.Context) ([]Result, error) {
	ids, err := r.Discover()
	if err != nil {
		return nil, err
	}

	workers := r.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(ids))
	sem := make(chan struct{}, workers)
	wg := sync.WaitGroup{}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Identifier: id, Status: StatusFailed, Stage: StageCanceled, Err: err}
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, identifier string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = r.Run(ctx, identifier)
		}(i, id)
	}

	wg.Wait()
	return results, nil
}

// Discover lists the identifiers of every spec file under the specs root.
// Hidden directories and a validations root nested inside the specs root are
// not descended into.
func (r *Runner) Discover() ([]string, error) {
	root, err := filepath.Abs(r.cfg.SpecsRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve specs root: %w", err)
	}

	output, err := filepath.Abs(r.cfg.ValidationsRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve validations root: %w", err)
	}

	var ids []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || path == output) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSpecFile(path) {
			return nil
		}
		id, err := paths.Identifier(root, path)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk specs root: %w", err)
	}
	return ids, nil
}

// IsSpecFile reports whether path has an extension the runner lints.
func IsSpecFile(path string) bool {
	_, ok := specExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Runner) loadRuleset(ctx context.Context) (*lint.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		return r.engine, nil
	}

	rs, err := ruleset.Load(ctx, r.cfg.Ruleset, r.resources)
	if err != nil {
		return nil, fmt.Errorf("load ruleset %s: %w", r.cfg.Ruleset, err)
	}
	var opts []lint.Option
	if r.resources.Fetcher != nil {
		opts = append(opts, lint.WithFetcher(r.resources.Fetcher))
	}
	engine := lint.NewEngine(append(opts, r.engineOpts...)...)
	engine.SetRuleset(rs.Rules)

	r.logger.Debugw("ruleset loaded", "source", rs.Source, "rules", len(rs.Rules))
	r.rules = rs
	r.engine = engine
	return engine, nil
}

func (r *Runner) observe(res Result) {
	if r.recorder == nil {
		return
	}
	counts := make(map[string]int, 4)
	for sev, n := range lint.CountBySeverity(res.Diagnostics) {
		counts[sev.String()] = n
	}
	r.recorder.ObserveRun(string(res.Status), res.Duration, counts)
}

// writeOutput creates the output directory only when it is missing, then
// overwrites the result file.
func writeOutput(triple paths.Triple, payload []byte) error {
	if _, err := os.Stat(triple.OutputDir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(triple.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("stat output directory: %w", err)
	}
	if err := os.WriteFile(triple.Output, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", triple.Output, err)
	}
	return nil
}
