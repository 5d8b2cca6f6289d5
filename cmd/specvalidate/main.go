package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/theroutercompany/spec_validator/internal/config"
	"github.com/theroutercompany/spec_validator/internal/lint"
	"github.com/theroutercompany/spec_validator/internal/metrics"
	"github.com/theroutercompany/spec_validator/internal/validation"
	pkglog "github.com/theroutercompany/spec_validator/pkg/log"
)

var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	_ = pkglog.Sync()
	os.Exit(code)
}

// execute dispatches a subcommand and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "run"
	if len(args) > 0 {
		switch args[0] {
		case "run", "all", "watch", "rules", "version":
			command = args[0]
			args = args[1:]
		case "help", "-h", "--help":
			usage(stderr)
			return exitOK
		}
	}

	var err error
	switch command {
	case "run":
		err = runCommand(ctx, args, stdout, stderr)
	case "all":
		err = allCommand(ctx, args, stdout, stderr)
	case "watch":
		err = watchCommand(ctx, args, stdout, stderr)
	case "rules":
		err = rulesCommand(args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "specvalidate %s\n", version)
	}

	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(stderr, "specvalidate %s: %v\n", command, err)
		}
		return exitFailure
	}
	return exitOK
}

// errRunFailed signals a failed validation that has already been reported.
var errRunFailed = errors.New("validation failed")

type commonFlags struct {
	configPath      string
	specsRoot       string
	validationsRoot string
	ruleset         string
	format          string
	indent          bool
	logLevel        string
	metricsTextfile string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&f.specsRoot, "specs-root", "", "Directory containing the API specs")
	fs.StringVar(&f.validationsRoot, "validations-root", "", "Directory receiving validation results")
	fs.StringVar(&f.ruleset, "ruleset", "", "Ruleset file path or URL")
	fs.StringVar(&f.format, "format", "", "Output format (json or sarif)")
	fs.BoolVar(&f.indent, "indent", false, "Indent output files")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	return fs, f
}

// loadConfig layers command line flags over the loaded configuration.
func (f *commonFlags) loadConfig() (config.Config, error) {
	var opts []config.Option
	if strings.TrimSpace(f.configPath) != "" {
		opts = append(opts, config.WithRequiredPath(f.configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	if f.specsRoot != "" {
		cfg.SpecsRoot = f.specsRoot
	}
	if f.validationsRoot != "" {
		cfg.ValidationsRoot = f.validationsRoot
	}
	if f.ruleset != "" {
		cfg.Ruleset = f.ruleset
	}
	if f.format != "" {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(f.format))
	}
	if f.indent {
		cfg.Output.Indent = true
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.metricsTextfile != "" {
		cfg.Metrics.Textfile = f.metricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	if err := pkglog.SetLevel(cfg.Log.Level); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type session struct {
	runner   *validation.Runner
	registry *metrics.Registry
	textfile string
}

func newSession(cfg config.Config) (*session, error) {
	reg := metrics.NewRegistry()
	runner, err := validation.New(cfg,
		validation.WithRecorder(metrics.NewRecorder(reg)),
		validation.WithVersion(version),
	)
	if err != nil {
		return nil, err
	}
	return &session{runner: runner, registry: reg, textfile: cfg.Metrics.Textfile}, nil
}

func (s *session) flushMetrics() {
	if err := s.registry.WriteTextfile(s.textfile); err != nil {
		pkglog.Logger().Warnw("write metrics textfile", "path", s.textfile, "error", err)
	}
}

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("run", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		usage(stderr)
		return errors.New("exactly one spec identifier is required")
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.flushMetrics()

	res := s.runner.Run(ctx, fs.Arg(0))
	printResult(stdout, res)
	if res.Failed() {
		return errRunFailed
	}
	return nil
}

func allCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("all", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.flushMetrics()

	results, err := s.runner.RunAll(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		printResult(stdout, res)
	}
	summary := validation.Summarize(results)
	fmt.Fprintf(stdout, "%d succeeded, %d skipped, %d failed\n", summary.Succeeded, summary.Skipped, summary.Failed)
	if summary.Failed > 0 {
		return errRunFailed
	}
	return nil
}

func watchCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("watch", stderr)
	debounce := fs.Duration("debounce", 200*time.Millisecond, "Quiet period before re-validating changed files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}

	return watchSpecs(ctx, watchOptions{
		Runner:   s.runner,
		Debounce: *debounce,
		Logger:   pkglog.Logger(),
		OnResults: func(results []validation.Result) {
			for _, res := range results {
				printResult(stdout, res)
			}
			s.flushMetrics()
		},
	})
}

func rulesCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	fs.SetOutput(stderr)
	recommendedOnly := fs.Bool("recommended", false, "List only rules enabled by spectral:oas recommended")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rules := lint.Builtin()
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tSEVERITY\tRECOMMENDED\tFORMATS\tDESCRIPTION")
	for _, rule := range rules {
		if *recommendedOnly && !rule.Recommended {
			continue
		}
		formats := make([]string, 0, len(rule.Formats))
		for _, f := range rule.Formats {
			formats = append(formats, string(f))
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", rule.Name, rule.Severity, rule.Recommended, strings.Join(formats, ","), rule.Description)
	}
	return tw.Flush()
}

func printResult(w io.Writer, res validation.Result) {
	switch res.Status {
	case validation.StatusSucceeded:
		fmt.Fprintf(w, "ok       %s -> %s (%d diagnostics)\n", res.Identifier, res.Paths.Output, len(res.Diagnostics))
	case validation.StatusSkipped:
		fmt.Fprintf(w, "skipped  %s (not found: %s)\n", res.Identifier, res.Paths.Input)
	default:
		fmt.Fprintf(w, "failed   %s [%s]: %v\n", res.Identifier, res.Stage, res.Err)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: specvalidate [command] [options] [identifier]\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run      Validate one spec identifier (default)\n")
	fmt.Fprintf(w, "  all      Validate every spec under the specs root\n")
	fmt.Fprintf(w, "  watch    Re-validate specs as they change\n")
	fmt.Fprintf(w, "  rules    List the built-in rules\n")
	fmt.Fprintf(w, "  version  Print the version\n")
}
