package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/theroutercompany/spec_validator/internal/paths"
	"github.com/theroutercompany/spec_validator/internal/validation"
)

type watchOptions struct {
	Runner    *validation.Runner
	Debounce  time.Duration
	Logger    *zap.SugaredLogger
	OnResults func([]validation.Result)
	// Ready is called once the initial pass is done and the watcher is armed.
	Ready func()
}

// watchSpecs validates everything once, then re-validates spec files as they
// are written. A change to a local ruleset file drops the cached ruleset and
// re-validates the whole tree. It returns when ctx is done.
func watchSpecs(ctx context.Context, opts watchOptions) error {
	cfg := opts.Runner.Config()
	specsRoot, err := filepath.Abs(cfg.SpecsRoot)
	if err != nil {
		return fmt.Errorf("resolve specs root: %w", err)
	}
	rulesetPath := ""
	if !strings.Contains(cfg.Ruleset, "://") {
		if rulesetPath, err = filepath.Abs(cfg.Ruleset); err != nil {
			return fmt.Errorf("resolve ruleset path: %w", err)
		}
	}
	outputRoot, err := filepath.Abs(cfg.ValidationsRoot)
	if err != nil {
		return fmt.Errorf("resolve validations root: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.OnResults == nil {
		opts.OnResults = func([]validation.Result) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if _, err := addTree(watcher, specsRoot, outputRoot); err != nil {
		return fmt.Errorf("watch specs root: %w", err)
	}
	if rulesetPath != "" {
		if err := watcher.Add(filepath.Dir(rulesetPath)); err != nil {
			return fmt.Errorf("watch ruleset directory: %w", err)
		}
	}

	results, err := opts.Runner.RunAll(ctx)
	if err != nil {
		return err
	}
	opts.OnResults(results)
	if opts.Ready != nil {
		opts.Ready()
	}

	pending := make(map[string]struct{})
	reloadRules := false
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(evt.Name)
			if err != nil {
				continue
			}
			switch {
			case name == rulesetPath:
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				reloadRules = true
			case paths.Within(outputRoot, name):
				continue
			case evt.Op&fsnotify.Create != 0 && isDir(name):
				// files copied in with the directory produce no events of their own
				found, err := addTree(watcher, name, outputRoot)
				if err != nil {
					opts.Logger.Warnw("watch new directory", "path", name, "error", err)
				}
				for _, file := range found {
					if id, err := paths.Identifier(specsRoot, file); err == nil {
						pending[id] = struct{}{}
					}
				}
				if len(found) == 0 {
					continue
				}
			case evt.Op&(fsnotify.Write|fsnotify.Create) != 0 && validation.IsSpecFile(name):
				id, err := paths.Identifier(specsRoot, name)
				if err != nil {
					continue
				}
				pending[id] = struct{}{}
			default:
				continue
			}
			debounce = time.After(opts.Debounce)
		case <-debounce:
			debounce = nil
			var batch []validation.Result
			if reloadRules {
				opts.Logger.Infow("ruleset changed, re-validating all specs", "ruleset", rulesetPath)
				opts.Runner.ResetRuleset()
				batch, err = opts.Runner.RunAll(ctx)
				if err != nil {
					opts.Logger.Errorw("re-validate specs", "error", err)
				}
			} else {
				ids := make([]string, 0, len(pending))
				for id := range pending {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					batch = append(batch, opts.Runner.Run(ctx, id))
				}
			}
			pending = make(map[string]struct{})
			reloadRules = false
			opts.OnResults(batch)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			opts.Logger.Warnw("spec watch error", "error", err)
		}
	}
}

// addTree watches root and every non-hidden directory below it except skip,
// and returns the spec files it found; fsnotify watches are not recursive.
func addTree(watcher *fsnotify.Watcher, root, skip string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if validation.IsSpecFile(path) {
				found = append(found, path)
			}
			return nil
		}
		if path == skip || (path != root && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	return found, err
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
