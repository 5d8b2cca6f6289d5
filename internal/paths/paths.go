// Package paths derives the input and output locations for one spec identifier.
package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// OutputExt is the extension given to every validation result file.
const OutputExt = ".json"

// ErrInvalidIdentifier reports an identifier that cannot name a file under the specs root.
var ErrInvalidIdentifier = errors.New("invalid spec identifier")

// Triple holds the absolute locations derived from a single identifier.
type Triple struct {
	Identifier string
	Input      string
	Output     string
	OutputDir  string
}

// Resolve maps identifier (a slash separated path relative to specsRoot) onto
// the spec file and its mirrored result file under validationsRoot.
func Resolve(specsRoot, validationsRoot, identifier string) (Triple, error) {
	rel, err := clean(identifier)
	if err != nil {
		return Triple{}, err
	}

	specsAbs, err := filepath.Abs(specsRoot)
	if err != nil {
		return Triple{}, fmt.Errorf("resolve specs root: %w", err)
	}
	validationsAbs, err := filepath.Abs(validationsRoot)
	if err != nil {
		return Triple{}, fmt.Errorf("resolve validations root: %w", err)
	}

	output := filepath.Join(validationsAbs, OutputName(rel))
	return Triple{
		Identifier: identifier,
		Input:      filepath.Join(specsAbs, rel),
		Output:     output,
		OutputDir:  filepath.Dir(output),
	}, nil
}

// OutputName swaps the extension of rel for OutputExt.
func OutputName(rel string) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + OutputExt
}

// Identifier converts an absolute spec path back into the identifier that
// Resolve would accept. It fails when path lies outside specsRoot.
func Identifier(specsRoot, path string) (string, error) {
	specsAbs, err := filepath.Abs(specsRoot)
	if err != nil {
		return "", fmt.Errorf("resolve specs root: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve spec path: %w", err)
	}
	rel, err := filepath.Rel(specsAbs, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidIdentifier, path)
	}
	if _, err := clean(filepath.ToSlash(rel)); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func clean(identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if filepath.IsAbs(trimmed) || strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidIdentifier, identifier)
	}

	rel := filepath.Clean(filepath.FromSlash(trimmed))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the specs root", ErrInvalidIdentifier, identifier)
	}
	return rel, nil
}

// Within reports whether path is root or lies beneath it. Both must be
// absolute and clean.
func Within(root, path string) bool {
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
