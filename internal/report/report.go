// Package report serialises lint diagnostics for the validations tree.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/theroutercompany/spec_validator/internal/lint"
)

// Format names an output encoding.
type Format string

const (
	// FormatJSON is the Spectral-compatible diagnostics array.
	FormatJSON Format = "json"
	// FormatSARIF is a SARIF 2.1.0 log with one run.
	FormatSARIF Format = "sarif"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatSARIF:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", name)
	}
}

// Options tune encoding.
type Options struct {
	Format Format
	Indent bool
	// Tool identifies the producer in SARIF output.
	Tool    string
	Version string
}

// Encode renders diags for the document named source.
func Encode(source string, diags []lint.Diagnostic, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, source, diags, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders diags to w.
func Write(w io.Writer, source string, diags []lint.Diagnostic, opts Options) error {
	if diags == nil {
		diags = []lint.Diagnostic{}
	}

	var payload any
	switch opts.Format {
	case FormatJSON, "":
		payload = diags
	case FormatSARIF:
		payload = toSARIF(source, diags, opts)
	default:
		return fmt.Errorf("unsupported report format %q", opts.Format)
	}

	var (
		raw []byte
		err error
	)
	if opts.Indent {
		raw, err = json.MarshalIndent(payload, "", "  ")
	} else {
		raw, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	_, err = w.Write(raw)
	return err
}
