package paths

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveMirrorsIdentifier(t *testing.T) {
	specs := t.TempDir()
	validations := t.TempDir()

	triple, err := Resolve(specs, validations, "orgA/petstore.yml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if triple.Input != filepath.Join(specs, "orgA", "petstore.yml") {
		t.Fatalf("unexpected input: %s", triple.Input)
	}
	if triple.Output != filepath.Join(validations, "orgA", "petstore.json") {
		t.Fatalf("unexpected output: %s", triple.Output)
	}
	if triple.OutputDir != filepath.Join(validations, "orgA") {
		t.Fatalf("unexpected output dir: %s", triple.OutputDir)
	}
	if triple.Identifier != "orgA/petstore.yml" {
		t.Fatalf("identifier not preserved: %s", triple.Identifier)
	}
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"vendorA/openapi.yml":       "vendorA/openapi.json",
		"vendorA/openapi.yaml":      "vendorA/openapi.json",
		"vendorA/openapi.json":      "vendorA/openapi.json",
		"vendorA/v1.2/openapi":      "vendorA/v1.2/openapi.json",
		"vendorA/nested/deep/a.yml": "vendorA/nested/deep/a.json",
	}
	for in, want := range tests {
		if got := OutputName(in); got != want {
			t.Errorf("OutputName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveNestedOutputDir(t *testing.T) {
	triple, err := Resolve("/specs", "/validations", "orgA/v2/openapi.yaml")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if triple.OutputDir != filepath.FromSlash("/validations/orgA/v2") {
		t.Fatalf("unexpected output dir: %s", triple.OutputDir)
	}
}

func TestResolveRejectsInvalidIdentifiers(t *testing.T) {
	for _, id := range []string{"", "   ", "/etc/passwd", "../outside.yml", "orgA/../../x.yml", "."} {
		if _, err := Resolve("/specs", "/validations", id); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Resolve(%q) expected ErrInvalidIdentifier, got %v", id, err)
		}
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	specs := t.TempDir()

	id, err := Identifier(specs, filepath.Join(specs, "orgB", "api.yaml"))
	if err != nil {
		t.Fatalf("Identifier: %v", err)
	}
	if id != "orgB/api.yaml" {
		t.Fatalf("unexpected identifier: %s", id)
	}

	if _, err := Identifier(specs, filepath.Join(filepath.Dir(specs), "elsewhere.yaml")); err == nil {
		t.Fatalf("expected error for path outside specs root")
	}
}

func TestWithin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "specs")
	tests := []struct {
		path string
		want bool
	}{
		{path: root, want: true},
		{path: filepath.Join(root, "validations"), want: true},
		{path: filepath.Join(root, "a", "b.json"), want: true},
		{path: filepath.Dir(root), want: false},
		{path: root + "-validations", want: false},
		{path: filepath.Join(filepath.Dir(root), "..specs"), want: false},
	}
	for _, tc := range tests {
		if got := Within(root, tc.path); got != tc.want {
			t.Errorf("Within(%s, %s) = %v, want %v", root, tc.path, got, tc.want)
		}
	}
}
