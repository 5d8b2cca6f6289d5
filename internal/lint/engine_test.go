package lint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

const petstore = `
openapi: 3.0.3
info:
  title: Petstore
  version: 1.0.0
  description: Pet store API.
  contact:
    name: API Team
    url: https://petstore.test/contact
    email: api@petstore.test
  license:
    name: MIT
    url: https://opensource.org/licenses/MIT
servers:
  - url: https://api.petstore.test/v1
tags:
  - name: pets
    description: Pet operations
paths:
  /pets:
    get:
      operationId: listPets
      description: List all pets.
      tags:
        - pets
      responses:
        '200':
          description: A list of pets.
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Pet'
  /pets/{petId}:
    get:
      operationId: showPetById
      description: Show a single pet.
      tags:
        - pets
      parameters:
        - name: petId
          in: path
          required: true
          description: The id of the pet.
          schema:
            type: string
      responses:
        '200':
          description: A pet.
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
components:
  schemas:
    Pet:
      type: object
      required:
        - id
      properties:
        id:
          type: integer
        status:
          type: string
          enum:
            - available
            - sold
`

func recommended() RuleConfig {
	cfg := RuleConfig{}
	for _, r := range Builtin() {
		if r.Recommended {
			cfg[r.Name] = r.Severity
		}
	}
	return cfg
}

func all() RuleConfig {
	cfg := RuleConfig{}
	for _, r := range Builtin() {
		cfg[r.Name] = r.Severity
	}
	return cfg
}

func run(t *testing.T, cfg RuleConfig, text string) []Diagnostic {
	t.Helper()
	engine := NewEngine()
	engine.SetRuleset(cfg)
	diags, err := engine.Run(context.Background(), NewDocument(text, ParserYAML, "orgA/petstore.yml"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return diags
}

func codes(diags []Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func find(diags []Diagnostic, code string) (Diagnostic, bool) {
	for _, d := range diags {
		if d.Code == code {
			return d, true
		}
	}
	return Diagnostic{}, false
}

func TestRunCleanDocumentHasNoDiagnostics(t *testing.T) {
	diags := run(t, recommended(), petstore)
	if diags == nil {
		t.Fatalf("expected non-nil slice")
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
}

func TestRunReportsMissingContactWithRange(t *testing.T) {
	doc := strings.Replace(petstore, `  contact:
    name: API Team
    url: https://petstore.test/contact
    email: api@petstore.test
`, "", 1)

	diags := run(t, recommended(), doc)
	d, ok := find(diags, "info-contact")
	if !ok {
		t.Fatalf("expected info-contact, got %v", codes(diags))
	}
	if d.Severity != SeverityWarn {
		t.Fatalf("unexpected severity: %v", d.Severity)
	}
	if !reflect.DeepEqual(d.Path, []string{"info"}) {
		t.Fatalf("unexpected path: %v", d.Path)
	}
	if d.Range.Start.Line != 1 || d.Range.Start.Character != 0 {
		t.Fatalf("unexpected range start: %+v", d.Range.Start)
	}
	if d.Source != "orgA/petstore.yml" {
		t.Fatalf("unexpected source: %s", d.Source)
	}
}

func TestRunAppliesSeverityOverride(t *testing.T) {
	doc := strings.Replace(petstore, "      operationId: showPetById\n", "      operationId: listPets\n", 1)

	cfg := RuleConfig{
		"operation-operationId-unique": SeverityHint,
		"info-contact":                 SeverityOff,
	}
	diags := run(t, cfg, doc)
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %v", diags)
	}
	d := diags[0]
	if d.Code != "operation-operationId-unique" || d.Severity != SeverityHint {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
	want := []string{"paths", "/pets/{petId}", "get", "operationId"}
	if !reflect.DeepEqual(d.Path, want) {
		t.Fatalf("unexpected path: %v", d.Path)
	}
}

func TestRunParserError(t *testing.T) {
	diags := run(t, recommended(), "openapi: 3.0.3\ninfo: [unclosed\n")
	if len(diags) != 1 || diags[0].Code != "parser" || diags[0].Severity != SeverityError {
		t.Fatalf("expected single parser error, got %v", diags)
	}
}

func TestRunUnrecognizedFormat(t *testing.T) {
	diags := run(t, recommended(), "name: not an api\n")
	if len(diags) != 1 || diags[0].Code != "unrecognized-format" {
		t.Fatalf("expected unrecognized-format, got %v", diags)
	}
}

func TestRunWithoutRuleset(t *testing.T) {
	_, err := NewEngine().Run(context.Background(), NewDocument(petstore, ParserYAML, "x.yml"))
	if !errors.Is(err, ErrNoRuleset) {
		t.Fatalf("expected ErrNoRuleset, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	engine := NewEngine()
	engine.SetRuleset(recommended())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Run(ctx, NewDocument(petstore, ParserYAML, "x.yml")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunStructuralErrors(t *testing.T) {
	doc := "openapi: 3.0.3\npaths: {}\n"
	diags := run(t, recommended(), doc)
	if _, ok := find(diags, "oas3-schema"); !ok {
		t.Fatalf("expected oas3-schema diagnostic, got %v", codes(diags))
	}
}

func remoteRefDocument(url string) string {
	return strings.Replace(petstore, "                $ref: '#/components/schemas/Pet'\n", "                $ref: '"+url+"/pet.yaml'\n", 1)
}

func TestRunCancelsSlowRemoteRef(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	engine := NewEngine()
	engine.SetRuleset(recommended())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := engine.Run(ctx, NewDocument(remoteRefDocument(srv.URL), ParserYAML, "orgA/petstore.yml"))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Run ignored the context deadline, took %s", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

type recordingFetcher struct {
	mu   sync.Mutex
	urls []string
}

func (f *recordingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return []byte("type: object\nproperties:\n  id:\n    type: integer\n"), nil
}

func TestRunFetchesRemoteRefsThroughFetcher(t *testing.T) {
	fetcher := &recordingFetcher{}
	engine := NewEngine(WithFetcher(fetcher))
	engine.SetRuleset(RuleConfig{"oas3-schema": SeverityError})

	diags, err := engine.Run(context.Background(), NewDocument(remoteRefDocument("https://schemas.example.test"), ParserYAML, "orgA/petstore.yml"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected remote ref to resolve cleanly, got %v", diags)
	}
	if len(fetcher.urls) == 0 || fetcher.urls[0] != "https://schemas.example.test/pet.yaml" {
		t.Fatalf("unexpected fetches: %v", fetcher.urls)
	}
}

func TestRunPathParams(t *testing.T) {
	doc := strings.Replace(petstore, `      parameters:
        - name: petId
          in: path
          required: true
          description: The id of the pet.
          schema:
            type: string
`, "", 1)

	diags := run(t, RuleConfig{"path-params": SeverityError}, doc)
	d, ok := find(diags, "path-params")
	if !ok {
		t.Fatalf("expected path-params, got %v", diags)
	}
	if !strings.Contains(d.Message, "{petId}") {
		t.Fatalf("unexpected message: %s", d.Message)
	}
	if !reflect.DeepEqual(d.Path, []string{"paths", "/pets/{petId}", "get"}) {
		t.Fatalf("unexpected path: %v", d.Path)
	}
}

func TestRunSchemaRules(t *testing.T) {
	doc := strings.Replace(petstore, `            - available
            - sold
`, `            - available
            - 1
            - available
`, 1)
	doc = strings.Replace(doc, "components:\n  schemas:\n", "components:\n  schemas:\n    Orphan:\n      type: string\n", 1)

	diags := run(t, recommended(), doc)

	typed, ok := find(diags, "typed-enum")
	if !ok {
		t.Fatalf("expected typed-enum, got %v", codes(diags))
	}
	wantTyped := []string{"components", "schemas", "Pet", "properties", "status", "enum", "1"}
	if !reflect.DeepEqual(typed.Path, wantTyped) {
		t.Fatalf("unexpected typed-enum path: %v", typed.Path)
	}

	if _, ok := find(diags, "duplicated-entry-in-enum"); !ok {
		t.Fatalf("expected duplicated-entry-in-enum, got %v", codes(diags))
	}

	unused, ok := find(diags, "oas3-unused-component")
	if !ok {
		t.Fatalf("expected oas3-unused-component, got %v", codes(diags))
	}
	if !reflect.DeepEqual(unused.Path, []string{"components", "schemas", "Orphan"}) {
		t.Fatalf("unexpected unused path: %v", unused.Path)
	}
}

func TestRunOptInRules(t *testing.T) {
	doc := strings.Replace(petstore, "  - url: https://api.petstore.test/v1\n", "  - url: https://example.com/\n", 1)

	diags := run(t, all(), doc)
	for _, code := range []string{"oas3-server-not-example.com", "oas3-server-trailing-slash"} {
		if _, ok := find(diags, code); !ok {
			t.Fatalf("expected %s, got %v", code, codes(diags))
		}
	}
}

func TestRunSwagger2(t *testing.T) {
	doc := `
swagger: "2.0"
info:
  title: Legacy
  version: "1.0"
paths:
  /items:
    get:
      operationId: listItems
      responses:
        "200":
          description: ok
`
	diags := run(t, recommended(), doc)
	if _, ok := find(diags, "oas2-api-host"); !ok {
		t.Fatalf("expected oas2-api-host, got %v", codes(diags))
	}
	if _, ok := find(diags, "oas3-api-servers"); ok {
		t.Fatalf("oas3 rule ran against swagger document")
	}
	if _, ok := find(diags, "operation-tags"); !ok {
		t.Fatalf("expected operation-tags, got %v", codes(diags))
	}
}

func TestRunIsDeterministic(t *testing.T) {
	doc := strings.Replace(petstore, "      description: List all pets.\n", "", 1)
	first := run(t, all(), doc)
	second := run(t, all(), doc)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("diagnostics differ between runs")
	}
}

func TestMarkdownRules(t *testing.T) {
	doc := strings.Replace(petstore, "  description: Pet store API.\n", "  description: \"<script>alert(1)</script> eval(x)\"\n", 1)
	diags := run(t, recommended(), doc)
	for _, code := range []string{"no-eval-in-markdown", "no-script-tags-in-markdown"} {
		d, ok := find(diags, code)
		if !ok {
			t.Fatalf("expected %s, got %v", code, codes(diags))
		}
		if !reflect.DeepEqual(d.Path, []string{"info", "description"}) {
			t.Fatalf("unexpected path for %s: %v", code, d.Path)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{
		"error": SeverityError,
		"WARN":  SeverityWarn,
		"info":  SeverityInfo,
		"hint":  SeverityHint,
		"off":   SeverityOff,
	}
	for in, want := range tests {
		got, err := ParseSeverity(in)
		if err != nil || got != want {
			t.Errorf("ParseSeverity(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}

func TestLookup(t *testing.T) {
	rule, ok := Lookup("info-contact")
	if !ok || !rule.Recommended || !rule.AppliesTo(FormatOAS2) {
		t.Fatalf("unexpected lookup result: %+v %v", rule, ok)
	}
	if _, ok := Lookup("no-such-rule"); ok {
		t.Fatalf("expected unknown rule lookup to fail")
	}
}
