package lint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	sigsyaml "sigs.k8s.io/yaml"
)

var oas3Schema = Rule{
	Name:        "oas3-schema",
	Description: "Validate structure of OpenAPI v3 specification.",
	Severity:    SeverityError,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check:       structuralFinding,
}

var oas2Schema = Rule{
	Name:        "oas2-schema",
	Description: "Validate structure of OpenAPI v2 specification.",
	Severity:    SeverityError,
	Recommended: true,
	Formats:     []Format{FormatOAS2},
	check:       structuralFinding,
}

func structuralFinding(t *target) []Finding {
	if t.structural == nil {
		return nil
	}
	msg := strings.TrimSpace(t.structural.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	return []Finding{t.finding(msg)}
}

// detectFormat inspects the top-level version marker.
func detectFormat(tr *tree) (Format, bool) {
	if v, ok := scalar(tr.get("openapi")); ok && strings.HasPrefix(v, "3.") {
		return FormatOAS3, true
	}
	if v, ok := scalar(tr.get("swagger")); ok && v == "2.0" {
		return FormatOAS2, true
	}
	return "", false
}

// loadModel builds the typed OpenAPI 3 model used by rules that need
// resolved references. Load and validation errors are returned separately so
// the caller can still lint the raw tree.
func loadModel(ctx context.Context, doc Document, format Format, fetcher Fetcher) (*openapi3.T, error) {
	switch format {
	case FormatOAS3:
		return loadOAS3(ctx, doc, fetcher)
	case FormatOAS2:
		return loadOAS2(ctx, doc)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func loadOAS3(ctx context.Context, doc Document, fetcher Fetcher) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx
	loader.ReadFromURIFunc = openapi3.URIMapCache(openapi3.ReadFromURIs(readFromFetcher(fetcher), openapi3.ReadFromFile))

	var (
		model *openapi3.T
		err   error
	)
	if doc.Source != "" {
		location := &url.URL{Path: filepath.ToSlash(doc.Source)}
		model, err = loader.LoadFromDataWithPath([]byte(doc.Text), location)
	} else {
		model, err = loader.LoadFromData([]byte(doc.Text))
	}
	if err != nil {
		return nil, err
	}
	if err := model.Validate(ctx); err != nil {
		return model, err
	}
	return model, nil
}

func loadOAS2(ctx context.Context, doc Document) (*openapi3.T, error) {
	raw, err := sigsyaml.YAMLToJSON([]byte(doc.Text))
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(raw, &v2); err != nil {
		return nil, err
	}
	model, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(ctx); err != nil {
		return model, err
	}
	return model, nil
}

// readFromFetcher adapts fetcher to kin-openapi's reader chain. The loader's
// context is read per call so cancellation reaches in-flight $ref fetches.
func readFromFetcher(fetcher Fetcher) openapi3.ReadFromURIFunc {
	return func(loader *openapi3.Loader, location *url.URL) ([]byte, error) {
		if location.Host == "" || (location.Scheme != "http" && location.Scheme != "https") {
			return nil, openapi3.ErrURINotSupported
		}
		ctx := loader.Context
		if ctx == nil {
			ctx = context.Background()
		}
		return fetcher.Fetch(ctx, location.String())
	}
}

const defaultRefTimeout = 10 * time.Second

var defaultFetcher Fetcher = httpRefFetcher{client: &http.Client{Timeout: defaultRefTimeout}}

// httpRefFetcher is used when no fetcher is configured.
type httpRefFetcher struct {
	client *http.Client
}

func (f httpRefFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
