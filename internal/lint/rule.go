package lint

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Format identifies the specification family a document belongs to.
type Format string

const (
	FormatOAS2 Format = "oas2"
	FormatOAS3 Format = "oas3"
)

var bothFormats = []Format{FormatOAS2, FormatOAS3}

// RuleConfig maps rule names to the severity they report at. Rules that are
// absent or set to SeverityOff do not run.
type RuleConfig map[string]Severity

// Finding is a violation reported by a rule before severity is applied.
type Finding struct {
	Path    []string
	Message string
}

// Rule is a built-in check.
type Rule struct {
	Name        string
	Description string
	Severity    Severity
	Recommended bool
	Formats     []Format

	check func(*target) []Finding
}

// AppliesTo reports whether the rule runs against documents of format f.
func (r Rule) AppliesTo(f Format) bool {
	for _, candidate := range r.Formats {
		if candidate == f {
			return true
		}
	}
	return false
}

// target is everything a rule can inspect.
type target struct {
	doc    Document
	format Format
	tree   *tree
	// model is nil when the document could not be loaded or converted.
	model      *openapi3.T
	structural error
}

func (t *target) finding(message string, path ...string) Finding {
	if path == nil {
		path = []string{}
	}
	return Finding{Path: path, Message: message}
}

func catalog() []Rule {
	return []Rule{
		contactProperties,
		duplicatedEntryInEnum,
		infoContact,
		infoDescription,
		infoLicense,
		licenseURL,
		noEvalInMarkdown,
		noScriptTagsInMarkdown,
		oas2APIHost,
		oas2APISchemes,
		oas2Schema,
		oas3APIServers,
		oas3OperationSecurityDefined,
		oas3ParameterDescription,
		oas3Schema,
		oas3ServerNotExampleCom,
		oas3ServerTrailingSlash,
		oas3UnusedComponent,
		openapiTags,
		openapiTagsAlphabetical,
		operationDescription,
		operationOperationID,
		operationOperationIDUnique,
		operationOperationIDValidInURL,
		operationParameters,
		operationSingularTag,
		operationSuccessResponse,
		operationTagDefined,
		operationTags,
		pathDeclarationsMustExist,
		pathKeysNoTrailingSlash,
		pathNotIncludeQuery,
		pathParams,
		tagDescription,
		typedEnum,
	}
}

// Builtin returns the built-in rule catalog sorted by name.
func Builtin() []Rule {
	rules := catalog()
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// Lookup finds a built-in rule by name.
func Lookup(name string) (Rule, bool) {
	for _, r := range catalog() {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
