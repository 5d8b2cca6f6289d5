package lint

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

var operationOperationID = Rule{
	Name:        "operation-operationId",
	Description: "Operation must have \"operationId\".",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range t.tree.operations() {
			if !truthy(field(op.node, "operationId")) {
				out = append(out, t.finding("Operation must have \"operationId\".", op.at()...))
			}
		}
		return out
	},
}

var operationOperationIDUnique = Rule{
	Name:        "operation-operationId-unique",
	Description: "Every operation must have unique \"operationId\".",
	Severity:    SeverityError,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		seen := make(map[string]struct{})
		var out []Finding
		for _, op := range t.tree.operations() {
			id, ok := scalar(field(op.node, "operationId"))
			if !ok || id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				out = append(out, t.finding("Every operation must have unique \"operationId\".", op.at("operationId")...))
				continue
			}
			seen[id] = struct{}{}
		}
		return out
	},
}

var urlSafeOperationID = regexp.MustCompile(`^[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=]*$`)

var operationOperationIDValidInURL = Rule{
	Name:        "operation-operationId-valid-in-url",
	Description: "operationId must not contain characters that are invalid when used in URL.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range t.tree.operations() {
			id, ok := scalar(field(op.node, "operationId"))
			if ok && !urlSafeOperationID.MatchString(id) {
				out = append(out, t.finding("operationId must not contain characters that are invalid when used in URL.", op.at("operationId")...))
			}
		}
		return out
	},
}

var operationDescription = Rule{
	Name:        "operation-description",
	Description: "Operation \"description\" must be present and non-empty string.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range t.tree.operations() {
			desc := field(op.node, "description")
			switch {
			case desc == nil:
				out = append(out, t.finding("Operation \"description\" must be present and non-empty string.", op.at()...))
			case !truthy(desc):
				out = append(out, t.finding("Operation \"description\" must be present and non-empty string.", op.at("description")...))
			}
		}
		return out
	},
}

var operationTags = Rule{
	Name:        "operation-tags",
	Description: "Operation must have non-empty \"tags\" array.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range t.tree.operations() {
			tags := field(op.node, "tags")
			switch {
			case tags == nil:
				out = append(out, t.finding("Operation must have non-empty \"tags\" array.", op.at()...))
			case sequence(tags) == nil || len(sequence(tags).Content) == 0:
				out = append(out, t.finding("Operation must have non-empty \"tags\" array.", op.at("tags")...))
			}
		}
		return out
	},
}

var operationSingularTag = Rule{
	Name:        "operation-singular-tag",
	Description: "Operation must not have more than a single tag.",
	Severity:    SeverityWarn,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range t.tree.operations() {
			if seq := sequence(field(op.node, "tags")); seq != nil && len(seq.Content) > 1 {
				out = append(out, t.finding("Operation must not have more than a single tag.", op.at("tags")...))
			}
		}
		return out
	},
}

var operationTagDefined = Rule{
	Name:        "operation-tag-defined",
	Description: "Operation tags must be defined in global tags.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		defined := make(map[string]struct{})
		if seq := sequence(t.tree.get("tags")); seq != nil {
			for _, tag := range seq.Content {
				if name, ok := scalar(field(tag, "name")); ok {
					defined[name] = struct{}{}
				}
			}
		}
		var out []Finding
		for _, op := range t.tree.operations() {
			seq := sequence(field(op.node, "tags"))
			if seq == nil {
				continue
			}
			for i, tag := range seq.Content {
				name, ok := scalar(tag)
				if !ok {
					continue
				}
				if _, found := defined[name]; !found {
					out = append(out, t.finding(fmt.Sprintf("Operation tags must be defined in global tags (%q is not).", name), op.at("tags", strconv.Itoa(i))...))
				}
			}
		}
		return out
	},
}

var operationSuccessResponse = Rule{
	Name:        "operation-success-response",
	Description: "Operation must have at least one \"2xx\" or \"3xx\" response.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range t.tree.operations() {
			responses := mapping(field(op.node, "responses"))
			if responses == nil {
				continue
			}
			ok := false
			for i := 0; i < len(responses.Content); i += 2 {
				code := responses.Content[i].Value
				if strings.HasPrefix(code, "2") || strings.HasPrefix(code, "3") {
					ok = true
					break
				}
			}
			if !ok {
				out = append(out, t.finding("Operation must have at least one \"2xx\" or \"3xx\" response.", op.at("responses")...))
			}
		}
		return out
	},
}

var operationParameters = Rule{
	Name:        "operation-parameters",
	Description: "Operation parameters are unique and non-repeating.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		var out []Finding
		for _, op := range modelOperations(t.model) {
			seen := make(map[string]struct{})
			for i, ref := range op.operation.Parameters {
				if ref == nil || ref.Value == nil {
					continue
				}
				key := ref.Value.In + "\x00" + ref.Value.Name
				if _, dup := seen[key]; dup {
					out = append(out, t.finding(
						"A parameter in this operation already exposes the same combination of \"name\" and \"in\" values.",
						"paths", op.path, op.method, "parameters", strconv.Itoa(i),
					))
					continue
				}
				seen[key] = struct{}{}
			}
		}
		return out
	},
}

var pathParams = Rule{
	Name:        "path-params",
	Description: "Path parameters must be defined and valid.",
	Severity:    SeverityError,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		if t.model == nil || t.model.Paths == nil {
			return nil
		}
		var out []Finding

		normalized := make(map[string]string)
		for _, p := range sortedPaths(t.model) {
			key := templateVar.ReplaceAllString(p, "{}")
			if other, ok := normalized[key]; ok {
				out = append(out, t.finding(fmt.Sprintf("Paths %q and %q must not be equivalent.", other, p), "paths", p))
			} else {
				normalized[key] = p
			}
		}

		for _, op := range modelOperations(t.model) {
			expected := templateVars(op.path)
			declared := make(map[string]struct{})

			check := func(params openapi3.Parameters, base ...string) {
				for i, ref := range params {
					if ref == nil || ref.Value == nil || ref.Value.In != openapi3.ParameterInPath {
						continue
					}
					declared[ref.Value.Name] = struct{}{}
					if _, ok := expected[ref.Value.Name]; !ok {
						out = append(out, t.finding(
							fmt.Sprintf("Parameter %q must be used in path %q.", ref.Value.Name, op.path),
							append(base, "parameters", strconv.Itoa(i))...,
						))
					}
				}
			}
			// path-level parameters are reported once per operation that inherits them
			check(op.item.Parameters, "paths", op.path)
			check(op.operation.Parameters, "paths", op.path, op.method)

			names := make([]string, 0, len(expected))
			for name := range expected {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if _, ok := declared[name]; !ok {
					out = append(out, t.finding(
						fmt.Sprintf("Operation must define parameter \"{%s}\" as expected by path %q.", name, op.path),
						"paths", op.path, op.method,
					))
				}
			}
		}
		return dedupe(out)
	},
}

var oas3ParameterDescription = Rule{
	Name:        "oas3-parameter-description",
	Description: "Parameter objects must have \"description\".",
	Severity:    SeverityWarn,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		if t.model == nil {
			return nil
		}
		var out []Finding
		report := func(params openapi3.Parameters, base ...string) {
			for i, ref := range params {
				if ref == nil || ref.Ref != "" || ref.Value == nil || ref.Value.Description != "" {
					continue
				}
				out = append(out, t.finding("Parameter objects must have \"description\".", append(base, "parameters", strconv.Itoa(i))...))
			}
		}
		for _, p := range sortedPaths(t.model) {
			item := t.model.Paths.Value(p)
			if item == nil {
				continue
			}
			report(item.Parameters, "paths", p)
		}
		for _, op := range modelOperations(t.model) {
			report(op.operation.Parameters, "paths", op.path, op.method)
		}
		if t.model.Components != nil {
			names := make([]string, 0, len(t.model.Components.Parameters))
			for name := range t.model.Components.Parameters {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				ref := t.model.Components.Parameters[name]
				if ref != nil && ref.Value != nil && ref.Ref == "" && ref.Value.Description == "" {
					out = append(out, t.finding("Parameter objects must have \"description\".", "components", "parameters", name))
				}
			}
		}
		return out
	},
}

var oas3OperationSecurityDefined = Rule{
	Name:        "oas3-operation-security-defined",
	Description: "Operation \"security\" values must match a scheme defined in the \"components.securitySchemes\" object.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		if t.model == nil {
			return nil
		}
		schemes := map[string]struct{}{}
		if t.model.Components != nil {
			for name := range t.model.Components.SecuritySchemes {
				schemes[name] = struct{}{}
			}
		}

		var out []Finding
		report := func(reqs openapi3.SecurityRequirements, base ...string) {
			for i, req := range reqs {
				names := make([]string, 0, len(req))
				for name := range req {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					if _, ok := schemes[name]; ok {
						continue
					}
					out = append(out, t.finding(
						fmt.Sprintf("API \"security\" values must match a scheme defined in the \"components.securitySchemes\" object (%q is not).", name),
						append(base, "security", strconv.Itoa(i), name)...,
					))
				}
			}
		}

		report(t.model.Security)
		for _, op := range modelOperations(t.model) {
			if op.operation.Security != nil {
				report(*op.operation.Security, "paths", op.path, op.method)
			}
		}
		return out
	},
}

var templateVar = regexp.MustCompile(`\{[^}]*\}`)

func templateVars(path string) map[string]struct{} {
	vars := make(map[string]struct{})
	for _, match := range templateVar.FindAllString(path, -1) {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "{"), "}")
		if name != "" {
			vars[name] = struct{}{}
		}
	}
	return vars
}

type modelOperation struct {
	path      string
	method    string
	item      *openapi3.PathItem
	operation *openapi3.Operation
}

func sortedPaths(model *openapi3.T) []string {
	if model == nil || model.Paths == nil {
		return nil
	}
	keys := make([]string, 0, model.Paths.Len())
	for p := range model.Paths.Map() {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys
}

func modelOperations(model *openapi3.T) []modelOperation {
	var ops []modelOperation
	for _, p := range sortedPaths(model) {
		item := model.Paths.Value(p)
		if item == nil {
			continue
		}
		operations := item.Operations()
		for _, method := range httpMethods {
			op := operations[strings.ToUpper(method)]
			if op == nil {
				continue
			}
			ops = append(ops, modelOperation{path: p, method: method, item: item, operation: op})
		}
	}
	return ops
}

func dedupe(findings []Finding) []Finding {
	seen := make(map[string]struct{}, len(findings))
	out := findings[:0]
	for _, f := range findings {
		key := strings.Join(f.Path, "\x00") + "\x01" + f.Message
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
