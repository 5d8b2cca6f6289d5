package lint

import "strings"

var pathKeysNoTrailingSlash = Rule{
	Name:        "path-keys-no-trailing-slash",
	Description: "Path must not end with slash.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		return eachPathKey(t, func(p string) bool {
			return p != "/" && strings.HasSuffix(p, "/")
		}, "Path must not end with slash.")
	},
}

var pathNotIncludeQuery = Rule{
	Name:        "path-not-include-query",
	Description: "Path must not include query string.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		return eachPathKey(t, func(p string) bool {
			return strings.Contains(p, "?")
		}, "Path must not include query string.")
	},
}

var pathDeclarationsMustExist = Rule{
	Name:        "path-declarations-must-exist",
	Description: "Path parameter declarations must not be empty, ex.\"/given/{}\" is invalid.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		return eachPathKey(t, func(p string) bool {
			return strings.Contains(p, "{}")
		}, "Path parameter declarations must not be empty, ex.\"/given/{}\" is invalid.")
	},
}

func eachPathKey(t *target, violates func(string) bool, message string) []Finding {
	paths := mapping(t.tree.get("paths"))
	if paths == nil {
		return nil
	}
	var out []Finding
	for i := 0; i < len(paths.Content); i += 2 {
		if p := paths.Content[i].Value; violates(p) {
			out = append(out, t.finding(message, "paths", p))
		}
	}
	return out
}
