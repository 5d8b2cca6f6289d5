package lint

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var componentKinds = []string{
	"callbacks",
	"examples",
	"headers",
	"links",
	"parameters",
	"requestBodies",
	"responses",
	"schemas",
}

var oas3UnusedComponent = Rule{
	Name:        "oas3-unused-component",
	Description: "Potentially unused component has been detected.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     []Format{FormatOAS3},
	check: func(t *target) []Finding {
		components := mapping(t.tree.get("components"))
		if components == nil {
			return nil
		}

		used := localComponentRefs(t.tree)
		var out []Finding
		for _, kind := range componentKinds {
			entries := mapping(field(components, kind))
			if entries == nil {
				continue
			}
			names := make([]string, 0, len(entries.Content)/2)
			for i := 0; i < len(entries.Content); i += 2 {
				names = append(names, entries.Content[i].Value)
			}
			sort.Strings(names)
			for _, name := range names {
				if _, ok := used[kind+"/"+name]; !ok {
					out = append(out, t.finding("Potentially unused component has been detected.", "components", kind, name))
				}
			}
		}
		return out
	},
}

// localComponentRefs collects "<kind>/<name>" for every local $ref into components.
func localComponentRefs(tr *tree) map[string]struct{} {
	used := make(map[string]struct{})
	tr.walk(func(path []string, node *yaml.Node) {
		if len(path) == 0 || path[len(path)-1] != "$ref" || node.Kind != yaml.ScalarNode {
			return
		}
		ref := node.Value
		if !strings.HasPrefix(ref, "#/components/") {
			return
		}
		segments := strings.Split(strings.TrimPrefix(ref, "#/components/"), "/")
		if len(segments) < 2 {
			return
		}
		used[segments[0]+"/"+unescapePointer(segments[1])] = struct{}{}
	})
	return used
}

func unescapePointer(segment string) string {
	segment = strings.ReplaceAll(segment, "~1", "/")
	return strings.ReplaceAll(segment, "~0", "~")
}
