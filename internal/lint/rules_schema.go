package lint

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

var duplicatedEntryInEnum = Rule{
	Name:        "duplicated-entry-in-enum",
	Description: "Enum values must not have duplicate entry.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		eachEnum(t, func(path []string, schema, enum *yaml.Node) {
			seen := make(map[string]int)
			for i, item := range enum.Content {
				value, ok := scalar(item)
				if !ok {
					continue
				}
				key := deref(item).Tag + "\x00" + value
				if first, dup := seen[key]; dup {
					out = append(out, t.finding(
						fmt.Sprintf("A duplicated entry in the enum was found. Error: must NOT have duplicate items (items ## %d and %d are identical)", first, i),
						extend(path, "enum")...,
					))
					continue
				}
				seen[key] = i
			}
		})
		return out
	},
}

// yaml tags accepted for each JSON schema type
var enumTags = map[string][]string{
	"string":  {"!!str"},
	"integer": {"!!int"},
	"number":  {"!!int", "!!float"},
	"boolean": {"!!bool"},
}

var typedEnum = Rule{
	Name:        "typed-enum",
	Description: "Enum values must respect the specified type.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		var out []Finding
		eachEnum(t, func(path []string, schema, enum *yaml.Node) {
			typ, ok := scalar(field(schema, "type"))
			if !ok {
				return
			}
			allowed, known := enumTags[typ]
			if !known {
				return
			}
			for i, item := range enum.Content {
				item = deref(item)
				if item.Kind != yaml.ScalarNode || item.Tag == "!!null" {
					continue
				}
				if !containsTag(allowed, item.Tag) {
					out = append(out, t.finding(
						fmt.Sprintf("Enum value %q must be %q.", item.Value, typ),
						extend(path, "enum", strconv.Itoa(i))...,
					))
				}
			}
		})
		return out
	},
}

// eachEnum visits mappings that carry an enum sequence.
func eachEnum(t *target, fn func(path []string, schema, enum *yaml.Node)) {
	t.tree.walk(func(path []string, node *yaml.Node) {
		if node.Kind != yaml.MappingNode {
			return
		}
		if enum := sequence(field(node, "enum")); enum != nil {
			fn(path, node, enum)
		}
	})
}

func containsTag(tags []string, tag string) bool {
	for _, candidate := range tags {
		if candidate == tag {
			return true
		}
	}
	return false
}
