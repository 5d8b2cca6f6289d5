package lint

import (
	"strings"

	"gopkg.in/yaml.v3"
)

var noEvalInMarkdown = Rule{
	Name:        "no-eval-in-markdown",
	Description: "Markdown descriptions must not have \"eval(\".",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		return eachMarkdown(t, func(text string) bool {
			return strings.Contains(text, "eval(")
		}, "Markdown descriptions must not have \"eval(\".")
	},
}

var noScriptTagsInMarkdown = Rule{
	Name:        "no-script-tags-in-markdown",
	Description: "Markdown descriptions must not have \"<script>\" tags.",
	Severity:    SeverityWarn,
	Recommended: true,
	Formats:     bothFormats,
	check: func(t *target) []Finding {
		return eachMarkdown(t, func(text string) bool {
			return strings.Contains(strings.ToLower(text), "<script")
		}, "Markdown descriptions must not have \"<script>\" tags.")
	},
}

// eachMarkdown checks every scalar title or description in the document.
func eachMarkdown(t *target, violates func(string) bool, message string) []Finding {
	var out []Finding
	t.tree.walk(func(path []string, node *yaml.Node) {
		if len(path) == 0 || node.Kind != yaml.ScalarNode {
			return
		}
		if last := path[len(path)-1]; last != "description" && last != "title" {
			return
		}
		if violates(node.Value) {
			out = append(out, t.finding(message, path...))
		}
	})
	return out
}
