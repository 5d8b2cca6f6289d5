package lint

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// tree is the position-aware view of a document used to place diagnostics
// and to evaluate rules that only need raw structure.
type tree struct {
	root  *yaml.Node
	lines []string
}

func parseTree(text string) (*tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	t := &tree{lines: strings.Split(text, "\n")}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		t.root = doc.Content[0]
	}
	return t, nil
}

// get returns the value at path, or nil.
func (t *tree) get(path ...string) *yaml.Node {
	_, value, ok := t.lookup(path)
	if !ok {
		return nil
	}
	return value
}

// lookup walks path and returns the deepest key/value pair reached and
// whether the full path resolved.
func (t *tree) lookup(path []string) (key, value *yaml.Node, ok bool) {
	node := t.root
	if node == nil {
		return nil, nil, len(path) == 0
	}
	for _, segment := range path {
		node = deref(node)
		switch node.Kind {
		case yaml.MappingNode:
			k, v := mappingEntry(node, segment)
			if v == nil {
				return key, node, false
			}
			key, node = k, v
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node.Content) {
				return key, node, false
			}
			node = node.Content[idx]
			key = nil
		default:
			return key, node, false
		}
	}
	return key, node, true
}

// rangeOf places path in the source, falling back to the closest ancestor.
func (t *tree) rangeOf(path []string) Range {
	key, value, _ := t.lookup(path)
	if value == nil {
		return Range{}
	}
	start := value
	if key != nil {
		start = key
	}
	return Range{
		Start: Position{Line: start.Line - 1, Character: start.Column - 1},
		End:   t.endOf(value),
	}
}

// endOf finds where node ends in the source. yaml.v3 records only start
// positions, so quoted scalars and flow collections are measured from the text.
func (t *tree) endOf(node *yaml.Node) Position {
	switch node.Kind {
	case yaml.DocumentNode:
		if n := len(node.Content); n > 0 {
			return t.endOf(node.Content[n-1])
		}
	case yaml.MappingNode, yaml.SequenceNode:
		from := Position{Line: node.Line - 1, Character: node.Column}
		if n := len(node.Content); n > 0 {
			from = t.endOf(node.Content[n-1])
		}
		if node.Style&yaml.FlowStyle != 0 {
			if end, ok := t.closingBracket(from); ok {
				return end
			}
		}
		if len(node.Content) > 0 {
			return from
		}
		return Position{Line: node.Line - 1, Character: node.Column + 1}
	}
	return t.scalarEnd(node)
}

func (t *tree) scalarEnd(node *yaml.Node) Position {
	line, col := node.Line-1, node.Column-1
	switch {
	case node.Style&yaml.DoubleQuotedStyle != 0:
		if end, ok := t.closingQuote(line, col, '"'); ok {
			return end
		}
		return Position{Line: line, Character: col + len(strconv.Quote(node.Value))}
	case node.Style&yaml.SingleQuotedStyle != 0:
		if end, ok := t.closingQuote(line, col, '\''); ok {
			return end
		}
		return Position{Line: line, Character: col + len(node.Value) + 2 + strings.Count(node.Value, "'")}
	case node.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0:
		last := line + 1 + strings.Count(strings.TrimRight(node.Value, "\n"), "\n")
		if last < len(t.lines) {
			return Position{Line: last, Character: len(strings.TrimRight(t.lines[last], "\r"))}
		}
	}
	return Position{Line: line, Character: col + len(node.Value)}
}

// closingQuote scans a single-line quoted scalar starting at col.
func (t *tree) closingQuote(line, col int, quote byte) (Position, bool) {
	if line < 0 || line >= len(t.lines) {
		return Position{}, false
	}
	text := t.lines[line]
	if col >= len(text) || text[col] != quote {
		return Position{}, false
	}
	for i := col + 1; i < len(text); i++ {
		switch {
		case quote == '"' && text[i] == '\\':
			i++
		case text[i] == quote:
			if quote == '\'' && i+1 < len(text) && text[i+1] == '\'' {
				i++
				continue
			}
			return Position{Line: line, Character: i + 1}, true
		}
	}
	return Position{}, false
}

// closingBracket skips separators and comments after from and returns the
// position just past the bracket that closes a flow collection.
func (t *tree) closingBracket(from Position) (Position, bool) {
	for line := from.Line; line >= 0 && line < len(t.lines); line++ {
		text := t.lines[line]
		start := 0
		if line == from.Line {
			start = from.Character
		}
		for i := start; i < len(text); i++ {
			switch text[i] {
			case ' ', '\t', '\r', ',':
				continue
			case '}', ']':
				return Position{Line: line, Character: i + 1}, true
			case '#':
				i = len(text)
			default:
				return Position{}, false
			}
		}
	}
	return Position{}, false
}

// walk visits every node beneath the root with its path. Aliases are not followed.
func (t *tree) walk(fn func(path []string, node *yaml.Node)) {
	if t.root == nil {
		return
	}
	walkNode(nil, t.root, fn)
}

func walkNode(path []string, node *yaml.Node, fn func([]string, *yaml.Node)) {
	fn(path, node)
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			walkNode(extend(path, node.Content[i].Value), node.Content[i+1], fn)
		}
	case yaml.SequenceNode:
		for i, child := range node.Content {
			walkNode(extend(path, strconv.Itoa(i)), child, fn)
		}
	}
}

type treeOperation struct {
	path   string
	method string
	node   *yaml.Node
}

// operations lists path item operations in document order.
func (t *tree) operations() []treeOperation {
	paths := mapping(t.get("paths"))
	if paths == nil {
		return nil
	}
	var ops []treeOperation
	for i := 0; i+1 < len(paths.Content); i += 2 {
		item := mapping(paths.Content[i+1])
		if item == nil {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			method := item.Content[j].Value
			op := mapping(item.Content[j+1])
			if op == nil || !isHTTPMethod(method) {
				continue
			}
			ops = append(ops, treeOperation{path: paths.Content[i].Value, method: method, node: op})
		}
	}
	return ops
}

func (op treeOperation) at(rest ...string) []string {
	return append([]string{"paths", op.path, op.method}, rest...)
}

func isHTTPMethod(name string) bool {
	for _, m := range httpMethods {
		if m == name {
			return true
		}
	}
	return false
}

func mappingEntry(node *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i], node.Content[i+1]
		}
	}
	return nil, nil
}

// field returns the value under key when node is a mapping.
func field(node *yaml.Node, key string) *yaml.Node {
	node = mapping(node)
	if node == nil {
		return nil
	}
	_, v := mappingEntry(node, key)
	if v == nil {
		return nil
	}
	return deref(v)
}

func mapping(node *yaml.Node) *yaml.Node {
	node = deref(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}

func sequence(node *yaml.Node) *yaml.Node {
	node = deref(node)
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}
	return node
}

func scalar(node *yaml.Node) (string, bool) {
	node = deref(node)
	if node == nil || node.Kind != yaml.ScalarNode {
		return "", false
	}
	return node.Value, true
}

// truthy mirrors the JavaScript notion used by Spectral's truthy function.
func truthy(node *yaml.Node) bool {
	node = deref(node)
	if node == nil {
		return false
	}
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return false
		case "!!bool":
			return node.Value == "true"
		case "!!int", "!!float":
			f, err := strconv.ParseFloat(node.Value, 64)
			return err != nil || f != 0
		default:
			return node.Value != ""
		}
	default:
		return true
	}
}

func deref(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

func extend(path []string, segments ...string) []string {
	out := make([]string, 0, len(path)+len(segments))
	out = append(out, path...)
	return append(out, segments...)
}
