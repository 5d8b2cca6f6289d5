package lint

import (
	"path/filepath"
	"strings"
)

// Parser names the syntax a document is declared to be written in.
type Parser string

const (
	ParserYAML Parser = "yaml"
	ParserJSON Parser = "json"
)

// Document is a spec file handed to the engine. Text is already trimmed.
type Document struct {
	Text   string
	Parser Parser
	// Name is the logical name reported as each diagnostic's source.
	Name string
	// Source is the absolute location of the file, used to resolve relative
	// $ref targets. It may be empty.
	Source string
}

// NewDocument wraps raw file content, trimming surrounding whitespace.
func NewDocument(text string, parser Parser, name string) Document {
	if parser == "" {
		parser = ParserYAML
	}
	return Document{
		Text:   strings.TrimSpace(text),
		Parser: parser,
		Name:   name,
	}
}

// WithSource returns a copy of d that resolves relative references against path.
func (d Document) WithSource(path string) Document {
	d.Source = path
	return d
}

// ParserFor picks a parser from a file name; anything that is not .json is YAML.
func ParserFor(name string) Parser {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return ParserJSON
	}
	return ParserYAML
}
