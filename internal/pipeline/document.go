// Package pipeline loads v3 pipeline configuration documents into a
// position-aware tree. It does not interpret the document; the validate
// package does.
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Document is one parsed pipeline configuration.
type Document struct {
	Source string // file path or caller-supplied name
	Raw    []byte // original text, kept for the lint pass
	root   Value
}

// Root returns the top-level mapping.
func (d *Document) Root() Value { return d.root }

// Field is shorthand for Root().Get(key).
func (d *Document) Field(key string) (Value, bool) { return d.root.Get(key) }

// Tag returns settings.tag when it is a string, or "".
func (d *Document) Tag() string {
	settings, _ := d.Field("settings")
	tag, _ := settings.Get("tag")
	s, _ := tag.Str()
	return s
}

// Load reads and parses the file at path.
// I/O failures are returned as plain errors; syntax failures as *ParseError.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return Parse(path, data)
}

// ParseReader reads r fully and parses it.
func ParseReader(name string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return Parse(name, data)
}

// Parse builds a Document from raw YAML text. Only the first document of a
// multi-document stream is used.
func Parse(name string, data []byte) (*Document, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &ParseError{Source: name, Msg: "document is empty"}
		}
		return nil, yamlParseError(name, err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Source: name, Msg: "document is empty"}
	}
	root := wrap(doc.Content[0])
	if root.IsNull() {
		return nil, &ParseError{Source: name, Line: root.Line(), Msg: "document is empty"}
	}
	if !root.IsMap() {
		return nil, &ParseError{
			Source: name,
			Line:   root.Line(),
			Column: root.Column(),
			Msg:    fmt.Sprintf("document root must be a mapping, got %s", root.Describe()),
		}
	}

	return &Document{Source: name, Raw: data, root: root}, nil
}

var yamlLineRe = regexp.MustCompile(`^yaml: line (\d+): (.*)$`)

func yamlParseError(name string, err error) *ParseError {
	pe := &ParseError{Source: name, Msg: err.Error(), Err: err}
	if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
		pe.Msg = m[2]
	}
	return pe
}
