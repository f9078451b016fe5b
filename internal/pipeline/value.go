package pipeline

import (
	"gopkg.in/yaml.v3"
)

// Value is a read-only view over one node of the parsed YAML tree.
// The zero Value represents an absent field.
type Value struct {
	node *yaml.Node
}

func wrap(n *yaml.Node) Value {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return Value{node: n}
}

// Exists reports whether the value was present in the document.
func (v Value) Exists() bool { return v.node != nil }

// IsNull reports an explicit null (`key:` or `key: ~`).
func (v Value) IsNull() bool {
	return v.node != nil && v.node.Kind == yaml.ScalarNode && v.node.ShortTag() == "!!null"
}

// Present reports a value that exists and is not null.
func (v Value) Present() bool { return v.Exists() && !v.IsNull() }

func (v Value) IsMap() bool    { return v.node != nil && v.node.Kind == yaml.MappingNode }
func (v Value) IsList() bool   { return v.node != nil && v.node.Kind == yaml.SequenceNode }
func (v Value) IsScalar() bool { return v.node != nil && v.node.Kind == yaml.ScalarNode && !v.IsNull() }

// Get returns the value stored under key in a mapping.
// Duplicate keys resolve to the last occurrence, as yaml decoders do.
// Keys pulled in through `<<` merges are consulted only when the mapping
// does not set key itself; with a merge list the earlier entry wins.
func (v Value) Get(key string) (Value, bool) {
	if !v.IsMap() {
		return Value{}, false
	}
	var found *yaml.Node
	var merges []*yaml.Node
	for i := 0; i+1 < len(v.node.Content); i += 2 {
		k := v.node.Content[i]
		switch {
		case k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge":
			merges = append(merges, v.node.Content[i+1])
		case k.Value == key:
			found = v.node.Content[i+1]
		}
	}
	if found != nil {
		return wrap(found), true
	}
	for _, m := range merges {
		src := wrap(m)
		if src.IsMap() {
			if got, ok := src.Get(key); ok {
				return got, true
			}
			continue
		}
		for _, item := range src.Items() {
			if got, ok := item.Get(key); ok {
				return got, true
			}
		}
	}
	return Value{}, false
}

// Items returns the elements of a sequence, or nil for anything else.
func (v Value) Items() []Value {
	if !v.IsList() {
		return nil
	}
	out := make([]Value, len(v.node.Content))
	for i, n := range v.node.Content {
		out[i] = wrap(n)
	}
	return out
}

// Str returns the scalar text when the value is a YAML string.
func (v Value) Str() (string, bool) {
	if !v.IsScalar() || v.node.ShortTag() != "!!str" {
		return "", false
	}
	return v.node.Value, true
}

// Text returns the raw scalar text regardless of its resolved tag.
func (v Value) Text() string {
	if v.node == nil || v.node.Kind != yaml.ScalarNode {
		return ""
	}
	return v.node.Value
}

// Bool decodes a YAML boolean.
func (v Value) Bool() (bool, bool) {
	if !v.IsScalar() || v.node.ShortTag() != "!!bool" {
		return false, false
	}
	var b bool
	if err := v.node.Decode(&b); err != nil {
		return false, false
	}
	return b, true
}

// Describe names the shape of the value for diagnostics.
func (v Value) Describe() string {
	switch {
	case v.node == nil:
		return "nothing"
	case v.IsNull():
		return "null"
	case v.IsMap():
		return "a mapping"
	case v.IsList():
		return "a list"
	}
	switch v.node.ShortTag() {
	case "!!str":
		return "a string"
	case "!!int", "!!float":
		return "a number"
	case "!!bool":
		return "a boolean"
	default:
		return "a scalar"
	}
}

func (v Value) Line() int {
	if v.node == nil {
		return 0
	}
	return v.node.Line
}

func (v Value) Column() int {
	if v.node == nil {
		return 0
	}
	return v.node.Column
}
