package validate

import (
	"fmt"
	"sort"

	"github.com/AaronLay10/pipecheck/internal/pipeline"
)

// NodeEntry is one well-formed (mapping) entry of the nodes list.
type NodeEntry struct {
	Index int
	Name  string // "" when the node has no usable name
	Type  string // "" when the node has no usable type
	Path  string
	Value pipeline.Value
}

// Label identifies the node in messages, falling back to its position.
func (e NodeEntry) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("node %d", e.Index)
}

// NodeIndex is built once by the node pass and read by the later passes.
type NodeIndex struct {
	entries []NodeEntry
	byName  map[string]NodeEntry
}

func newNodeIndex() *NodeIndex {
	return &NodeIndex{byName: make(map[string]NodeEntry)}
}

func (x *NodeIndex) add(e NodeEntry) {
	x.entries = append(x.entries, e)
	if e.Name == "" {
		return
	}
	if _, dup := x.byName[e.Name]; !dup {
		x.byName[e.Name] = e
	}
}

// Has reports whether a node with this name was declared.
func (x *NodeIndex) Has(name string) bool {
	_, ok := x.byName[name]
	return ok
}

// Lookup returns the first node declared with name.
func (x *NodeIndex) Lookup(name string) (NodeEntry, bool) {
	e, ok := x.byName[name]
	return e, ok
}

// Entries returns the well-formed nodes in declaration order.
func (x *NodeIndex) Entries() []NodeEntry { return x.entries }

// Names returns the declared node names, sorted.
func (x *NodeIndex) Names() []string {
	out := make([]string, 0, len(x.byName))
	for n := range x.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Types returns the set of node types present.
func (x *NodeIndex) Types() map[string]struct{} {
	out := make(map[string]struct{}, len(x.entries))
	for _, e := range x.entries {
		if e.Type != "" {
			out[e.Type] = struct{}{}
		}
	}
	return out
}

type fieldState int

const (
	fieldMissing fieldState = iota
	fieldWrongType
	fieldOK
)

// scalarField reads a name-like field. Any non-empty scalar is accepted so
// that `name: 42` still identifies a node; mappings and lists are not.
func scalarField(v pipeline.Value, key string) (string, pipeline.Value, fieldState) {
	f, ok := v.Get(key)
	if !ok || !f.Present() {
		return "", f, fieldMissing
	}
	if !f.IsScalar() {
		return "", f, fieldWrongType
	}
	if f.Text() == "" {
		return "", f, fieldMissing
	}
	return f.Text(), f, fieldOK
}
