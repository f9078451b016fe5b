package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDoc = `version: v3
settings:
  tag: x
nodes:
  - name: ed_self_telemetry_input
    type: ed_self_telemetry_input
links: []
`

func TestParse_Minimal(t *testing.T) {
	doc, err := Parse("minimal.yaml", []byte(minimalDoc))
	require.NoError(t, err)

	assert.Equal(t, "minimal.yaml", doc.Source)
	assert.Equal(t, "x", doc.Tag())

	version, ok := doc.Field("version")
	require.True(t, ok)
	s, ok := version.Str()
	require.True(t, ok)
	assert.Equal(t, "v3", s)
	assert.Equal(t, 1, version.Line())

	nodes, ok := doc.Field("nodes")
	require.True(t, ok)
	require.True(t, nodes.IsList())
	items := nodes.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Line())

	links, _ := doc.Field("links")
	assert.True(t, links.IsList())
	assert.Empty(t, links.Items())
}

func TestParse_SyntaxErrorCarriesLine(t *testing.T) {
	_, err := Parse("bad.yaml", []byte("version: v3\nsettings: tag: x\nnodes: []\n"))
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.True(t, errors.Is(err, ErrParse))
	assert.Equal(t, "bad.yaml", pe.Source)
	assert.Equal(t, 2, pe.Line)
	assert.Contains(t, pe.Msg, "mapping values are not allowed")
	assert.NotNil(t, pe.Err)
	assert.Contains(t, err.Error(), "bad.yaml:2:")
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "   \n", "# only a comment\n", "~\n"} {
		_, err := Parse("empty.yaml", []byte(input))
		require.Error(t, err, "input %q", input)
		assert.True(t, errors.Is(err, ErrParse))
		assert.Contains(t, err.Error(), "document is empty")
	}
}

func TestParse_RootMustBeMapping(t *testing.T) {
	_, err := Parse("list.yaml", []byte("- a\n- b\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document root must be a mapping, got a list")
}

func TestParse_FirstDocumentOnly(t *testing.T) {
	doc, err := Parse("multi.yaml", []byte(minimalDoc+"---\nversion: v2\n"))
	require.NoError(t, err)
	v, _ := doc.Field("version")
	assert.Equal(t, "v3", v.Text())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalDoc), 0600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Source)
	assert.Equal(t, minimalDoc, string(doc.Raw))
}

func TestLoad_MissingFileIsNotParseError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrParse))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseReader(t *testing.T) {
	doc, err := ParseReader("stdin", strings.NewReader(minimalDoc))
	require.NoError(t, err)
	assert.Equal(t, "x", doc.Tag())
}

func TestValue_Accessors(t *testing.T) {
	doc, err := Parse("v.yaml", []byte(`version: 3
flag: true
empty:
anchor: &a {k: v}
alias: *a
dup: first
dup: second
`))
	require.NoError(t, err)

	version, _ := doc.Field("version")
	_, isStr := version.Str()
	assert.False(t, isStr)
	assert.Equal(t, "3", version.Text())
	assert.Equal(t, "a number", version.Describe())

	flag, _ := doc.Field("flag")
	b, ok := flag.Bool()
	assert.True(t, ok)
	assert.True(t, b)

	empty, ok := doc.Field("empty")
	assert.True(t, ok)
	assert.True(t, empty.IsNull())
	assert.False(t, empty.Present())

	alias, _ := doc.Field("alias")
	require.True(t, alias.IsMap())
	k, ok := alias.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", k.Text())

	dup, _ := doc.Field("dup")
	assert.Equal(t, "second", dup.Text())

	missing, ok := doc.Field("missing")
	assert.False(t, ok)
	assert.False(t, missing.Exists())
	assert.Equal(t, "nothing", missing.Describe())
	assert.Nil(t, missing.Items())
}

func TestValue_MergeKeys(t *testing.T) {
	doc, err := Parse("m.yaml", []byte(`base: &base {type: file_input, path: /var/log/a}
extra: &extra {path: /var/log/b, mode: tail}
single:
  <<: *base
  name: reader
override:
  <<: *base
  type: ed_output
list:
  <<: [*extra, *base]
`))
	require.NoError(t, err)

	single, _ := doc.Field("single")
	typ, ok := single.Get("type")
	require.True(t, ok)
	assert.Equal(t, "file_input", typ.Text())
	name, _ := single.Get("name")
	assert.Equal(t, "reader", name.Text())
	_, ok = single.Get("missing")
	assert.False(t, ok)

	override, _ := doc.Field("override")
	typ, _ = override.Get("type")
	assert.Equal(t, "ed_output", typ.Text(), "explicit keys win over merged ones")

	list, _ := doc.Field("list")
	path, _ := list.Get("path")
	assert.Equal(t, "/var/log/b", path.Text(), "earlier merge entries win")
	typ, ok = list.Get("type")
	require.True(t, ok)
	assert.Equal(t, "file_input", typ.Text())
}
