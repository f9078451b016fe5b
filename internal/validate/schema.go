package validate

import (
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/pipeline"
)

var topLevelFields = []string{"version", "settings", "nodes", "links"}

// checkSchema runs every top-level check; none of them stops the others.
func checkSchema(r *run) {
	root := r.doc.Root()

	for _, field := range topLevelFields {
		v, ok := r.doc.Field(field)
		if !ok || !v.Present() {
			r.out.add(KindMissingField, root, field, "missing required field '%s'", field)
			continue
		}
		checkTopLevelShape(r, field, v)
	}

	if v, ok := r.doc.Field("version"); ok && v.Present() {
		got := v.Text()
		if !v.IsScalar() {
			got = v.Describe()
		}
		if !v.IsScalar() || got != r.rules.SupportedVersion {
			r.out.add(KindUnsupportedVersion, v, "version",
				"invalid version '%s', must be '%s'", got, r.rules.SupportedVersion)
		} else {
			r.log.Debug("version ok", zap.String("version", got))
		}
	}

	settings, ok := r.doc.Field("settings")
	if !ok || !settings.IsMap() {
		return
	}
	tag, ok := settings.Get("tag")
	switch {
	case !ok || !tag.Present():
		r.out.add(KindMissingField, settings, "settings.tag", "missing required field 'settings.tag'")
	case !isString(tag):
		r.out.add(KindWrongType, tag, "settings.tag", "field 'settings.tag' must be a string, got %s", tag.Describe())
	case tag.Text() == "":
		r.out.add(KindMissingField, tag, "settings.tag", "field 'settings.tag' must not be empty")
	default:
		r.log.Debug("pipeline tag", zap.String("tag", tag.Text()))
	}
}

func checkTopLevelShape(r *run, field string, v pipeline.Value) {
	var ok bool
	var want string
	switch field {
	case "version":
		ok, want = v.IsScalar(), "a string"
	case "settings":
		ok, want = v.IsMap(), "a mapping"
	default:
		ok, want = v.IsList(), "a list"
	}
	if !ok {
		r.out.add(KindWrongType, v, field, "field '%s' must be %s, got %s", field, want, v.Describe())
	}
}

func isString(v pipeline.Value) bool {
	_, ok := v.Str()
	return ok
}
