package validate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/pipeline"
)

func checkLinks(r *run) {
	links, ok := r.doc.Field("links")
	if !ok || !links.IsList() {
		return
	}
	items := links.Items()
	r.log.Debug("found links", zap.Int("count", len(items)))

	for i, link := range items {
		path := fmt.Sprintf("links[%d]", i)
		if !link.IsMap() {
			r.out.add(KindMalformedEntry, link, path, "link %d is not a mapping (got %s)", i, link.Describe())
			continue
		}

		from, fromVal, fromState := scalarField(link, "from")
		to, toVal, toState := scalarField(link, "to")

		for _, end := range []struct {
			field string
			value pipeline.Value
			state fieldState
		}{{"from", fromVal, fromState}, {"to", toVal, toState}} {
			switch end.state {
			case fieldMissing:
				r.out.add(KindMissingField, link, path+"."+end.field, "link %d missing '%s' field", i, end.field)
			case fieldWrongType:
				r.out.add(KindWrongType, end.value, path+"."+end.field,
					"link %d '%s' must be a node name, got %s", i, end.field, end.value.Describe())
			}
		}

		if fromState == fieldOK && !r.index.Has(from) {
			r.out.add(KindDanglingReference, fromVal, path+".from", "link references non-existent 'from' node: '%s'", from)
		}
		if toState == fieldOK && !r.index.Has(to) {
			r.out.add(KindDanglingReference, toVal, path+".to", "link references non-existent 'to' node: '%s'", to)
		}

		if fromState == fieldOK && toState == fieldOK {
			r.log.Debug("link checked", zap.String("from", from), zap.String("to", to))
		}
	}
}
