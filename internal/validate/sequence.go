package validate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/pipeline"
)

func checkSequences(r *run) {
	for _, e := range r.index.Entries() {
		if e.Type != r.rules.SequenceNodeType {
			continue
		}
		checkSequence(r, e.Label(), e.Value, e.Path)
	}
}

// checkSequence enforces the processor-list contract of one sequence:
// sequence-compatible types only, at most one final and only in last
// position, terminal processor last. Nested sequences are checked the same
// way under a label of the form "outer/processors[i]".
func checkSequence(r *run, label string, node pipeline.Value, path string) {
	procs, ok := node.Get("processors")
	if !ok || !procs.Present() || (procs.IsList() && len(procs.Items()) == 0) {
		r.out.add(KindEmptySequence, node, path, "sequence '%s' has no processors", label)
		return
	}
	if !procs.IsList() {
		r.out.add(KindWrongType, procs, path+".processors",
			"sequence '%s' 'processors' must be a list, got %s", label, procs.Describe())
		return
	}

	items := procs.Items()
	last := len(items) - 1
	r.log.Debug("validating sequence", zap.String("sequence", label), zap.Int("processors", len(items)))

	finals := 0
	var terminal []int
	for i, p := range items {
		ppath := fmt.Sprintf("%s.processors[%d]", path, i)
		if !p.IsMap() {
			r.out.add(KindMalformedEntry, p, ppath, "sequence '%s' processor %d is not a mapping (got %s)", label, i, p.Describe())
			continue
		}

		typ, typeVal, state := scalarField(p, "type")
		switch state {
		case fieldMissing:
			r.out.add(KindMissingField, p, ppath+".type", "sequence '%s' processor %d missing 'type'", label, i)
		case fieldWrongType:
			r.out.add(KindWrongType, typeVal, ppath+".type",
				"sequence '%s' processor %d 'type' must be a string, got %s", label, i, typeVal.Describe())
		default:
			if !r.rules.AllowsProcessor(typ) {
				r.out.add(KindIncompatibleProcessor, typeVal, ppath+".type",
					"sequence '%s' contains non-sequence-compatible processor '%s' at position %d", label, typ, i)
			}
			if typ == r.rules.TerminalProcessor {
				terminal = append(terminal, i)
			}
		}

		if f, ok := p.Get("final"); ok && f.Present() {
			isFinal, isBool := f.Bool()
			switch {
			case !isBool:
				r.out.add(KindWrongType, f, ppath+".final",
					"sequence '%s' processor %d 'final' must be true or false, got %s", label, i, f.Describe())
			case isFinal:
				finals++
				if finals == 2 {
					r.out.add(KindMultipleFinal, f, path+".processors",
						"sequence '%s' has multiple processors with 'final: true'", label)
				}
				if i != last {
					r.out.add(KindMisplacedFinal, f, ppath+".final",
						"sequence '%s' has 'final: true' on processor %d, but it's not the last processor", label, i)
				}
			}
		}

		if state == fieldOK && typ == r.rules.SequenceNodeType {
			if nested, ok := p.Get("processors"); ok && nested.Present() {
				checkSequence(r, fmt.Sprintf("%s/processors[%d]", label, i), p, ppath)
			}
		}

		r.log.Debug("processor checked", zap.String("sequence", label), zap.Int("index", i), zap.String("type", typ))
	}

	for _, pos := range terminal {
		if pos != last {
			r.out.add(KindMisplacedDeotel, items[pos], fmt.Sprintf("%s.processors[%d]", path, pos),
				"sequence '%s' has %s processor at position %d, but it must be last", label, r.rules.TerminalProcessor, pos)
		}
	}

	if finals == 0 {
		r.out.add(KindNoFinalProcessor, procs, path+".processors", "sequence '%s' has no processor with 'final: true'", label)
	}
}
