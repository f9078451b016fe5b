package validate

import (
	"fmt"

	"go.uber.org/zap"
)

// checkNodes validates each node and builds r.index for the later passes.
func checkNodes(r *run) {
	nodes, ok := r.doc.Field("nodes")
	if !ok || !nodes.IsList() {
		// reported by the schema pass
		return
	}
	items := nodes.Items()
	if len(items) == 0 {
		r.out.add(KindNoNodes, nodes, "nodes", "no nodes defined in pipeline")
		return
	}
	r.log.Debug("found nodes", zap.Int("count", len(items)))

	firstLine := make(map[string]int)
	for i, node := range items {
		path := fmt.Sprintf("nodes[%d]", i)
		if !node.IsMap() {
			r.out.add(KindMalformedEntry, node, path, "node %d is not a mapping (got %s)", i, node.Describe())
			continue
		}

		entry := NodeEntry{Index: i, Path: path, Value: node}

		name, nameVal, state := scalarField(node, "name")
		switch state {
		case fieldMissing:
			r.out.add(KindMissingField, node, path+".name", "node %d missing 'name' field", i)
		case fieldWrongType:
			r.out.add(KindWrongType, nameVal, path+".name", "node %d 'name' must be a string, got %s", i, nameVal.Describe())
		default:
			entry.Name = name
		}

		typ, typeVal, state := scalarField(node, "type")
		switch state {
		case fieldMissing:
			if entry.Name != "" {
				r.out.add(KindMissingField, node, path+".type", "node '%s' missing 'type' field", entry.Name)
			} else {
				r.out.add(KindMissingField, node, path+".type", "node %d missing 'type' field", i)
			}
		case fieldWrongType:
			r.out.add(KindWrongType, typeVal, path+".type", "node '%s' 'type' must be a string, got %s", entry.Label(), typeVal.Describe())
		default:
			entry.Type = typ
		}

		if entry.Name != "" {
			if line, dup := firstLine[entry.Name]; dup {
				r.out.add(KindDuplicateName, nameVal, path+".name",
					"duplicate node name '%s' (first declared at line %d)", entry.Name, line)
			} else {
				firstLine[entry.Name] = nameVal.Line()
			}
		}

		r.index.add(entry)
		r.log.Debug("node checked", zap.String("node", entry.Label()), zap.String("type", entry.Type))
	}
}
