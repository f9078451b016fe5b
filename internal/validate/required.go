package validate

import "go.uber.org/zap"

func checkRequiredNodes(r *run) {
	present := r.index.Types()
	nodes, _ := r.doc.Field("nodes")
	for _, t := range r.rules.requiredSorted() {
		if _, ok := present[t]; !ok {
			r.out.add(KindMissingRequiredNode, nodes, "nodes", "missing required node type: '%s'", t)
			continue
		}
		r.log.Debug("required node present", zap.String("type", t))
	}
}
