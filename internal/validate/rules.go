package validate

import "sort"

// Rules is the data the passes check against. It is copied by value, so a
// Validator never observes later edits made by the caller.
type Rules struct {
	SupportedVersion  string
	SequenceNodeType  string
	TerminalProcessor string
	RequiredNodeTypes []string
	processors        map[string]struct{}
}

var defaultSequenceProcessors = []string{
	"generic_mask", "extract_metric", "ottl_transform", "sample", "dedup",
	"log_to_pattern_metric", "delete_empty_values", "json_unroll",
	"log_to_metric", "log_to_signal", "metric_to_log", "trace_to_log",
	"log_to_log", "metric_to_metric", "trace_to_trace", "attribute_filter",
	"regex_filter", "stateful_where", "deotel", "http_request_call",
	"sampling", "throttle", "regex_based_log_parser",

	// seen in production pipelines
	"sequence", "comment", "aggregate_metric", "ottl_filter", "lookup", "route",
}

// DefaultRules returns the v3 rule set.
func DefaultRules() Rules {
	r := Rules{
		SupportedVersion:  "v3",
		SequenceNodeType:  "sequence",
		TerminalProcessor: "deotel",
		RequiredNodeTypes: []string{"ed_self_telemetry_input"},
	}
	return r.WithProcessors(defaultSequenceProcessors...)
}

// WithProcessors returns a copy of r that also allows the given processor types
// inside sequences.
func (r Rules) WithProcessors(types ...string) Rules {
	next := make(map[string]struct{}, len(r.processors)+len(types))
	for t := range r.processors {
		next[t] = struct{}{}
	}
	for _, t := range types {
		if t != "" {
			next[t] = struct{}{}
		}
	}
	r.processors = next
	return r
}

// WithRequiredNodeTypes returns a copy of r that also requires the given node
// types. Duplicates are ignored.
func (r Rules) WithRequiredNodeTypes(types ...string) Rules {
	seen := make(map[string]struct{}, len(r.RequiredNodeTypes)+len(types))
	out := make([]string, 0, len(r.RequiredNodeTypes)+len(types))
	for _, t := range append(append([]string{}, r.RequiredNodeTypes...), types...) {
		if _, dup := seen[t]; dup || t == "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	r.RequiredNodeTypes = out
	return r
}

// AllowsProcessor reports whether t may appear inside a sequence.
func (r Rules) AllowsProcessor(t string) bool {
	_, ok := r.processors[t]
	return ok
}

// Processors lists the allowed sequence processor types, sorted.
func (r Rules) Processors() []string {
	out := make([]string, 0, len(r.processors))
	for t := range r.processors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r Rules) requiredSorted() []string {
	out := append([]string{}, r.RequiredNodeTypes...)
	sort.Strings(out)
	return out
}
