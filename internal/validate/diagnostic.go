package validate

import (
	"fmt"

	"github.com/AaronLay10/pipecheck/internal/pipeline"
)

// Severity of a diagnostic. Only errors fail validation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind identifies the rule a diagnostic reports.
type Kind string

const (
	KindParseError            Kind = "ParseError"
	KindMissingField          Kind = "MissingField"
	KindUnsupportedVersion    Kind = "UnsupportedVersion"
	KindWrongType             Kind = "WrongType"
	KindNoNodes               Kind = "NoNodes"
	KindDuplicateName         Kind = "DuplicateName"
	KindDanglingReference     Kind = "DanglingReference"
	KindMalformedEntry        Kind = "MalformedEntry"
	KindIncompatibleProcessor Kind = "IncompatibleProcessor"
	KindMisplacedFinal        Kind = "MisplacedFinal"
	KindMultipleFinal         Kind = "MultipleFinal"
	KindMisplacedDeotel       Kind = "MisplacedDeotel"
	KindMissingRequiredNode   Kind = "MissingRequiredNode"
	KindDotFieldPath          Kind = "DotFieldPath"

	KindEmptySequence      Kind = "EmptySequence"
	KindNoFinalProcessor   Kind = "NoFinalProcessor"
	KindUnicodeGlyph       Kind = "UnicodeGlyph"
	KindProblematicSetting Kind = "ProblematicSetting"
	KindLintUnavailable    Kind = "LintUnavailable"
)

var warningKinds = map[Kind]struct{}{
	KindEmptySequence:      {},
	KindNoFinalProcessor:   {},
	KindUnicodeGlyph:       {},
	KindProblematicSetting: {},
	KindLintUnavailable:    {},
}

// Severity returns the fixed severity of the kind.
func (k Kind) Severity() Severity {
	if _, ok := warningKinds[k]; ok {
		return SeverityWarning
	}
	return SeverityError
}

// Location points at the offending entity. Path uses the document's own
// field names, e.g. "nodes[2].processors[1]".
type Location struct {
	Path   string `json:"path,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l Location) String() string {
	switch {
	case l.Line > 0 && l.Path != "":
		return fmt.Sprintf("%s (line %d)", l.Path, l.Line)
	case l.Line > 0:
		return fmt.Sprintf("line %d", l.Line)
	default:
		return l.Path
	}
}

// Diagnostic is one finding produced by a pass.
type Diagnostic struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Pass     string   `json:"pass"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
}

func (d Diagnostic) String() string {
	if loc := d.Location.String(); loc != "" {
		return fmt.Sprintf("%s [%s] at %s", d.Message, d.Kind, loc)
	}
	return fmt.Sprintf("%s [%s]", d.Message, d.Kind)
}

// sink is the shared, ordered diagnostics list every pass appends to.
type sink struct {
	pass  string
	diags []Diagnostic
}

func (s *sink) add(kind Kind, at pipeline.Value, path, format string, args ...any) {
	s.diags = append(s.diags, Diagnostic{
		Kind:     kind,
		Severity: kind.Severity(),
		Pass:     s.pass,
		Message:  fmt.Sprintf(format, args...),
		Location: Location{Path: path, Line: at.Line(), Column: at.Column()},
	})
}

func (s *sink) addAt(kind Kind, loc Location, format string, args ...any) {
	s.diags = append(s.diags, Diagnostic{
		Kind:     kind,
		Severity: kind.Severity(),
		Pass:     s.pass,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}
