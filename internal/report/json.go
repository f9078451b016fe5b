package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/AaronLay10/pipecheck/internal/validate"
)

// Entry is one diagnostic in machine output.
type Entry struct {
	Kind     validate.Kind     `json:"kind"`
	Severity validate.Severity `json:"severity"`
	Message  string            `json:"message"`
	Location validate.Location `json:"location"`
}

// Result is the machine form of one report.
type Result struct {
	RunID      string  `json:"run_id"`
	Source     string  `json:"source"`
	Tag        string  `json:"tag,omitempty"`
	Verdict    string  `json:"verdict"`
	Passed     bool    `json:"passed"`
	Errors     []Entry `json:"errors"`
	Warnings   []Entry `json:"warnings"`
	DurationMS float64 `json:"duration_ms"`
}

// NewResult converts rep. Errors and Warnings are never nil so they encode
// as empty arrays.
func NewResult(rep *validate.Report) Result {
	res := Result{
		RunID:      rep.RunID,
		Source:     rep.Source,
		Tag:        rep.Tag,
		Verdict:    rep.Verdict(),
		Passed:     rep.Passed(),
		Errors:     []Entry{},
		Warnings:   []Entry{},
		DurationMS: float64(rep.Duration) / float64(time.Millisecond),
	}
	for _, d := range rep.Diagnostics {
		e := Entry{Kind: d.Kind, Severity: d.Severity, Message: d.Message, Location: d.Location}
		if d.Severity == validate.SeverityError {
			res.Errors = append(res.Errors, e)
		} else {
			res.Warnings = append(res.Warnings, e)
		}
	}
	return res
}

// JSON writes reports as an indented JSON document. A single report is
// written as an object, several as an array.
func JSON(w io.Writer, reports ...*validate.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(reports) == 1 {
		return enc.Encode(NewResult(reports[0]))
	}
	out := make([]Result, 0, len(reports))
	for _, r := range reports {
		out = append(out, NewResult(r))
	}
	return enc.Encode(out)
}
