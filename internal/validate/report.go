package validate

import "time"

// Verdict strings.
const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"
)

// PassTiming records how long one pass took.
type PassTiming struct {
	Pass     string        `json:"pass"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is the outcome of one validation run.
type Report struct {
	RunID       string        `json:"run_id"`
	Source      string        `json:"source"`
	Tag         string        `json:"tag,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
	Timings     []PassTiming  `json:"timings,omitempty"`
}

// Errors returns the error diagnostics in emission order.
func (r *Report) Errors() []Diagnostic { return r.filter(SeverityError) }

// Warnings returns the warning diagnostics in emission order.
func (r *Report) Warnings() []Diagnostic { return r.filter(SeverityWarning) }

func (r *Report) filter(s Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Passed is true iff there are no errors. Warnings never fail a run.
func (r *Report) Passed() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Verdict returns VerdictPass or VerdictFail.
func (r *Report) Verdict() string {
	if r.Passed() {
		return VerdictPass
	}
	return VerdictFail
}

// ExitCode is 0 for PASS and 1 for FAIL.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// ParseFailed reports whether the run stopped at the loader.
func (r *Report) ParseFailed() bool {
	return len(r.Diagnostics) == 1 && r.Diagnostics[0].Kind == KindParseError
}

// Has reports whether any diagnostic of kind k was emitted.
func (r *Report) Has(k Kind) bool {
	return r.Count(k) > 0
}

// Count returns how many diagnostics of kind k were emitted.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind == k {
			n++
		}
	}
	return n
}
