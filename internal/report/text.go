// Package report renders validation reports for people and for machines.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AaronLay10/pipecheck/internal/validate"
)

const ruleWidth = 80

// Options controls text rendering.
type Options struct {
	NoColor bool
	Timings bool
	// Quiet drops the per-diagnostic lines and keeps the summary.
	Quiet bool
}

type palette struct {
	title   lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	timings lipgloss.Style
}

func newPalette(noColor bool) palette {
	if noColor {
		plain := lipgloss.NewStyle()
		return palette{plain, plain, plain, plain, plain, plain, plain}
	}
	return palette{
		title:   lipgloss.NewStyle().Bold(true),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		pass:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		timings: lipgloss.NewStyle().PaddingLeft(2),
	}
}

// Text writes a human-readable summary of rep to w.
func Text(w io.Writer, rep *validate.Report, opts Options) error {
	p := newPalette(opts.NoColor)
	rule := strings.Repeat("=", ruleWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n\n", rule, p.title.Render("Validating: "+rep.Source), rule)

	if !opts.Quiet {
		for _, d := range rep.Diagnostics {
			b.WriteString(diagnosticLine(p, d))
			b.WriteByte('\n')
		}
	}

	errs, warns := len(rep.Errors()), len(rep.Warnings())
	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", rule, p.title.Render("VALIDATION SUMMARY"), rule)
	fmt.Fprintf(&b, "Errors: %d\nWarnings: %d\n\n", errs, warns)

	switch {
	case errs == 0 && warns == 0:
		b.WriteString(p.pass.Render("✓✓✓ VALIDATION PASSED - Pipeline is valid! ✓✓✓"))
	case errs == 0:
		b.WriteString(p.pass.Render(fmt.Sprintf("✓ VALIDATION PASSED with %d warnings", warns)))
	default:
		b.WriteString(p.fail.Render(fmt.Sprintf("✗ VALIDATION FAILED with %d errors", errs)))
	}
	b.WriteString("\n")

	if opts.Timings && len(rep.Timings) > 0 {
		b.WriteString("\n")
		b.WriteString(p.timings.Render(timingTable(rep)))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func diagnosticLine(p palette, d validate.Diagnostic) string {
	var prefix string
	if d.Severity == validate.SeverityError {
		prefix = p.err.Render("✗ ERROR:")
	} else {
		prefix = p.warn.Render("⚠ WARNING:")
	}
	line := prefix + " " + d.Message
	if loc := d.Location.String(); loc != "" {
		line += " " + p.muted.Render("("+loc+")")
	}
	return line
}

func timingTable(rep *validate.Report) string {
	width := 0
	for _, t := range rep.Timings {
		if len(t.Pass) > width {
			width = len(t.Pass)
		}
	}
	var b strings.Builder
	b.WriteString("Timing:\n")
	for _, t := range rep.Timings {
		fmt.Fprintf(&b, "  %-*s %s\n", width, t.Pass, t.Duration)
	}
	fmt.Fprintf(&b, "  %-*s %s", width, "total", rep.Duration)
	return b.String()
}
