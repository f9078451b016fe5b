package events

import "github.com/AaronLay10/pipecheck/internal/validate"

// EmitStarted records the start of a run over source.
func (b *Bus) EmitStarted(source, trigger string) {
	_, _ = b.Emit("info", ValidationStarted, "", map[string]any{
		"source":  source,
		"trigger": trigger,
	})
}

// EmitReport records the outcome of rep and hands it to every sink.
func (b *Bus) EmitReport(rep *validate.Report) {
	name, level := ValidationPassed, "info"
	switch {
	case rep.ParseFailed():
		name, level = ValidationParseError, "error"
	case !rep.Passed():
		name, level = ValidationFailed, "warn"
	}

	fields := map[string]any{
		"run_id":   rep.RunID,
		"source":   rep.Source,
		"verdict":  rep.Verdict(),
		"errors":   len(rep.Errors()),
		"warnings": len(rep.Warnings()),
	}
	if rep.Tag != "" {
		fields["tag"] = rep.Tag
	}
	msg := ""
	if errs := rep.Errors(); len(errs) > 0 {
		msg = errs[0].Message
	}

	_, _ = b.emit(Event{Level: level, Name: name, Message: msg, Fields: fields, Report: rep})
}
