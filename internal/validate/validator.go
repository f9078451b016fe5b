// Package validate checks v3 pipeline documents. Validation is a pure
// function of the document: passes run in a fixed order, append to one
// ordered diagnostics list and never stop each other. Only a parse failure
// ends a run early.
package validate

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/pipeline"
)

// Pass names, in execution order.
const (
	PassParse    = "parse"
	PassSchema   = "schema"
	PassNodes    = "nodes"
	PassLinks    = "links"
	PassSequence = "sequence"
	PassRequired = "required_nodes"
	PassLint     = "lint"
)

type pass struct {
	name  string
	check func(*run)
}

// Link, sequence and required-node passes read the index built by the node
// pass, so the node pass must stay ahead of them.
var passes = []pass{
	{PassSchema, checkSchema},
	{PassNodes, checkNodes},
	{PassLinks, checkLinks},
	{PassSequence, checkSequences},
	{PassRequired, checkRequiredNodes},
	{PassLint, checkLint},
}

// run is the state of one validation run. Nothing in it outlives the run.
type run struct {
	doc   *pipeline.Document
	rules Rules
	index *NodeIndex
	out   *sink
	log   *zap.Logger
}

// Validator runs the passes. It holds no per-run state and is safe for
// concurrent use.
type Validator struct {
	rules  Rules
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithRules replaces the default rule set.
func WithRules(r Rules) Option {
	return func(v *Validator) { v.rules = r }
}

// WithLogger sets the logger used for per-pass debug output.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithTracer records one span per pass.
func WithTracer(t trace.Tracer) Option {
	return func(v *Validator) {
		if t != nil {
			v.tracer = t
		}
	}
}

// New creates a Validator with DefaultRules, a no-op logger and tracer.
func New(opts ...Option) *Validator {
	v := &Validator{
		rules:  DefaultRules(),
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Rules returns the rule set in use.
func (v *Validator) Rules() Rules { return v.rules }

// ValidateFile loads and validates the file at path. Read failures are
// returned as errors; syntax failures are reported as a ParseError diagnostic.
func (v *Validator) ValidateFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return v.ValidateBytes(ctx, path, data), nil
}

// ValidateBytes parses and validates raw YAML text.
func (v *Validator) ValidateBytes(ctx context.Context, name string, data []byte) *Report {
	start := v.now()
	doc, err := pipeline.Parse(name, data)
	if err != nil {
		return v.parseFailure(ctx, name, start, err)
	}
	rep := v.Validate(ctx, doc)
	rep.StartedAt = start
	rep.Duration = v.now().Sub(start)
	return rep
}

// Validate runs every pass over an already parsed document.
func (v *Validator) Validate(ctx context.Context, doc *pipeline.Document) *Report {
	start := v.now()
	rep := &Report{
		RunID:     uuid.NewString(),
		Source:    doc.Source,
		Tag:       doc.Tag(),
		StartedAt: start,
	}
	log := v.logger.With(zap.String("run_id", rep.RunID), zap.String("source", doc.Source))

	ctx, root := v.tracer.Start(ctx, "validate",
		trace.WithAttributes(attribute.String("pipeline.source", doc.Source), attribute.String("run.id", rep.RunID)))
	defer root.End()

	r := &run{
		doc:   doc,
		rules: v.rules,
		index: newNodeIndex(),
		out:   &sink{},
		log:   log,
	}

	for _, p := range passes {
		_, span := v.tracer.Start(ctx, "validate."+p.name)
		before := len(r.out.diags)
		passStart := v.now()

		r.out.pass = p.name
		p.check(r)

		elapsed := v.now().Sub(passStart)
		added := r.out.diags[before:]
		errs, warns := countSeverities(added)
		span.SetAttributes(attribute.Int("diagnostics.errors", errs), attribute.Int("diagnostics.warnings", warns))
		span.End()

		rep.Timings = append(rep.Timings, PassTiming{Pass: p.name, Duration: elapsed})
		log.Debug("pass completed",
			zap.String("pass", p.name),
			zap.Int("errors", errs),
			zap.Int("warnings", warns),
			zap.Duration("elapsed", elapsed))
	}

	rep.Diagnostics = r.out.diags
	rep.Duration = v.now().Sub(start)
	root.SetAttributes(attribute.Bool("validation.passed", rep.Passed()))
	return rep
}

func (v *Validator) parseFailure(ctx context.Context, name string, start time.Time, err error) *Report {
	_, span := v.tracer.Start(ctx, "validate."+PassParse)
	defer span.End()
	span.RecordError(err)

	loc := Location{}
	var pe *pipeline.ParseError
	if errors.As(err, &pe) {
		loc.Line, loc.Column = pe.Line, pe.Column
	}
	rep := &Report{
		RunID:     uuid.NewString(),
		Source:    name,
		StartedAt: start,
		Diagnostics: []Diagnostic{{
			Kind:     KindParseError,
			Severity: SeverityError,
			Pass:     PassParse,
			Message:  "failed to parse YAML: " + err.Error(),
			Location: loc,
		}},
	}
	rep.Duration = v.now().Sub(start)
	v.logger.Debug("parse failed", zap.String("source", name), zap.Error(err))
	return rep
}

func countSeverities(diags []Diagnostic) (errs, warns int) {
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs++
		} else {
			warns++
		}
	}
	return errs, warns
}
