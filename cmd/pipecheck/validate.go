package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/events"
	"github.com/AaronLay10/pipecheck/internal/report"
	"github.com/AaronLay10/pipecheck/internal/validate"
	"github.com/AaronLay10/pipecheck/internal/watch"
)

const stdinName = "<stdin>"

type validateOptions struct {
	json     bool
	noColor  bool
	timings  bool
	quiet    bool
	watch    bool
	debounce time.Duration
}

func newValidateCmd(a *app) *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate <file>... | -",
		Short: "Validate pipeline documents",
		Long: `Validate one or more v3 pipeline documents. Use - to read from stdin.

Exit status is 0 when every document passes, 1 when any fails and 2 when a
file cannot be read.

Examples:
  pipecheck validate pipeline.yaml
  cat pipeline.yaml | pipecheck validate -
  pipecheck validate --json a.yaml b.yaml | jq '.[].verdict'
  pipecheck validate --watch pipeline.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runValidate(cmd.Context(), args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.json, "json", false, "print machine-readable JSON instead of text")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&opts.timings, "timings", false, "print per-pass timings")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "omit per-diagnostic lines and print only the summary")
	f.BoolVarP(&opts.watch, "watch", "w", false, "re-validate files when they change")
	f.DurationVar(&opts.debounce, "debounce", watch.DefaultDebounce, "quiet period before re-validating in watch mode")
	return cmd
}

func (a *app) runValidate(ctx context.Context, paths []string, opts validateOptions) error {
	if opts.watch && slices.Contains(paths, "-") {
		return fmt.Errorf("--watch cannot be combined with stdin")
	}
	if n := countStdin(paths); n > 1 {
		return fmt.Errorf("stdin (-) can only be given once, got %d", n)
	}

	v := a.newValidator()
	bus := events.NewBus(events.DefaultBufferSize)
	stop := logEvents(bus, a.log)
	defer stop()
	s := a.openSinks(ctx, bus)
	defer s.close(a.log)

	code := a.validateAll(ctx, v, bus, paths, "cli", opts)
	if !opts.watch {
		if code != exitPass {
			return &exitError{code: code}
		}
		return nil
	}
	return a.watchLoop(ctx, v, bus, paths, opts)
}

// validateAll validates and renders each path and returns the worst exit
// code seen.
func (a *app) validateAll(ctx context.Context, v *validate.Validator, bus *events.Bus, paths []string, trigger string, opts validateOptions) int {
	code := exitPass
	reports := make([]*validate.Report, 0, len(paths))

	for _, p := range paths {
		name := p
		if p == "-" {
			name = stdinName
		}
		bus.EmitStarted(name, trigger)

		rep, err := a.validateOne(ctx, v, p)
		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			a.log.Debug("document unreadable", zap.String("path", p), zap.Error(err))
			code = max(code, exitUsage)
			continue
		}
		bus.EmitReport(rep)
		code = max(code, rep.ExitCode())

		if opts.json {
			reports = append(reports, rep)
			continue
		}
		if err := report.Text(a.stdout, rep, report.Options{
			NoColor: opts.noColor,
			Timings: opts.timings,
			Quiet:   opts.quiet,
		}); err != nil {
			fmt.Fprintf(a.stderr, "Error: writing report: %v\n", err)
			code = max(code, exitUsage)
		}
	}

	if opts.json && len(reports) > 0 {
		if err := report.JSON(a.stdout, reports...); err != nil {
			fmt.Fprintf(a.stderr, "Error: writing report: %v\n", err)
			code = max(code, exitUsage)
		}
	}
	return code
}

func (a *app) validateOne(ctx context.Context, v *validate.Validator, path string) (*validate.Report, error) {
	if path != "-" {
		rep, err := v.ValidateFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		return rep, nil
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return v.ValidateBytes(ctx, stdinName, data), nil
}

// watchLoop re-validates changed files until ctx is cancelled. Verdicts of
// later runs do not change the exit code.
func (a *app) watchLoop(ctx context.Context, v *validate.Validator, bus *events.Bus, paths []string, opts validateOptions) error {
	w, err := watch.New(watch.Config{Paths: paths, Debounce: opts.debounce, Logger: a.log})
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	defer w.Stop()

	fmt.Fprintf(a.stderr, "Watching %d file(s) for changes. Press Ctrl+C to stop.\n", len(paths))
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-changes:
			for _, p := range changed {
				_, _ = bus.Emit("info", events.WatchChanged, "", map[string]any{"path": p})
			}
			a.validateAll(ctx, v, bus, changed, "watch", opts)
		}
	}
}

func countStdin(paths []string) int {
	n := 0
	for _, p := range paths {
		if p == "-" {
			n++
		}
	}
	return n
}
