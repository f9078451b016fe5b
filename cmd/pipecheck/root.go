package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AaronLay10/pipecheck/internal/config"
	"github.com/AaronLay10/pipecheck/internal/logging"
	"github.com/AaronLay10/pipecheck/internal/tracing"
	"github.com/AaronLay10/pipecheck/internal/validate"
	"github.com/AaronLay10/pipecheck/internal/version"
)

const tracingShutdownTimeout = 5 * time.Second

// Exit codes.
const (
	exitPass  = 0
	exitFail  = 1
	exitUsage = 2
)

// exitError carries a non-zero exit code out of a command without printing
// anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app is the state shared by every command of one invocation.
type app struct {
	cfgFile string
	verbose bool

	v       *viper.Viper
	cfg     config.Config
	log     *zap.Logger
	tracing *tracing.Provider

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pipecheck",
		Short: "Validate v3 pipeline documents",
		Long: `pipecheck checks v3 pipeline YAML for structural and semantic errors before
a deployment client submits it. Errors fail validation; warnings do not.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./.pipecheck.yaml, then ~/.config/pipecheck/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"debug logging, including per-pass detail")

	root.AddCommand(
		newValidateCmd(a),
		newServeCmd(a),
		newRulesCmd(a),
		newVersionCmd(a),
	)
	return root
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		v:      viper.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return exitPass
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitUsage
}

// setup loads configuration and builds the logger and tracer.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if cmd.Name() == "serve" {
		serveLogDefaults(a.v, &cfg)
	}

	log, err := logging.NewWithWriter(cfg.Log, a.verbose, a.stderr)
	if err != nil {
		return err
	}

	tp, err := tracing.NewProvider(cmd.Context(), cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}

	a.cfg, a.log, a.tracing = cfg, log, tp
	log.Debug("config loaded",
		zap.String("file", a.v.ConfigFileUsed()),
		zap.String("command", cmd.Name()))
	return nil
}

// close flushes the tracer and logger. It is safe when setup never ran.
func (a *app) close() {
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		_ = a.tracing.Shutdown(ctx)
		cancel()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) newValidator() *validate.Validator {
	return validate.New(
		validate.WithRules(a.cfg.Rules.Apply(validate.DefaultRules())),
		validate.WithLogger(a.log),
		validate.WithTracer(a.tracing.Tracer()),
	)
}
