// Package logging builds the zap loggers used by the CLI and the server.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level and encoding.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig logs warnings and above to the console.
func DefaultConfig() Config {
	return Config{Level: "warn", Format: FormatConsole}
}

// New builds a logger writing to stderr. verbose forces the debug level.
func New(cfg Config, verbose bool) (*zap.Logger, error) {
	return NewWithWriter(cfg, verbose, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg Config, verbose bool, w io.Writer) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case FormatJSON:
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	case FormatConsole, "":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(level))
	return zap.New(core), nil
}
