package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/pipecheck/internal/validate"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, ExporterNone, cfg.Exporter)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "pipecheck", cfg.ServiceName)
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{}, nil)
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "test-span")
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no context")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_NoExporter(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: ExporterNone}, nil)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "test-span")
	sc := span.SpanContext()
	require.True(t, sc.IsValid())
	require.True(t, sc.TraceID().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_StdoutExportsValidationSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider(context.Background(), Config{
		Enabled:     true,
		Exporter:    ExporterStdout,
		ServiceName: "pipecheck-test",
		Writer:      &buf,
	}, nil)
	require.NoError(t, err)

	v := validate.New(validate.WithTracer(p.Tracer()))
	rep := v.ValidateBytes(context.Background(), "t.yaml", []byte("version: v3\n"))
	require.False(t, rep.Passed())

	// Shutdown flushes the batcher.
	require.NoError(t, p.Shutdown(context.Background()))

	out := buf.String()
	require.Contains(t, out, `"validate"`)
	require.Contains(t, out, `"validate.schema"`)
	require.Contains(t, out, `"validate.lint"`)
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported exporter type")
}
