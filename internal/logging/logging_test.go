package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DefaultLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(DefaultConfig(), false, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Warn("shown")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "error"}, true, &buf)
	require.NoError(t, err)

	log.Debug("pass completed", zap.String("pass", "schema"))
	require.NoError(t, log.Sync())
	assert.Contains(t, buf.String(), "pass completed")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "info", Format: FormatJSON}, false, &buf)
	require.NoError(t, err)

	log.Info("validation finished", zap.String("verdict", "PASS"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "validation finished", entry["msg"])
	assert.Equal(t, "PASS", entry["verdict"])
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud"}, false)
	require.Error(t, err)

	_, err = New(Config{Format: "xml"}, false)
	require.Error(t, err)
}
