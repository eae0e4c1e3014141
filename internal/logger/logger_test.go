package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info")

	l.Warn("login failed", slog.String("ip", "10.0.0.1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "login failed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "10.0.0.1", entry["ip"])
	assert.Contains(t, entry, "time")
}

func TestSetupRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "warn")

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Error("shown")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
