package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv("STRCLUSTER_LOG_LEVEL", "warn")
	t.Setenv("STRCLUSTER_LOG_PREFIX", "test")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("hidden")
	lg.Warn("shown", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "test")
	assert.NoError(t, lg.Close())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug": log.DebugLevel,
		"warn":  log.WarnLevel,
		"error": log.ErrorLevel,
		"":      log.InfoLevel,
		"loud":  log.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerToFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STRCLUSTER_LOG_TO_FILE", "1")

	lg := NewLogger(dir)
	require.NotEmpty(t, lg.Path())
	lg.Error("boom")
	require.NoError(t, lg.Close())

	data, err := os.ReadFile(lg.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "boom")
}
