package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupAndRecoverPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strcluster.log")
	Setup(path, true)
	require.True(t, Initialized())

	cleaned := false
	func() {
		defer RecoverPanic("worker", func() { cleaned = true })
		panic("bad row")
	}()
	assert.True(t, cleaned)

	slog.Debug("after panic")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Panic in worker")
	assert.Contains(t, string(data), "bad row")
	assert.Contains(t, string(data), "after panic")
}
