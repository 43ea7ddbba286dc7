package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestLog(t *testing.T) {
	dir := t.TempDir()
	_, err := latestLog(dir)
	assert.ErrorIs(t, err, errNoLogs)

	for _, name := range []string{"strcluster-20260101-120000.log", "strcluster-20260301-090000.log", "other.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	got, err := latestLog(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "strcluster-20260301-090000.log"), got)
}

func TestShowLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strcluster-20260101-120000.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, showLogs(context.Background(), &buf, path, 2, false))
	assert.Equal(t, "two\nthree\n", buf.String())

	buf.Reset()
	require.NoError(t, showLogs(context.Background(), &buf, path, 0, false))
	assert.Equal(t, "one\ntwo\nthree\n", buf.String())

	err := showLogs(context.Background(), &buf, path+".gone", 0, false)
	assert.Error(t, err)
}
