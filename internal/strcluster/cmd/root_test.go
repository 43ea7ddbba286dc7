package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strcluster/internal/config"
)

func testCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().StringP("data-dir", "D", "", "")
	addFilterFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig(testCommand(t))
	require.NoError(t, err)
	assert.True(t, cfg.HideNonMatching)
	assert.False(t, cfg.UseRegex)
	assert.True(t, cfg.Demangle)

	cfg, err = loadConfig(testCommand(t, "--regex", "--hide=false", "--collapse",
		"--min-len", "6", "--no-demangle", "--debug", "-D", "/tmp/x"))
	require.NoError(t, err)
	assert.True(t, cfg.UseRegex)
	assert.False(t, cfg.HideNonMatching)
	assert.True(t, cfg.CollapseNoFunc)
	assert.Equal(t, 6, cfg.MinStringLength)
	assert.False(t, cfg.Demangle)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/tmp/x", cfg.DataDir)
	assert.Equal(t, "/tmp/x", dataDir(cfg))
}

func TestLoadConfigInvalidFlag(t *testing.T) {
	_, err := loadConfig(testCommand(t, "--min-len", "0"))
	assert.Error(t, err)
}

func TestFilterFromFlags(t *testing.T) {
	cmd := testCommand(t, "-Q", "http", "-r")
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	f := filterFromFlags(cmd, cfg)
	assert.Equal(t, "http", f.query)
	assert.True(t, f.opts.UseRegex)
	assert.True(t, f.opts.LiveSearch)
}

func TestResolveFile(t *testing.T) {
	_, err := resolveFile("definitely/not/here.so")
	assert.ErrorContains(t, err, "file not found")
}

func TestSchemaCommand(t *testing.T) {
	var buf bytes.Buffer
	schemaCmd.SetOut(&buf)
	require.NoError(t, schemaCmd.RunE(schemaCmd, nil))

	out := buf.String()
	assert.Contains(t, out, `"minStringLength"`)
	assert.Contains(t, out, `"hotkey"`)
	assert.Contains(t, out, `"functionColumnPercent"`)
}

func TestDetectFileKind(t *testing.T) {
	assert.Equal(t, "library", detectFileKind("/x/libgame.so"))
	assert.Equal(t, "library", detectFileKind("/x/libc.so.6"))
	assert.Equal(t, "executable", detectFileKind("/bin/ls"))
	assert.Equal(t, "unknown", detectFileKind("/x/notes.txt"))
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strcluster.yaml")

	var buf bytes.Buffer
	cmd := testCommand(t, "--config", path, "--regex", "--min-len", "8")
	cmd.Flags().Bool("write", false, "")
	cmd.SetOut(&buf)
	assert.Error(t, configCmd.RunE(cmd, nil), "an explicit config file must exist")

	require.NoError(t, cmd.Flags().Set("write", "true"))
	require.NoError(t, configCmd.RunE(cmd, nil))
	assert.Contains(t, buf.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.UseRegex)
	assert.Equal(t, 8, cfg.MinStringLength)

	buf.Reset()
	require.NoError(t, cmd.Flags().Set("write", "false"))
	require.NoError(t, configCmd.RunE(cmd, nil))
	assert.Contains(t, buf.String(), "min_string_length: 8")
}
