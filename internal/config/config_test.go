package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strcluster/internal/cluster"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cluster.Options{HideNonMatching: true, LiveSearch: true}, cfg.Options())
	assert.Equal(t, 4, cfg.EngineOptions().MinStringLength)
	assert.Equal(t, "alt+s", cfg.Hotkey)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "overrides keep unspecified defaults",
			yaml: "regex: true\nlive_search: false\n",
			check: func(t *testing.T, cfg Config) {
				assert.True(t, cfg.UseRegex)
				assert.False(t, cfg.LiveSearch)
				assert.True(t, cfg.HideNonMatching)
				assert.Equal(t, 20, cfg.FunctionColumnPercent)
			},
		},
		{
			name:    "min length out of range",
			yaml:    "min_string_length: 0\n",
			wantErr: true,
		},
		{
			name:    "empty hotkey",
			yaml:    "hotkey: \"\"\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			yaml:    "regex: [",
			wantErr: true,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "c"+string(rune('0'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			cfg, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("function_column_percent: 99\n"), 0o600))

	_, err := Load(path)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "FunctionColumnPercent", verrs[0].Field())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.CollapseNoFunc = true
	cfg.MinStringLength = 6

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
