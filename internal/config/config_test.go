package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 90, cfg.Analysis.WindowDays)
	assert.Equal(t, 2, cfg.Analysis.MergeThreshold)
	assert.True(t, cfg.Store.Enabled)
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
  format: json
analysis:
  window_days: 30
  merge_threshold: 4
aws:
  default_profile: audit
  regions: [us-east-1, eu-west-1]
store:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30, cfg.Analysis.WindowDays)
	assert.Equal(t, 4, cfg.Analysis.MergeThreshold)
	assert.Equal(t, "audit", cfg.AWS.DefaultProfile)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.AWS.Regions)
	assert.False(t, cfg.Store.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o600))
	t.Setenv("DP_LOG__LEVEL", "error")
	t.Setenv("DP_ANALYSIS__MERGE_THRESHOLD", "5")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Analysis.MergeThreshold)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  merge_threshold: 1\nlog:\n  level: loud\n"), 0o600))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MergeThreshold")
	assert.Contains(t, err.Error(), "Level")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestValidate_StorePathRequiredWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Path = ""
	assert.Error(t, Validate(cfg))

	cfg.Store.Enabled = false
	assert.NoError(t, Validate(cfg))
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/tmp/x.yaml", NewLoader("/tmp/x.yaml").ConfigPath())
}
