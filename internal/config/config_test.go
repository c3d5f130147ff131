package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://www.calpads.org", cfg.Portal.BaseURL)
	assert.Equal(t, 2*time.Hour, cfg.Timeouts.Upload)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Settle)
	assert.Equal(t, "SDEM", cfg.Extract.DateRangeReportType)
	assert.True(t, cfg.Browser.Headless)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "calpads.yaml")

	content := `
portal:
  base_url: https://portal.test
  reports:
    custom: /Report/Custom
browser:
  headless: false
timeouts:
  upload: 45m
  scope: 2s
extract:
  academic_year: "20232024"
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://portal.test", cfg.Portal.BaseURL)
	assert.Equal(t, "/Report/Custom", cfg.Portal.Reports["custom"])
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Minute, cfg.Timeouts.Upload)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Scope)
	// Unset timeouts fall back to finite defaults.
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, "20232024", cfg.Extract.AcademicYear)
	assert.Equal(t, "SDEM", cfg.Extract.DateRangeReportType)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CALPADS_USERNAME", "user@example.org")
	t.Setenv("CALPADS_PASSWORD", "secret")
	t.Setenv("CALPADS_BASE_URL", "http://127.0.0.1:9999")
	t.Setenv("CALPADS_HEADLESS", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "user@example.org", cfg.Credentials.Username)
	assert.Equal(t, "secret", cfg.Credentials.Password)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Portal.BaseURL)
	assert.False(t, cfg.Browser.Headless)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeouts: [1, 2"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Download = -time.Second

	err := cfg.Validate()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "timeouts.download", cfgErr.Field)

	cfg = Default()
	cfg.Portal.BaseURL = " "
	assert.Error(t, cfg.Validate())
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.RequireCredentials()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "CALPADS_USERNAME", cfgErr.Field)

	cfg.Credentials.Username = "u"
	assert.Error(t, cfg.RequireCredentials())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
