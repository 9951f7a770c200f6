package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// chdirTemp runs the test from an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SIAPP_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "data", cfg.DataDir)
	assert.Empty(t, cfg.TemplateDir)
	assert.Equal(t, DefaultAdminUser, cfg.Admin.Username)
	assert.Equal(t, DefaultAdminPassword, cfg.Admin.Password)
	assert.Equal(t, time.Hour, cfg.Admin.SessionTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Admin.RememberDuration)
	assert.False(t, cfg.Admin.SecureCookies)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}

func TestLoadRequiresSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SIAPP_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIAPP_SECRET is required")

	t.Setenv("SIAPP_SECRET", "short")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestEnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SIAPP_SECRET", testSecret)
	t.Setenv("SIAPP_HOST", "127.0.0.1")
	t.Setenv("SIAPP_PORT", "9000")
	t.Setenv("SIAPP_DATA_DIR", "/var/lib/siapp")
	t.Setenv("SIAPP_TEMPLATE_DIR", "/etc/siapp/template")
	t.Setenv("SIAPP_ADMIN_USER", "root")
	t.Setenv("SIAPP_ADMIN_PASSWORD", "hunter2")
	t.Setenv("SIAPP_SESSION_TIMEOUT", "15m")
	t.Setenv("SIAPP_REMEMBER_DURATION", "168h")
	t.Setenv("SIAPP_SECURE_COOKIES", "true")
	t.Setenv("SIAPP_LOG_LEVEL", "debug")
	t.Setenv("SIAPP_LOG_FORMAT", "text")
	t.Setenv("SIAPP_CLEANUP_INTERVAL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, "/var/lib/siapp", cfg.DataDir)
	assert.Equal(t, "/etc/siapp/template", cfg.TemplateDir)
	assert.Equal(t, "root", cfg.Admin.Username)
	assert.Equal(t, "hunter2", cfg.Admin.Password)
	assert.Equal(t, 15*time.Minute, cfg.Admin.SessionTimeout)
	assert.Equal(t, 168*time.Hour, cfg.Admin.RememberDuration)
	assert.True(t, cfg.Admin.SecureCookies)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
}

func TestMalformedEnvironmentFallsBack(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SIAPP_SECRET", testSecret)
	t.Setenv("SIAPP_PORT", "eighty")
	t.Setenv("SIAPP_SESSION_TIMEOUT", "soon")
	t.Setenv("SIAPP_SECURE_COOKIES", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Hour, cfg.Admin.SessionTimeout)
	assert.False(t, cfg.Admin.SecureCookies)
}

func TestConfigFileOverlay(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "siapp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
data_dir: /srv/siapp
admin:
  username: ops
  secret: `+testSecret+`
  session_timeout: 30m
log:
  format: text
`), 0o644))

	t.Setenv("SIAPP_CONFIG", path)
	t.Setenv("SIAPP_SECRET", "")
	t.Setenv("SIAPP_PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Port, "environment wins over file")
	assert.Equal(t, "/srv/siapp", cfg.DataDir)
	assert.Equal(t, "ops", cfg.Admin.Username)
	assert.Equal(t, DefaultAdminPassword, cfg.Admin.Password, "absent keys keep defaults")
	assert.Equal(t, 30*time.Minute, cfg.Admin.SessionTimeout)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestConfigFileErrors(t *testing.T) {
	dir := chdirTemp(t)

	t.Setenv("SIAPP_CONFIG", filepath.Join(dir, "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [not a number"), 0o644))
	t.Setenv("SIAPP_CONFIG", bad)
	_, err = Load()
	assert.Error(t, err)
}

func TestDotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SIAPP_SECRET="+testSecret+"\nSIAPP_ADMIN_USER=fromdotenv\n"), 0o644))

	// Registered so the variables godotenv sets are restored afterwards.
	t.Setenv("SIAPP_SECRET", "")
	t.Setenv("SIAPP_ADMIN_USER", "")
	os.Unsetenv("SIAPP_SECRET")
	os.Unsetenv("SIAPP_ADMIN_USER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromdotenv", cfg.Admin.Username)
}

func TestValidate(t *testing.T) {
	cfg := LoadWithDefaults()
	require.NoError(t, cfg.Validate())

	cfg.Port = 0
	cfg.Log.Format = "xml"
	cfg.Admin.SessionTimeout = 0
	cfg.CleanupInterval = -time.Minute
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIAPP_PORT")
	assert.Contains(t, err.Error(), "SIAPP_LOG_FORMAT")
	assert.Contains(t, err.Error(), "SIAPP_SESSION_TIMEOUT")
	assert.Contains(t, err.Error(), "SIAPP_CLEANUP_INTERVAL")
}

func TestResolveSkipsValidation(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SIAPP_SECRET", "")
	t.Setenv("SIAPP_DATA_DIR", "/tmp/siapp-data")

	cfg, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/siapp-data", cfg.DataDir)
	assert.Error(t, cfg.Validate())
}
