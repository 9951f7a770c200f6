package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/siapp-dev/siapp/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// setupEnv isolates the test from any .env file and points the data
// directory at a fresh temp dir.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SIAPP_CONFIG", "")
	t.Setenv("SIAPP_SECRET", "")
	t.Setenv("SIAPP_DATA_DIR", filepath.Join(dir, "data"))
	return dir
}

const sampleJSON = `[
    {"APP_NAME": "Payroll", "APP_SLUG": "payroll", "APP_SHORT_NAME": "Payroll", "APP_URL": "https://script.google.com/macros/s/A1/exec"},
    {"APP_NAME": "Leave", "APP_SLUG": "leave", "APP_SHORT_NAME": "Leave", "APP_URL": "https://script.google.com/macros/s/B2/exec"}
]`

func TestImportExportRoundTrip(t *testing.T) {
	dir := setupEnv(t)
	input := filepath.Join(dir, "apps.json")
	require.NoError(t, os.WriteFile(input, []byte(sampleJSON), 0o644))

	out, err := run(t, "import", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 of 2 applications")

	out, err = run(t, "import", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 of 2 applications", "existing slugs are skipped")

	out, err = run(t, "export")
	require.NoError(t, err)
	var apps []*models.App
	require.NoError(t, json.Unmarshal([]byte(out), &apps))
	require.Len(t, apps, 2)
	for _, app := range apps {
		assert.NotEmpty(t, app.CreatedAt)
	}

	yamlPath := filepath.Join(dir, "backup.yaml")
	_, err = run(t, "export", "-o", yamlPath)
	require.NoError(t, err)
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML []*models.App
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Len(t, fromYAML, 2)
	assert.Contains(t, string(data), "slug: payroll")
}

func TestImportYAMLIntoEmptyStore(t *testing.T) {
	dir := setupEnv(t)
	input := filepath.Join(dir, "apps.yml")
	require.NoError(t, os.WriteFile(input, []byte(`
- name: Inventory
  slug: inventory
  short_name: Inventory
  url: https://script.google.com/macros/s/C3/exec
`), 0o644))

	out, err := run(t, "import", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 of 1 applications")
}

func TestImportErrors(t *testing.T) {
	dir := setupEnv(t)

	_, err := run(t, "import", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not": "a list"}`), 0o644))
	_, err = run(t, "import", bad)
	assert.Error(t, err)

	_, err = run(t, "import")
	assert.Error(t, err, "file argument is required")
}

func TestExportEmptyStore(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "export")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestGenTokenRequiresSecret(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "gentoken")
	assert.Error(t, err)

	t.Setenv("SIAPP_SECRET", testSecret)
	out, err := run(t, "gentoken", "--ttl", "1h")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."), "a JWT has three segments")
}

func TestValidateAndVersion(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "validate")
	assert.Error(t, err)

	t.Setenv("SIAPP_SECRET", testSecret)
	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Equal(t, "Configuration is valid.\n", out)

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "siapp version dev\n", out)
}
