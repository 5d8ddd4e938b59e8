package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WARDROBE_ANALYZER_URL", "WARDROBE_UPLOAD_TIMEOUT", "WARDROBE_PERMISSIONS_CAMERA",
		"WARDROBE_PERMISSIONS_LIBRARY", "WARDROBE_STYLIST_PROVIDER", "WARDROBE_STYLIST_MODEL",
		"WARDROBE_STYLIST_OLLAMA_URL", "WARDROBE_PORT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.AnalyzerURL)
	assert.Equal(t, 60*time.Second, cfg.UploadTimeout)
	assert.True(t, cfg.Permissions.Camera)
	assert.True(t, cfg.Permissions.Library)
	assert.Equal(t, "ollama", cfg.Stylist.Provider)
	assert.Equal(t, "3000", cfg.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analyzer_url: http://10.0.2.2:3000/
upload_timeout: 5s
permissions:
  camera: false
stylist:
  provider: gemini
  model: gemini-1.5-pro
`), 0644))

	t.Setenv("WARDROBE_PORT", "8080")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.2.2:3000", cfg.AnalyzerURL)
	assert.Equal(t, 5*time.Second, cfg.UploadTimeout)
	assert.False(t, cfg.Permissions.Camera)
	assert.True(t, cfg.Permissions.Library)
	assert.Equal(t, "gemini", cfg.Stylist.Provider)
	assert.Equal(t, "gemini-1.5-pro", cfg.Stylist.Model)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("WARDROBE_ANALYZER_URL", "https://stylist.example.com")
	t.Setenv("WARDROBE_PERMISSIONS_LIBRARY", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://stylist.example.com", cfg.AnalyzerURL)
	assert.False(t, cfg.Permissions.Library)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	t.Setenv("WARDROBE_ANALYZER_URL", "localhost:3000")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid analyzer_url")
}
