package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WARDEN_DATA_DIR", "")
	t.Setenv("LOG_LEVEL", "")
	cfg := Load()
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WARDEN_DATA_DIR", "/var/lib/warden")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg := Load()
	assert.Equal(t, "/var/lib/warden", cfg.DataDir)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoadProfileMissingFileDefaultsSafe(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ModeSafe, p.NormalizedMode())
	assert.NotEmpty(t, p.ProtectedPaths)
	assert.NotEmpty(t, p.NeverDoPatterns)
}

func TestLoadProfileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	doc := `
mode: guided
allow_network: true
protected_paths:
  - /etc
max_bulk_items: 50
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, ModeGuided, p.NormalizedMode())
	assert.True(t, p.AllowNetwork)
	assert.Equal(t, []string{"/etc"}, p.ProtectedPaths)
	assert.Equal(t, 50, p.MaxBulkItems)
	// Unset fields keep their defaults.
	assert.Equal(t, 30, p.ExecTimeoutSeconds)
}

func TestSystemAgentOptIn(t *testing.T) {
	p := DefaultProfile()
	p.Mode = ModeSystemAgent
	assert.Error(t, p.Validate())

	p.EnableSystemAgent = true
	assert.Error(t, p.Validate())

	p.SystemAgentAccept = SystemAgentPhrase
	assert.NoError(t, p.Validate())
}

func TestUnknownModeRejected(t *testing.T) {
	p := DefaultProfile()
	p.Mode = "yolo"
	assert.Error(t, p.Validate())
}
