package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &ServiceConfig{}, cfg)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`
dbPath: /var/lib/graphkb
lenient: true
listenAddr: ":8440"
queryTimeoutSeconds: 30
maxRowLimit: 500
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graphkb.yml"), data, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/graphkb", cfg.DBPath)
	assert.True(t, cfg.Lenient)
	assert.Equal(t, ":8440", cfg.ListenAddr)
	assert.Equal(t, 30, cfg.QueryTimeout)
	assert.Equal(t, int64(500), cfg.MaxLimit)
	assert.False(t, cfg.AllowStubNodes)
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graphkb.yaml"), []byte("{not yaml"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
