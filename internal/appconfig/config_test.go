package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, Default().Embedding.Dimension, cfg.Embedding.Dimension)
}

func TestLoadParsesTOMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[storage]
data_dir = "/tmp/custom"

[embedding]
dimension = 128
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom", cfg.Storage.DataDir)
	require.Equal(t, 128, cfg.Embedding.Dimension)
	require.Equal(t, Default().Storage.DBFilename, cfg.Storage.DBFilename)
}

func TestEnvOverlayWinsOverFile(t *testing.T) {
	t.Setenv("MCP_TRANSPORT", "http")
	t.Setenv("MCP_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, TransportHTTP, cfg.Server.Transport)
	require.Equal(t, 9999, cfg.Server.Port)
}
