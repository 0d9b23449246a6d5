package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"data_dir": "/srv/data",
		"config": {"model_metadata": {"model_binary_dir": "models"}},
		"server": {"addr": "0.0.0.0:9000", "pool_size": 2},
		"detection": {"confidence_threshold": 0.5, "iou_threshold": 0.6}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/data", cfg.DataDir)
	assert.Equal(t, "models", cfg.ModelBinaryDir)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.InDelta(t, 0.5, cfg.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.6, cfg.IoUThreshold, 1e-6)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{"data_dir": "/srv/data"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.InDelta(t, 0.25, cfg.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.45, cfg.IoUThreshold, 1e-6)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", "0.0.0.0:1234")
	t.Setenv("ONNXRUNTIME_LIB_PATH", "/opt/ort/libonnxruntime.so")

	path := writeConfig(t, `{"data_dir": "/srv/data", "server": {"addr": "127.0.0.1:8080"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:1234", cfg.Addr)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.ORTLibraryPath)
}

func TestLoadRequiresDataDir(t *testing.T) {
	path := writeConfig(t, `{}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"data_dir":`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
