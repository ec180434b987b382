package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0.5, cfg.Scrub.FDThreshold)
	assert.Equal(t, 0.5, cfg.Scrub.DVARSThreshold)
	assert.Equal(t, 1, cfg.Scrub.NBack)
	assert.Equal(t, 2, cfg.Scrub.NForward)
	assert.Equal(t, 25.0, cfg.Spike.AJKZThreshold)
	assert.Equal(t, 50.0, cfg.Motion.HeadRadius)
	assert.Equal(t, 128, cfg.Spectrum.NFFT)
	assert.Equal(t, 96, cfg.Spectrum.Overlap)
	assert.Equal(t, 6, cfg.Output.MosaicColumns)
	assert.True(t, cfg.Output.Plot)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qa.yaml")

	cfg := DefaultConfig()
	cfg.Scrub.FDThreshold = 0.2
	cfg.Spike.AJKZThreshold = 10
	cfg.Output.Plot = false
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrub:\n  nForward: 4\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Scrub.NForward)
	assert.Equal(t, 1, cfg.Scrub.NBack)
	assert.Equal(t, 0.5, cfg.Scrub.FDThreshold)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spectrum:\n  nfft: 64\n  overlap: 64\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrub: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), loaded)
}
