package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, ScanModeFull, cfg.Index.StartupScanMode)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestLoadProjectConfigOverrides(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ProjectConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(`
embedding:
  model: custom-model
  dimensions: 384
index:
  parallel_files: 8
  startup_scan_mode: deleted_and_new
`), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 8, cfg.Index.ParallelFiles)
	assert.Equal(t, ScanModeDeletedAndNew, cfg.Index.StartupScanMode)
}

func TestComputedMaxBatchSize(t *testing.T) {
	ec := EmbeddingConfig{ContextLength: 8192}
	assert.Equal(t, 16, ec.ComputedMaxBatchSize())

	ec = EmbeddingConfig{ContextLength: 100}
	assert.Equal(t, 1, ec.ComputedMaxBatchSize())

	ec = EmbeddingConfig{ContextLength: 1 << 20}
	assert.Equal(t, 64, ec.ComputedMaxBatchSize())

	ec = EmbeddingConfig{ContextLength: 8192, MaxBatchSize: 7}
	assert.Equal(t, 7, ec.ComputedMaxBatchSize())
}

func TestParseScanMode(t *testing.T) {
	mode, err := ParseScanMode("Deleted_Only")
	require.NoError(t, err)
	assert.Equal(t, ScanModeDeletedOnly, mode)

	_, err = ParseScanMode("everything")
	require.Error(t, err)
}

func TestProjectIDStable(t *testing.T) {
	a := ProjectID("/some/project")
	b := ProjectID("/some/project")
	c := ProjectID("/other/project")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
