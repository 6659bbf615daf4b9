package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadFromEnvOverridesDefault(t *testing.T) {
	t.Setenv("NOUNVERB_HNSW_M", "32")
	t.Setenv("NOUNVERB_STORAGE_BACKEND", "filesystem")
	t.Setenv("NOUNVERB_MODES_READ_ONLY", "true")

	cfg := LoadFromEnv()
	assert.Equal(t, 32, cfg.HNSW.M)
	assert.Equal(t, "filesystem", cfg.Storage.Backend)
	assert.True(t, cfg.Modes.ReadOnly)
	// untouched fields keep their default
	assert.Equal(t, 200, cfg.HNSW.EfConstruction)
}

func TestLoadFromEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("NOUNVERB_HNSW_M", "not-a-number")
	cfg := LoadFromEnv()
	assert.Equal(t, Default().HNSW.M, cfg.HNSW.M)
}

func TestValidateRejectsReadOnlyAndWriteOnlyTogether(t *testing.T) {
	cfg := Default()
	cfg.Modes.ReadOnly = true
	cfg.Modes.WriteOnly = true
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStorageBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresS3BucketForS3Backend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "s3"
	assert.Error(t, cfg.Validate())

	cfg.Storage.S3Bucket = "my-bucket"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownPartitionStrategy(t *testing.T) {
	cfg := Default()
	cfg.Partition.Strategy = "vibes"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonExpandingRetryMultiplier(t *testing.T) {
	cfg := Default()
	cfg.Retry.Multiplier = 1
	assert.Error(t, cfg.Validate())
}

func TestLoadYAMLFileMergesOntoBaseAndEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hnsw:
  m: 64
  ef_search: 100
storage:
  backend: s3
  s3_bucket: from-yaml
`), 0o644))

	t.Setenv("NOUNVERB_HNSW_M", "8") // env wins over YAML
	base := LoadFromEnv()

	merged, err := LoadYAMLFile(path, base)
	require.NoError(t, err)

	assert.Equal(t, 8, merged.HNSW.M)            // env value preserved
	assert.Equal(t, 100, merged.HNSW.EfSearch)   // YAML value applied
	assert.Equal(t, "s3", merged.Storage.Backend)
	assert.Equal(t, "from-yaml", merged.Storage.S3Bucket)
	require.NoError(t, merged.Validate())
}

func TestLoadYAMLFileReturnsErrorForMissingFile(t *testing.T) {
	_, err := LoadYAMLFile("/nonexistent/path/config.yaml", Default())
	assert.Error(t, err)
}
