package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GIN_MODE", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, AIProviderNone, cfg.AIProvider)
	assert.Equal(t, StorageBackendLocal, cfg.StorageBackend)
	assert.Equal(t, 10, cfg.JobBatchSize)
	assert.Equal(t, time.Duration(0), cfg.JobRetention())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("AI_PROVIDER", "BEDROCK")
	t.Setenv("JOB_RETENTION_HOURS", "24")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MAX_AVATAR_BYTES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, AIProviderBedrock, cfg.AIProvider)
	assert.Equal(t, 24*time.Hour, cfg.JobRetention())
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxAvatarBytes)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{DatabaseDriver: "sqlite", AIProvider: "magic", StorageBackend: StorageBackendLocal}
	assert.Error(t, cfg.Validate())
}

func TestValidateReleaseRequiresSecrets(t *testing.T) {
	cfg := &Config{
		GinMode:        "release",
		DatabaseDriver: "postgres",
		AIProvider:     AIProviderNone,
		StorageBackend: StorageBackendLocal,
		QueueRedisURL:  "redis://localhost:6379/0",
	}
	assert.Error(t, cfg.Validate())

	cfg.SessionSecret = "secret"
	assert.NoError(t, cfg.Validate())
}
