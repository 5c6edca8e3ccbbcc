package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 60*time.Second, cfg.AuditDedupTTL)
	assert.Equal(t, "memory", cfg.AuditDedupBackend)
	assert.Equal(t, 256, cfg.AuditBuffer)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUDIT_DEDUP_BACKEND", "redis")
	t.Setenv("AUDIT_DEDUP_TTL", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "redis", cfg.AuditDedupBackend)
	assert.Equal(t, 5*time.Minute, cfg.AuditDedupTTL)
}

func TestLoadConfigRequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}
