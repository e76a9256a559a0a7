package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VCSYNC_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("VCSYNC_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.False(t, cfg.OTP.ExposeCodes)
	assert.Equal(t, 10*time.Second, cfg.DIDResolveTimeout)
	assert.Equal(t, DefaultContextURLs, cfg.ContextURLs)
	assert.Empty(t, cfg.StatusListDefaultPurpose)
	assert.Empty(t, cfg.PGDSN)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("VCSYNC_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("VCSYNC_JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadReadsEnvFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"VCSYNC_JWT_SECRET=from-file\nVCSYNC_OTP_TTL=2m\nVCSYNC_STATUSLIST_DEFAULT_PURPOSE=revocation, suspension\n",
	), 0o600))
	t.Setenv("VCSYNC_ENV_FILE", path)
	t.Setenv("VCSYNC_EXPOSE_CODES", "true")
	t.Setenv("VCSYNC_OTP_MAX_ATTEMPTS", "not-a-number")
	// godotenv never overrides variables that are already set.
	t.Setenv("VCSYNC_OTP_TTL", "3m")
	t.Cleanup(func() {
		os.Unsetenv("VCSYNC_JWT_SECRET")
		os.Unsetenv("VCSYNC_STATUSLIST_DEFAULT_PURPOSE")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 3*time.Minute, cfg.OTP.TTL)
	assert.True(t, cfg.OTP.ExposeCodes)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, []string{"revocation", "suspension"}, cfg.StatusListDefaultPurpose)
}
