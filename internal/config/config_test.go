package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/inventario")
	t.Setenv("JWT_SECRET", "s3cret")
	for _, key := range []string{"APP_ENV", "APP_PORT", "HTTP_READ_TIMEOUT", "DB_MAX_CONNS", "DB_STATEMENT_TIMEOUT", "REDIS_ADDR", "ADJUSTMENT_LOCK_TTL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Redis.LockTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.App.Development())
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"DATABASE_URL=postgres://file/db\nJWT_SECRET=from-file\nREDIS_ADDR=localhost:6379\nADJUSTMENT_LOCK_TTL=45s\n",
	), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	// Registered so t.Setenv restores the unset state after the file sets them.
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("ADJUSTMENT_LOCK_TTL", "")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("REDIS_ADDR")
	os.Unsetenv("ADJUSTMENT_LOCK_TTL")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "postgres://file/db", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 45*time.Second, cfg.Redis.LockTTL)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_MIN_CONNS", "20")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), "DB_MIN_CONNS")
}

func TestGetEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("X_TIMEOUT", "soon")

	assert.Equal(t, time.Second, getEnvDuration("X_TIMEOUT", time.Second))
}
