package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/variance-engine/config"
	"github.com/warp/variance-engine/variance"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, 4, cfg.Batch.Workers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "variance.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = "9090"

[cache]
ttl = "90s"

[thresholds]
profile = "detailed"
`), 0o600))

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL.Duration)
	assert.Equal(t, "detailed", cfg.Thresholds.Profile)
	// untouched keys keep their defaults
	assert.Equal(t, 15.0, cfg.Thresholds.CriticalPercent)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "variance.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = \"9090\"\n"), 0o600))

	t.Setenv("VARIANCE_PORT", "7070")
	t.Setenv("VARIANCE_CACHE_TTL", "1m")
	t.Setenv("DATABASE_URL", "postgres://localhost/variance")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, "postgres://localhost/variance", cfg.Storage.DatabaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VARIANCE_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("VARIANCE_LOG_LEVEL", "")
	os.Unsetenv("VARIANCE_LOG_LEVEL")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VARIANCE_CACHE_TTL", "soon")

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport="), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestDefaultThresholds(t *testing.T) {
	cfg := config.DefaultConfig()

	th, err := cfg.DefaultThresholds()
	require.NoError(t, err)
	assert.True(t, th.WarningPercent.Equal(variance.DefaultWarningPercent))
	assert.True(t, th.CriticalPercent.Equal(variance.DefaultCriticalPercent))

	cfg.Thresholds.WarningPercent = 20
	_, err = cfg.DefaultThresholds()
	assert.ErrorIs(t, err, variance.ErrInvalidThresholds)
}

func TestSaveThenLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := config.DefaultConfig()
	cfg.Server.Port = "6060"

	require.NoError(t, config.Save(path, cfg))
	loaded, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "6060", loaded.Server.Port)
	assert.Equal(t, cfg.Cache.TTL, loaded.Cache.TTL)
}

func TestLoad_NonPositiveCleanupIntervalUsesDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, v := range []string{`"0s"`, `"-5s"`} {
		path := filepath.Join(t.TempDir(), "variance.toml")
		require.NoError(t, os.WriteFile(path, []byte("[cache]\ncleanup_interval = "+v+"\n"), 0o600))

		cfg, err := config.Load(path)

		require.NoError(t, err, v)
		assert.Equal(t, time.Minute, cfg.Cache.CleanupInterval.Duration, v)
	}
}
