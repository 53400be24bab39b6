package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, "data/piptrade.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.IngestToken)
	assert.Equal(t, "https://api.binance.com", cfg.UpstreamBaseURL)
	assert.Equal(t, 20*time.Second, cfg.SpotCacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.HistoryCacheTTL)
	assert.Equal(t, 12*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("INGEST_TOKEN", "tok")
	t.Setenv("UPSTREAM_BASE_URL", "https://example.test/")
	t.Setenv("SPOT_CACHE_TTL", "3s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "tok", cfg.IngestToken)
	assert.Equal(t, "https://example.test", cfg.UpstreamBaseURL, "trailing slash trimmed")
	assert.Equal(t, 3*time.Second, cfg.SpotCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := Config{Port: 8787, DBPath: "x.db", UpstreamTimeout: time.Second}
	require.NoError(t, good.Validate())

	bad := good
	bad.DBPath = ""
	require.Error(t, bad.Validate())

	bad = good
	bad.UpstreamTimeout = 0
	require.Error(t, bad.Validate())
}

func TestOriginMatching(t *testing.T) {
	cfg := Config{CORSOrigins: []string{"https://dash.example"}}
	assert.True(t, cfg.AllowsOrigin("https://dash.example"))
	assert.True(t, cfg.AllowsOrigin("HTTPS://DASH.EXAMPLE"))
	assert.False(t, cfg.AllowsOrigin("https://evil.example"))
	assert.False(t, cfg.AllowAnyOrigin())

	wild := Config{CORSOrigins: []string{"*"}}
	assert.True(t, wild.AllowsOrigin("https://anything.example"))
	assert.True(t, wild.AllowAnyOrigin())
}

func TestSplitOriginsEmptyFallsBackToWildcard(t *testing.T) {
	assert.Equal(t, []string{"*"}, splitOrigins(""))
	assert.Equal(t, []string{"*"}, splitOrigins(" , ,"))
}
