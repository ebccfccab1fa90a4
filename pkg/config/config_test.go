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

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/rpc", cfg.EndpointPath)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, int64(4194304), cfg.MaxBodyBytes)
	assert.Equal(t, int64(64), cfg.MaxConcurrent)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "noop", cfg.TracingExporter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENTWIRE_LISTEN_ADDR", ":9999")
	t.Setenv("AGENTWIRE_SESSION_TTL", "5m")
	t.Setenv("AGENTWIRE_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.Origins())
}

func TestValidate(t *testing.T) {
	cfg := &Config{EndpointPath: "/rpc", SessionTTL: time.Minute, MaxConcurrent: 1}
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.EndpointPath = "rpc"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.SessionTTL = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MaxConcurrent = 0
	assert.Error(t, bad.Validate())
}

func TestOriginsEmpty(t *testing.T) {
	cfg := &Config{}
	assert.Nil(t, cfg.Origins())

	cfg.AllowedOrigins = " , "
	assert.Empty(t, cfg.Origins())
}
